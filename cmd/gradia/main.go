package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/windopper/gradia-backend/internal/browser"
	"github.com/windopper/gradia-backend/internal/config"
	"github.com/windopper/gradia-backend/internal/timetable"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// timetable flags
	sourceURL   string
	backendHint string
	timeout     time.Duration

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gradia",
	Short: "gradia - timetable reconstruction engine",
	Long: `gradia recovers a structured weekly class schedule from a rendered
everytime.kr timetable page, using only visual layout cues and loosely
ordered text fragments.

Two interchangeable page backends are available: a headless chromium
driven over CDP (primary) and a static HTML fetcher (fallback).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// timetableCmd runs one reconstruction and prints the result as JSON.
var timetableCmd = &cobra.Command{
	Use:   "timetable",
	Short: "Reconstruct the weekly schedule behind a timetable URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		selectors := timetable.Selectors{
			Container: cfg.Scrape.ContainerSelector,
			Block:     cfg.Scrape.BlockSelector,
			Axis:      cfg.Scrape.AxisSelector,
			Separator: cfg.Scrape.SeparatorSelector,
		}

		chromium := browser.NewChromium(cfg.Browser, logger.Named("chromium"))
		defer func() {
			if err := chromium.Shutdown(); err != nil {
				logger.Warn("browser shutdown failed", zap.Error(err))
			}
		}()
		static := browser.NewStatic(cfg.Browser, selectors, logger.Named("static"))

		engine := timetable.NewEngine(chromium, static,
			timetable.WithLogger(logger.Named("engine")),
			timetable.WithSelectors(selectors),
			timetable.WithOpenTimeout(cfg.Browser.NavigationTimeout()),
			timetable.WithRenderWait(cfg.Scrape.RenderWait(), cfg.Scrape.PollInterval()),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var opts []timetable.RequestOption
		if backendHint != "" {
			opts = append(opts, timetable.PreferBackend(backendHint))
		}

		result, err := engine.Reconstruct(ctx, sourceURL, opts...)
		if err != nil {
			var unavailable *timetable.TimetableUnavailableError
			if errors.As(err, &unavailable) {
				logger.Error("both backends exhausted",
					zap.NamedError("primary", unavailable.Primary),
					zap.NamedError("fallback", unavailable.Fallback))
			}
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// configCmd writes the default configuration to disk.
var configCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config already exists at %s", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote default config to %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "gradia.yaml", "path to config file")

	timetableCmd.Flags().StringVar(&sourceURL, "url", "", "timetable page URL (required)")
	timetableCmd.Flags().StringVar(&backendHint, "backend", "", "preferred backend for this call (chromium, static)")
	timetableCmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "overall request timeout")
	_ = timetableCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(timetableCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
