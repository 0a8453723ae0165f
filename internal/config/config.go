// Package config holds the gradia scraping configuration: a YAML file
// with defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gradia timetable engine configuration.
type Config struct {
	Name string `yaml:"name"`

	// Browser configures the chromium (CDP) backend.
	Browser BrowserConfig `yaml:"browser"`

	// Scrape configures selectors and wait budgets shared by both
	// backends.
	Scrape ScrapeConfig `yaml:"scrape"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the chromium backend.
type BrowserConfig struct {
	DebuggerURL         string `yaml:"debugger_url"`
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	UserAgent           string `yaml:"user_agent"`
}

// NavigationTimeout returns the page acquisition timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// ScrapeConfig configures grid observation.
type ScrapeConfig struct {
	ContainerSelector string `yaml:"container_selector"`
	BlockSelector     string `yaml:"block_selector"`
	AxisSelector      string `yaml:"axis_selector"`
	// SeparatorSelector optionally matches explicit day column
	// boundaries; unset, the grid is divided into equal columns.
	SeparatorSelector string `yaml:"separator_selector,omitempty"`
	RenderWaitMs      int    `yaml:"render_wait_ms"`
	PollIntervalMs    int    `yaml:"poll_interval_ms"`
}

// RenderWait returns the bounded wait for the grid to render.
func (c ScrapeConfig) RenderWait() time.Duration {
	if c.RenderWaitMs == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RenderWaitMs) * time.Millisecond
}

// PollInterval returns the render poll interval.
func (c ScrapeConfig) PollInterval() time.Duration {
	if c.PollIntervalMs == 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "gradia",

		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
		},

		Scrape: ScrapeConfig{
			ContainerSelector: ".wrap .tablebody",
			BlockSelector:     ".subject",
			AxisSelector:      ".hours .hour",
			RenderWaitMs:      10000,
			PollIntervalMs:    250,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GRADIA_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("GRADIA_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("GRADIA_HEADLESS"); v != "" {
		c.Browser.Headless = v != "false" && v != "0"
	}
	if v := os.Getenv("GRADIA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
