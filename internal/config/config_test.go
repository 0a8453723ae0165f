package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gradia", cfg.Name)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, ".wrap .tablebody", cfg.Scrape.ContainerSelector)
	assert.Equal(t, ".subject", cfg.Scrape.BlockSelector)
	assert.Equal(t, ".hours .hour", cfg.Scrape.AxisSelector)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "gradia.yaml")

	cfg := DefaultConfig()
	cfg.Browser.Headless = false
	cfg.Browser.NavigationTimeoutMs = 5000
	cfg.Scrape.BlockSelector = ".custom-subject"
	cfg.Scrape.SeparatorSelector = ".tablebody td"
	cfg.Logging.Level = "debug"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradia.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scrape:\n  render_wait_ms: 2500\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.Scrape.RenderWait())
	assert.Equal(t, ".subject", cfg.Scrape.BlockSelector, "unset keys keep defaults")
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradia.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser: [not a map"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRADIA_CHROME_BIN", "/opt/chromium/chrome")
	t.Setenv("GRADIA_DEBUGGER_URL", "ws://127.0.0.1:9222")
	t.Setenv("GRADIA_HEADLESS", "false")
	t.Setenv("GRADIA_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/opt/chromium/chrome", cfg.Browser.Bin)
	assert.Equal(t, "ws://127.0.0.1:9222", cfg.Browser.DebuggerURL)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDurationFallbacks(t *testing.T) {
	var browser BrowserConfig
	assert.Equal(t, 30*time.Second, browser.NavigationTimeout())

	var scrape ScrapeConfig
	assert.Equal(t, 10*time.Second, scrape.RenderWait())
	assert.Equal(t, 250*time.Millisecond, scrape.PollInterval())
}
