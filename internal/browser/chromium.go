// Package browser provides the two page-automation backends behind the
// timetable engine's page-handle contract: a chromium backend driven over
// CDP and a static HTML fallback.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windopper/gradia-backend/internal/config"
	"github.com/windopper/gradia-backend/internal/timetable"
)

// Chromium drives a headless chromium over CDP. One browser process is
// shared; every Open call gets its own incognito page so concurrent
// reconstructions stay independent.
type Chromium struct {
	cfg config.BrowserConfig
	log *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewChromium creates the chromium backend. The browser is launched
// lazily on first Open.
func NewChromium(cfg config.BrowserConfig, log *zap.Logger) *Chromium {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chromium{cfg: cfg, log: log}
}

// Name implements timetable.Backend.
func (c *Chromium) Name() string { return "chromium" }

// Start connects to an existing chromium or launches a new one.
func (c *Chromium) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Chromium) startLocked(ctx context.Context) error {
	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		c.log.Warn("stale browser connection, reconnecting")
		_ = c.browser.Close()
		c.browser = nil
	}

	controlURL := c.cfg.DebuggerURL
	if controlURL == "" {
		launch := launcher.New().Headless(c.cfg.Headless)
		if c.cfg.Bin != "" {
			launch = launch.Bin(c.cfg.Bin)
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chromium: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chromium: %w", err)
	}

	c.browser = browser
	c.log.Debug("connected to chromium", zap.String("control_url", controlURL))
	return nil
}

func (c *Chromium) ensureStarted(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return nil
	}
	return c.startLocked(ctx)
}

// Open implements timetable.Backend: a fresh incognito page navigated to
// the URL, viewport pinned so geometry is reproducible.
func (c *Chromium) Open(ctx context.Context, url string) (timetable.PageHandle, error) {
	if err := c.ensureStarted(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	browser := c.browser
	c.mu.Unlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.ViewportWidth,
		Height:            c.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		c.log.Warn("failed to set viewport", zap.Error(err))
	}
	if c.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.cfg.UserAgent}); err != nil {
			c.log.Warn("failed to set user agent", zap.Error(err))
		}
	}

	if err := page.Context(ctx).Timeout(c.cfg.NavigationTimeout()).Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	handle := &chromiumPage{id: uuid.NewString(), page: page}
	c.log.Debug("page opened", zap.String("page", handle.id), zap.String("url", url))
	return handle, nil
}

// Shutdown closes the shared browser process.
func (c *Chromium) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	return err
}

type chromiumPage struct {
	id   string
	page *rod.Page
}

func (p *chromiumPage) ID() string { return p.id }

func (p *chromiumPage) Close() error { return p.page.Close() }

// elementCaptureJS reports document-space geometry plus inner text for
// every element matching a selector.
const elementCaptureJS = `
(selector) => {
	return Array.from(document.querySelectorAll(selector)).map((el, idx) => {
		const rect = el.getBoundingClientRect();
		return {
			id: el.id || ('node_' + idx),
			left: rect.x + window.scrollX,
			top: rect.y + window.scrollY,
			width: rect.width,
			height: rect.height,
			text: el.innerText || ''
		};
	});
}
`

// Query implements timetable.PageHandle.
func (p *chromiumPage) Query(ctx context.Context, selector string) ([]timetable.Element, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           elementCaptureJS,
		JSArgs:       []interface{}{selector},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate element capture: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal element capture: %w", err)
	}

	var nodes []struct {
		ID     string  `json:"id"`
		Left   float64 `json:"left"`
		Top    float64 `json:"top"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
		Text   string  `json:"text"`
	}
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("decode element capture: %w", err)
	}

	els := make([]timetable.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, timetable.Element{
			NodeID: n.ID,
			Box: timetable.BoundingBox{
				Left:   n.Left,
				Top:    n.Top,
				Width:  n.Width,
				Height: n.Height,
			},
			Text: strings.ReplaceAll(n.Text, "\r\n", "\n"),
		})
	}
	return els, nil
}
