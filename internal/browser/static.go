package browser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windopper/gradia-backend/internal/config"
	"github.com/windopper/gradia-backend/internal/timetable"
)

// Legacy fixed-scale layout: the server-rendered timetable positions
// blocks with inline styles at 50px per hour from midnight and fixed-width
// day columns.
const (
	legacyHourHeight     = 50.0
	legacyColumnWidth    = 100.0
	legacyGridWidth      = legacyColumnWidth * timetable.DayColumnCount
	legacyGridHeight     = legacyHourHeight * 24
	legacyMinutesPerUnit = 60.0 / legacyHourHeight
)

// Static is the fallback backend: it fetches the page over plain HTTP and
// reconstructs block geometry from the inline styles of the
// server-rendered markup. No JavaScript runs, so pages that only render
// the grid client-side fail extraction here and the error surfaces as
// both backends exhausted.
type Static struct {
	cfg       config.BrowserConfig
	selectors timetable.Selectors
	log       *zap.Logger
}

// NewStatic creates the static backend. It needs the engine's selector
// set so page queries can be routed to the right synthetic geometry.
func NewStatic(cfg config.BrowserConfig, selectors timetable.Selectors, log *zap.Logger) *Static {
	if log == nil {
		log = zap.NewNop()
	}
	return &Static{cfg: cfg, selectors: selectors, log: log}
}

// Name implements timetable.Backend.
func (s *Static) Name() string { return "static" }

// Open implements timetable.Backend: one bounded HTTP fetch, parsed into
// an in-memory document.
func (s *Static) Open(ctx context.Context, url string) (timetable.PageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := s.cfg.NavigationTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	c := colly.NewCollector(colly.UserAgent(s.cfg.UserAgent))
	c.SetRequestTimeout(timeout)

	var doc *goquery.Document
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		doc, fetchErr = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	c.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if doc == nil {
		return nil, fmt.Errorf("fetch %s: empty response", url)
	}

	handle := &staticPage{id: uuid.NewString(), doc: doc, selectors: s.selectors}
	s.log.Debug("static page fetched", zap.String("page", handle.id), zap.String("url", url))
	return handle, nil
}

type staticPage struct {
	id        string
	doc       *goquery.Document
	selectors timetable.Selectors
}

func (p *staticPage) ID() string { return p.id }

// Close is a no-op: the document is plain memory.
func (p *staticPage) Close() error { return nil }

// Query implements timetable.PageHandle. Static HTML has no computed
// layout, so geometry is synthesized from the legacy grid constants and
// the inline style attributes the server emits.
func (p *staticPage) Query(_ context.Context, selector string) ([]timetable.Element, error) {
	switch selector {
	case p.selectors.Container:
		return p.queryContainer()
	case p.selectors.Axis:
		return p.queryAxis()
	case p.selectors.Separator:
		return p.querySeparators()
	default:
		return p.queryBlocks(selector)
	}
}

func (p *staticPage) queryContainer() ([]timetable.Element, error) {
	if p.doc.Find(p.selectors.Container).Length() == 0 {
		return nil, nil
	}
	return []timetable.Element{{
		NodeID: "grid",
		Box:    timetable.BoundingBox{Width: legacyGridWidth, Height: legacyGridHeight},
	}}, nil
}

// queryAxis returns hour-gutter labels with offsets synthesized on the
// legacy midnight-origin scale: block tops measure from 00:00 at 50px
// per hour, so a "9시" label sits at 450, not at its gutter row index.
// When fewer than two labels parse, the two endpoints of the fixed grid
// anchor the calibration instead.
func (p *staticPage) queryAxis() ([]timetable.Element, error) {
	var els []timetable.Element
	p.doc.Find(p.selectors.Axis).Each(func(i int, sel *goquery.Selection) {
		label := strings.TrimSpace(sel.Text())
		minute, ok := timetable.ParseClockLabel(label)
		if !ok {
			return
		}
		els = append(els, timetable.Element{
			NodeID: fmt.Sprintf("hour_%d", i),
			Box:    timetable.BoundingBox{Top: float64(minute) / legacyMinutesPerUnit, Width: legacyColumnWidth, Height: legacyHourHeight},
			Text:   label,
		})
	})
	if len(els) < 2 {
		els = []timetable.Element{
			{NodeID: "origin", Box: timetable.BoundingBox{Top: 0, Width: 1, Height: 1}, Text: "00:00"},
			{NodeID: "span", Box: timetable.BoundingBox{Top: legacyGridHeight, Width: 1, Height: 1}, Text: "24:00"},
		}
	}
	return els, nil
}

// querySeparators reports the fixed day column boundaries of the legacy
// layout, one per column edge.
func (p *staticPage) querySeparators() ([]timetable.Element, error) {
	els := make([]timetable.Element, 0, timetable.DayColumnCount+1)
	for i := 0; i <= timetable.DayColumnCount; i++ {
		els = append(els, timetable.Element{
			NodeID: fmt.Sprintf("sep_%d", i),
			Box:    timetable.BoundingBox{Left: float64(i) * legacyColumnWidth, Width: 1, Height: legacyGridHeight},
		})
	}
	return els, nil
}

func (p *staticPage) queryBlocks(selector string) ([]timetable.Element, error) {
	var els []timetable.Element
	p.doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
		top, height, ok := parsePixelStyle(sel.AttrOr("style", ""))
		if !ok {
			return
		}
		day := dayColumnIndex(sel)
		if day < 0 {
			return
		}
		id, has := sel.Attr("id")
		if !has {
			id = fmt.Sprintf("node_%d", i)
		}
		els = append(els, timetable.Element{
			NodeID: id,
			Box: timetable.BoundingBox{
				Left:   float64(day) * legacyColumnWidth,
				Top:    top,
				Width:  legacyColumnWidth,
				Height: height,
			},
			Text: blockText(sel),
		})
	})
	return els, nil
}

// blockText flattens a block's child fragments into newline-joined lines,
// preserving document order.
func blockText(sel *goquery.Selection) string {
	children := sel.Children()
	if children.Length() == 0 {
		return strings.TrimSpace(sel.Text())
	}
	var lines []string
	children.Each(func(_ int, child *goquery.Selection) {
		if t := strings.TrimSpace(child.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	return strings.Join(lines, "\n")
}

// dayColumnIndex finds which day column a block sits in: the index of its
// enclosing cell among the day cells of its row, skipping the hour
// gutter.
func dayColumnIndex(sel *goquery.Selection) int {
	cell := sel.Closest("td")
	if cell.Length() == 0 {
		return -1
	}
	day := 0
	prev := cell.PrevAll()
	prev.Each(func(_ int, sib *goquery.Selection) {
		if sib.HasClass("hours") || sib.Find(".hour").Length() > 0 {
			return
		}
		day++
	})
	if day >= timetable.DayColumnCount {
		return -1
	}
	return day
}

// parsePixelStyle decodes the inline "height: Hpx; top: Tpx" pair the
// server renders on every block.
func parsePixelStyle(style string) (top, height float64, ok bool) {
	var haveTop, haveHeight bool
	for _, part := range strings.Split(style, ";") {
		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(strings.ToLower(key))
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "px"))
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		switch key {
		case "top":
			top, haveTop = n, true
		case "height":
			height, haveHeight = n, true
		}
	}
	return top, height, haveTop && haveHeight
}
