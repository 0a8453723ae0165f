package timetable

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Snapshot is everything the downstream stages need from one page: the
// container box, normalized blocks, and the calibration anchors.
type Snapshot struct {
	Container        BoundingBox
	Blocks           []RawBlock
	TimeRefs         []TimeReference
	ColumnSeparators []float64
}

// ExtractSnapshot observes the rendered grid on a live page. The grid is
// JavaScript-rendered, so the container and its blocks are polled at a
// fixed interval until they appear or the render wait lapses; the wait is
// intrinsic to observing the page, not to loading it. Blocks with zero
// width or height are invisible placeholders and are excluded.
func ExtractSnapshot(ctx context.Context, page PageHandle, sel Selectors, renderWait, pollInterval time.Duration, log *zap.Logger) (*Snapshot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	attempts := uint(renderWait / pollInterval)
	if attempts == 0 {
		attempts = 1
	}

	var container Element
	var blocks []Element
	err := retry.Do(
		func() error {
			containers, err := page.Query(ctx, sel.Container)
			if err != nil {
				return fmt.Errorf("query container: %w", err)
			}
			if len(containers) == 0 {
				return fmt.Errorf("container %q not present", sel.Container)
			}
			container = containers[0]

			blocks, err = page.Query(ctx, sel.Block)
			if err != nil {
				return fmt.Errorf("query blocks: %w", err)
			}
			if len(blocks) == 0 {
				return fmt.Errorf("no blocks under %q", sel.Block)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, &ExtractionError{Reason: "grid did not render within the wait budget", Err: err}
	}

	axis, err := page.Query(ctx, sel.Axis)
	if err != nil {
		return nil, &ExtractionError{Reason: "query time axis", Err: err}
	}

	var separators []float64
	if sel.Separator != "" {
		seps, err := page.Query(ctx, sel.Separator)
		if err != nil {
			return nil, &ExtractionError{Reason: "query column separators", Err: err}
		}
		for _, el := range seps {
			separators = append(separators, el.Box.Left-container.Box.Left)
		}
	}

	snap := &Snapshot{
		Container:        BoundingBox{Width: container.Box.Width, Height: container.Box.Height},
		Blocks:           NormalizeBlocks(container.Box, blocks),
		TimeRefs:         ParseTimeReferences(container.Box, axis),
		ColumnSeparators: separators,
	}
	log.Debug("extracted page snapshot",
		zap.String("page", page.ID()),
		zap.Int("blocks", len(snap.Blocks)),
		zap.Int("time_refs", len(snap.TimeRefs)),
		zap.Int("separators", len(snap.ColumnSeparators)))
	return snap, nil
}

// NormalizeBlocks rebases element geometry onto the container origin,
// splits text into ordered lines, and drops zero-size placeholders.
func NormalizeBlocks(container BoundingBox, els []Element) []RawBlock {
	out := make([]RawBlock, 0, len(els))
	for _, el := range els {
		if el.Box.Width <= 0 || el.Box.Height <= 0 {
			continue
		}
		out = append(out, RawBlock{
			NodeID: el.NodeID,
			Box: BoundingBox{
				Left:   el.Box.Left - container.Left,
				Top:    el.Box.Top - container.Top,
				Width:  el.Box.Width,
				Height: el.Box.Height,
			},
			Lines: textLines(el.Text),
		})
	}
	return out
}

// ParseTimeReferences turns axis label elements into calibration anchors.
// Labels that do not read as a clock time are ignored.
func ParseTimeReferences(container BoundingBox, els []Element) []TimeReference {
	refs := make([]TimeReference, 0, len(els))
	for _, el := range els {
		minute, ok := ParseClockLabel(el.Text)
		if !ok {
			continue
		}
		refs = append(refs, TimeReference{Minute: minute, Offset: el.Box.Top - container.Top})
	}
	return refs
}

func textLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

var clockLabel = regexp.MustCompile(`^\s*(\d{1,2})(?::(\d{2}))?\s*(?:시)?\s*$`)

// ParseClockLabel reads "09:00", "9", or "9시" style axis labels as a
// minute of day.
func ParseClockLabel(text string) (int, bool) {
	m := clockLabel.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 24 {
		return 0, false
	}
	minute := 0
	if m[2] != "" {
		if minute, err = strconv.Atoi(m[2]); err != nil || minute > 59 {
			return 0, false
		}
	}
	return hour*60 + minute, true
}
