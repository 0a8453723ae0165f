package timetable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine runs the reconstruction pipeline against one of two
// interchangeable page backends. Each call starts fresh at the primary
// backend and may transition to the fallback exactly once; no backend
// preference persists across calls.
type Engine struct {
	primary   Backend
	fallback  Backend
	selectors Selectors

	openTimeout  time.Duration
	renderWait   time.Duration
	pollInterval time.Duration

	log *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithSelectors overrides the grid selectors.
func WithSelectors(sel Selectors) Option {
	return func(e *Engine) { e.selectors = sel }
}

// WithOpenTimeout bounds page acquisition per backend.
func WithOpenTimeout(d time.Duration) Option {
	return func(e *Engine) { e.openTimeout = d }
}

// WithRenderWait bounds the extractor's poll for the rendered grid.
func WithRenderWait(wait, interval time.Duration) Option {
	return func(e *Engine) {
		e.renderWait = wait
		e.pollInterval = interval
	}
}

// DefaultSelectors matches the everytime.kr timetable widget markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Container: ".wrap .tablebody",
		Block:     ".subject",
		Axis:      ".hours .hour",
	}
}

// NewEngine builds an engine over a primary and a fallback backend.
func NewEngine(primary, fallback Backend, opts ...Option) *Engine {
	e := &Engine{
		primary:      primary,
		fallback:     fallback,
		selectors:    DefaultSelectors(),
		openTimeout:  30 * time.Second,
		renderWait:   10 * time.Second,
		pollInterval: 250 * time.Millisecond,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestOption adjusts a single Reconstruct call.
type RequestOption func(*request)

type request struct {
	preferred string
}

// PreferBackend hints which backend to try first for this call only. An
// unknown name leaves the default order.
func PreferBackend(name string) RequestOption {
	return func(r *request) { r.preferred = name }
}

// Reconstruct recovers the weekly schedule behind one timetable URL. The
// page handle acquired for each attempt is released on every exit path,
// including timeout and cancellation. Per-block anomalies never abort the
// request; page-level failures trigger the fallback backend once, after
// which the call fails with both reasons attached.
func (e *Engine) Reconstruct(ctx context.Context, url string, opts ...RequestOption) (*Result, error) {
	if err := ValidateURL(url); err != nil {
		return nil, err
	}

	var req request
	for _, opt := range opts {
		opt(&req)
	}
	order := []Backend{e.primary, e.fallback}
	if e.fallback != nil && req.preferred == e.fallback.Name() {
		order = []Backend{e.fallback, e.primary}
	}

	trace := uuid.NewString()
	log := e.log.With(zap.String("trace", trace), zap.String("url", url))

	var attemptErrs []error
	for i, backend := range order {
		if backend == nil {
			attemptErrs = append(attemptErrs, errors.New("backend not configured"))
			continue
		}
		res, err := e.runOnce(ctx, backend, url, log)
		if err == nil {
			return res, nil
		}
		// Cancellation is the caller's decision, not a backend failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		attemptErrs = append(attemptErrs, err)
		if i == 0 {
			log.Warn("backend failed, transitioning to fallback",
				zap.String("backend", backend.Name()), zap.Error(err))
		}
	}

	return nil, &TimetableUnavailableError{Primary: attemptErrs[0], Fallback: attemptErrs[len(attemptErrs)-1]}
}

// runOnce executes the full pipeline against a single backend. The page
// is a scoped resource: closed before return on every path.
func (e *Engine) runOnce(ctx context.Context, backend Backend, url string, log *zap.Logger) (*Result, error) {
	log = log.With(zap.String("backend", backend.Name()))

	openCtx, cancel := context.WithTimeout(ctx, e.openTimeout)
	defer cancel()
	page, err := backend.Open(openCtx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire page: %w", backend.Name(), err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Warn("page close failed", zap.String("page", page.ID()), zap.Error(cerr))
		}
	}()

	snap, err := ExtractSnapshot(ctx, page, e.selectors, e.renderWait, e.pollInterval, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", backend.Name(), err)
	}

	cal, err := Calibrate(snap.Container, snap.TimeRefs, snap.ColumnSeparators)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", backend.Name(), err)
	}
	log.Debug("grid calibrated",
		zap.Float64("minutes_per_unit", cal.MinutesPerUnit),
		zap.Float64("time_origin", cal.TimeOriginOffset),
		zap.Float64("day_column_width", cal.DayColumnWidth))

	anomalies := 0
	parsed := make([]ParsedSlot, 0, len(snap.Blocks))
	for _, block := range snap.Blocks {
		slot, err := MapBlock(block, cal)
		if err != nil {
			anomalies++
			log.Warn("block dropped during mapping", zap.Error(err))
			continue
		}
		fields, ok := Disambiguate(slot.Lines)
		if !ok {
			anomalies++
			log.Warn("block dropped: no course name",
				zap.String("node", slot.NodeID), zap.Strings("lines", slot.Lines))
			continue
		}
		parsed = append(parsed, ParsedSlot{
			DayIndex:    slot.DayIndex,
			StartMinute: slot.StartMinute,
			EndMinute:   slot.EndMinute,
			Fields:      fields,
		})
	}

	entries, dropped := Merge(parsed)
	anomalies += dropped

	msg := "timetable parsed successfully"
	if anomalies > 0 {
		msg = fmt.Sprintf("timetable parsed with %d dropped blocks", anomalies)
	}
	log.Info("reconstruction complete",
		zap.Int("entries", len(entries)), zap.Int("anomalies", anomalies))

	return &Result{
		Entries:      entries,
		Message:      msg,
		AnomalyCount: anomalies,
		Backend:      backend.Name(),
	}, nil
}
