package timetable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	name    string
	page    *fakePage
	openErr error
	opened  int
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Open(ctx context.Context, url string) (PageHandle, error) {
	b.opened++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.page, nil
}

const testURL = "https://everytime.kr/@abc123"

func newTestEngine(primary, fallback Backend) *Engine {
	return NewEngine(primary, fallback,
		WithSelectors(testSelectors),
		WithRenderWait(50*time.Millisecond, 10*time.Millisecond),
		WithOpenTimeout(time.Second),
	)
}

func healthyPage(id string) *fakePage {
	return &fakePage{
		id: id,
		elements: legacyPageElements([]Element{
			{NodeID: "b1", Box: BoundingBox{Left: 110, Top: 470, Width: 95, Height: 100}, Text: "Algorithms\nRoom 304\nProf. Kim"},
		}),
	}
}

func TestReconstruct(t *testing.T) {
	primary := &fakeBackend{name: "chromium", page: healthyPage("p1")}
	fallback := &fakeBackend{name: "static", page: healthyPage("p2")}
	engine := newTestEngine(primary, fallback)

	result, err := engine.Reconstruct(context.Background(), testURL)
	require.NoError(t, err)

	require.Equal(t, "chromium", result.Backend)
	require.Zero(t, result.AnomalyCount)
	require.Len(t, result.Entries, 1)
	require.Equal(t, ScheduleEntry{
		Day:        "Tuesday",
		StartTime:  "09:00",
		EndTime:    "11:00",
		CourseName: "Algorithms",
		Room:       "Room 304",
		Professor:  "Prof. Kim",
	}, result.Entries[0])

	require.Equal(t, 1, primary.opened)
	require.Zero(t, fallback.opened)
	require.True(t, primary.page.closed, "page must be released on success")
}

func TestReconstructRejectsForeignURL(t *testing.T) {
	primary := &fakeBackend{name: "chromium", page: healthyPage("p1")}
	engine := newTestEngine(primary, &fakeBackend{name: "static"})

	for _, url := range []string{"", "ftp://everytime.kr/@abc", "https://example.com/@abc"} {
		_, err := engine.Reconstruct(context.Background(), url)
		require.ErrorIs(t, err, ErrInvalidURL, "url %q", url)
	}
	require.Zero(t, primary.opened, "invalid URLs must not touch a backend")
}

func TestReconstructFallsBackOnExtractionFailure(t *testing.T) {
	// Primary renders a page with no grid at all.
	primary := &fakeBackend{name: "chromium", page: &fakePage{id: "p1", elements: map[string][]Element{}}}
	fallback := &fakeBackend{name: "static", page: healthyPage("p2")}
	engine := newTestEngine(primary, fallback)

	result, err := engine.Reconstruct(context.Background(), testURL)
	require.NoError(t, err)
	require.Equal(t, "static", result.Backend)
	require.Equal(t, 1, primary.opened)
	require.Equal(t, 1, fallback.opened)
	require.True(t, primary.page.closed, "failed page must still be released")
}

func TestReconstructFallsBackOnCalibrationFailure(t *testing.T) {
	// Grid renders but carries a single time reference: a site/version
	// mismatch the fallback backend may not share.
	broken := &fakePage{
		id: "p1",
		elements: map[string][]Element{
			testSelectors.Container: {{NodeID: "grid", Box: BoundingBox{Width: 700, Height: 1200}}},
			testSelectors.Axis:      {{NodeID: "h0", Box: BoundingBox{Top: 0, Width: 20, Height: 10}, Text: "00:00"}},
			testSelectors.Block: {
				{NodeID: "b1", Box: BoundingBox{Left: 10, Top: 470, Width: 95, Height: 100}, Text: "Algorithms"},
			},
		},
	}
	primary := &fakeBackend{name: "chromium", page: broken}
	fallback := &fakeBackend{name: "static", page: healthyPage("p2")}
	engine := newTestEngine(primary, fallback)

	result, err := engine.Reconstruct(context.Background(), testURL)
	require.NoError(t, err)
	require.Equal(t, "static", result.Backend)
	require.True(t, broken.closed)
}

func TestReconstructFailsWithBothReasons(t *testing.T) {
	primary := &fakeBackend{name: "chromium", openErr: errors.New("chrome refused to start")}
	fallback := &fakeBackend{name: "static", page: &fakePage{id: "p2", elements: map[string][]Element{}}}
	engine := newTestEngine(primary, fallback)

	_, err := engine.Reconstruct(context.Background(), testURL)

	var unavailable *TimetableUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Error(t, unavailable.Primary)
	require.Error(t, unavailable.Fallback)
	require.NotEqual(t, unavailable.Primary.Error(), unavailable.Fallback.Error())

	var extErr *ExtractionError
	require.ErrorAs(t, unavailable.Fallback, &extErr)
}

func TestReconstructPrefersHintedBackend(t *testing.T) {
	primary := &fakeBackend{name: "chromium", page: healthyPage("p1")}
	fallback := &fakeBackend{name: "static", page: healthyPage("p2")}
	engine := newTestEngine(primary, fallback)

	result, err := engine.Reconstruct(context.Background(), testURL, PreferBackend("static"))
	require.NoError(t, err)
	require.Equal(t, "static", result.Backend)
	require.Zero(t, primary.opened)

	// The hint does not persist: the next call starts at the primary.
	result, err = engine.Reconstruct(context.Background(), testURL)
	require.NoError(t, err)
	require.Equal(t, "chromium", result.Backend)
}

func TestReconstructReturnsCancellationNotFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &fakeBackend{name: "chromium", page: healthyPage("p1")}
	fallback := &fakeBackend{name: "static", page: healthyPage("p2")}
	engine := newTestEngine(primary, fallback)

	_, err := engine.Reconstruct(ctx, testURL)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, fallback.opened, "cancellation must not trigger fallback")
}

func TestReconstructMergesRenderingJitter(t *testing.T) {
	// The same class painted twice with <=5px vertical jitter must come
	// out as exactly one entry with zero net anomalies.
	text := "Algorithms\nRoom 304\nProf. Kim"
	page := &fakePage{
		id: "p1",
		elements: legacyPageElements([]Element{
			{NodeID: "b1", Box: BoundingBox{Left: 110, Top: 470, Width: 95, Height: 100}, Text: text},
			{NodeID: "b2", Box: BoundingBox{Left: 110, Top: 475, Width: 95, Height: 100}, Text: text},
		}),
	}
	primary := &fakeBackend{name: "chromium", page: page}
	engine := newTestEngine(primary, &fakeBackend{name: "static"})

	result, err := engine.Reconstruct(context.Background(), testURL)
	require.NoError(t, err)
	require.Zero(t, result.AnomalyCount)
	require.Len(t, result.Entries, 1)
	require.Equal(t, "09:00", result.Entries[0].StartTime)
	require.Equal(t, "11:05", result.Entries[0].EndTime)
}

func TestReconstructCountsAnomaliesWithoutFailing(t *testing.T) {
	page := &fakePage{
		id: "p1",
		elements: legacyPageElements([]Element{
			{NodeID: "good", Box: BoundingBox{Left: 110, Top: 470, Width: 95, Height: 100}, Text: "Algorithms"},
			// Spans two day columns: dropped, counted.
			{NodeID: "wide", Box: BoundingBox{Left: 150, Top: 470, Width: 200, Height: 100}, Text: "Phantom"},
		}),
	}
	primary := &fakeBackend{name: "chromium", page: page}
	engine := newTestEngine(primary, &fakeBackend{name: "static"})

	result, err := engine.Reconstruct(context.Background(), testURL)
	require.NoError(t, err)
	require.Equal(t, 1, result.AnomalyCount)
	require.Len(t, result.Entries, 1)
	require.Contains(t, result.Message, "1 dropped")
}
