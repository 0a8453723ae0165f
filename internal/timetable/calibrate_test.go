package timetable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalibrateFromAxisReferences(t *testing.T) {
	container := BoundingBox{Width: 700, Height: 1200}
	refs := []TimeReference{
		{Minute: 9 * 60, Offset: 100},
		{Minute: 18 * 60, Offset: 640},
	}

	cal, err := Calibrate(container, refs, nil)
	require.NoError(t, err)

	require.InDelta(t, 1.0, cal.MinutesPerUnit, 1e-9)
	require.InDelta(t, 540, cal.MinuteAt(100), 1e-9)
	require.InDelta(t, 1080, cal.MinuteAt(640), 1e-9)
	require.Equal(t, DayColumnCount, cal.DayColumnCount)
	require.InDelta(t, container.Width, cal.DayColumnWidth*DayColumnCount, 1e-6)
}

func TestCalibrateLegacyGrid(t *testing.T) {
	// 50px per hour from midnight, the fixed server-rendered layout.
	container := BoundingBox{Width: 700, Height: 1200}
	refs := []TimeReference{
		{Minute: 0, Offset: 0},
		{Minute: 12 * 60, Offset: 600},
	}

	cal, err := Calibrate(container, refs, nil)
	require.NoError(t, err)
	require.InDelta(t, 1.2, cal.MinutesPerUnit, 1e-9)
	require.InDelta(t, 0, cal.TimeOriginOffset, 1e-9)
	require.InDelta(t, 540, cal.MinuteAt(450), 1e-9)
}

func TestCalibrateRejections(t *testing.T) {
	container := BoundingBox{Width: 700, Height: 1200}

	tests := []struct {
		name      string
		container BoundingBox
		refs      []TimeReference
	}{
		{
			name:      "single reference",
			container: container,
			refs:      []TimeReference{{Minute: 540, Offset: 100}},
		},
		{
			name:      "duplicate offsets",
			container: container,
			refs: []TimeReference{
				{Minute: 540, Offset: 100},
				{Minute: 600, Offset: 100},
			},
		},
		{
			name:      "non-positive scale",
			container: container,
			refs: []TimeReference{
				{Minute: 1080, Offset: 100},
				{Minute: 540, Offset: 640},
			},
		},
		{
			name:      "implausibly flat scale",
			container: container,
			refs: []TimeReference{
				{Minute: 540, Offset: 0},
				{Minute: 545, Offset: 1000},
			},
		},
		{
			name:      "round trip disagrees with container height",
			container: BoundingBox{Width: 700, Height: 5000},
			refs: []TimeReference{
				{Minute: 540, Offset: 100},
				{Minute: 1080, Offset: 640},
			},
		},
		{
			name:      "degenerate container",
			container: BoundingBox{Width: 0, Height: 0},
			refs: []TimeReference{
				{Minute: 540, Offset: 100},
				{Minute: 1080, Offset: 640},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calibrate(tt.container, tt.refs, nil)
			var calErr *CalibrationError
			require.ErrorAs(t, err, &calErr)
		})
	}
}

func TestCalibrateWithColumnSeparators(t *testing.T) {
	container := BoundingBox{Width: 700, Height: 1200}
	refs := []TimeReference{
		{Minute: 0, Offset: 0},
		{Minute: 12 * 60, Offset: 600},
	}

	seps := []float64{0, 100, 200, 300, 400, 500, 600, 700}
	cal, err := Calibrate(container, refs, seps)
	require.NoError(t, err)
	require.InDelta(t, 100, cal.DayColumnWidth, 1e-9)

	// Separators that cannot reproduce the container width are a
	// calibration failure, not something to silently average away.
	bad := []float64{0, 50, 100, 150}
	_, err = Calibrate(container, refs, bad)
	var calErr *CalibrationError
	require.ErrorAs(t, err, &calErr)
}
