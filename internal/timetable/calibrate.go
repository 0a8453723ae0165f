package timetable

import (
	"fmt"
	"math"
	"sort"
)

// Plausibility bounds for the derived time scale. One height unit outside
// this range cannot belong to a real timetable grid.
const (
	minMinutesPerUnit = 0.1
	maxMinutesPerUnit = 10.0
)

const (
	fullDayMinutes = 24 * 60

	// roundTripTolerance bounds how far the minutes spanned by the full
	// container height may deviate from a 24-hour day. A calibration
	// error propagates multiplicatively into every derived time, so the
	// mapping is sanity-checked before it is used.
	roundTripTolerance = 0.25

	// columnWidthTolerance bounds the disagreement between explicit
	// column separators and equal division of the container width.
	columnWidthTolerance = 0.05
)

// Calibrate derives the pixel/percent-to-time mapping for one page from
// the container's own box and the time-axis references found inside it.
// separators, when non-empty, are the x positions of explicit day column
// boundaries; otherwise the width is divided into seven equal columns.
func Calibrate(container BoundingBox, refs []TimeReference, separators []float64) (*GridCalibration, error) {
	if container.Width <= 0 || container.Height <= 0 {
		return nil, &CalibrationError{Reason: fmt.Sprintf("degenerate container %gx%g", container.Width, container.Height)}
	}

	distinct := distinctReferences(refs)
	if len(distinct) < 2 {
		return nil, &CalibrationError{Reason: fmt.Sprintf("need at least 2 distinct time references, got %d", len(distinct))}
	}

	// Linear interpolation between the outermost references.
	first, last := distinct[0], distinct[len(distinct)-1]
	scale := float64(last.Minute-first.Minute) / (last.Offset - first.Offset)
	if scale <= 0 {
		return nil, &CalibrationError{Reason: fmt.Sprintf("non-positive scale %.4f min/unit", scale)}
	}
	if scale < minMinutesPerUnit || scale > maxMinutesPerUnit {
		return nil, &CalibrationError{Reason: fmt.Sprintf("implausible scale %.4f min/unit", scale)}
	}
	origin := float64(first.Minute) - first.Offset*scale

	columnWidth, err := columnWidth(container.Width, separators)
	if err != nil {
		return nil, err
	}

	cal := &GridCalibration{
		ContainerWidth:   container.Width,
		ContainerHeight:  container.Height,
		DayColumnCount:   DayColumnCount,
		DayColumnWidth:   columnWidth,
		TimeOriginOffset: origin,
		MinutesPerUnit:   scale,
	}

	// Round-trip sanity check: the full container height must span
	// approximately one day.
	span := cal.MinuteAt(container.Height) - cal.MinuteAt(0)
	if math.Abs(span-fullDayMinutes) > roundTripTolerance*fullDayMinutes {
		return nil, &CalibrationError{Reason: fmt.Sprintf("container height spans %.0f minutes, expected ~%d", span, fullDayMinutes)}
	}

	return cal, nil
}

// distinctReferences sorts references by offset and drops duplicates that
// would make interpolation degenerate.
func distinctReferences(refs []TimeReference) []TimeReference {
	sorted := make([]TimeReference, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	out := sorted[:0]
	for _, r := range sorted {
		if len(out) > 0 && math.Abs(r.Offset-out[len(out)-1].Offset) < 1e-9 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func columnWidth(containerWidth float64, separators []float64) (float64, error) {
	equal := containerWidth / DayColumnCount
	if len(separators) < 2 {
		return equal, nil
	}

	sorted := make([]float64, len(separators))
	copy(sorted, separators)
	sort.Float64s(sorted)

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		if g := sorted[i] - sorted[i-1]; g > 0 {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return equal, nil
	}
	sort.Float64s(gaps)
	width := gaps[len(gaps)/2]

	// dayColumnWidth x 7 must reproduce the container width.
	if math.Abs(width*DayColumnCount-containerWidth) > columnWidthTolerance*containerWidth {
		return 0, &CalibrationError{Reason: fmt.Sprintf("separator column width %.1f disagrees with container width %.1f", width, containerWidth)}
	}
	return width, nil
}
