package timetable

import (
	"fmt"
	"math"
)

// SnapMinutes is the time granularity blocks are snapped to. Sub-pixel
// rendering noise moves block edges by a minute or two; snapping absorbs
// it. Ties round down.
const SnapMinutes = 5

// columnBleedTolerance is how far a block may overhang its day column, as
// a fraction of the column width, before it counts as spanning multiple
// days and is dropped.
const columnBleedTolerance = 0.10

// snapMinute rounds to the nearest snap boundary with ties rounding down.
func snapMinute(minute float64) int {
	return int(math.Ceil(minute/SnapMinutes-0.5)) * SnapMinutes
}

// MapBlock converts a block's bounding box into a candidate slot via the
// calibrated grid. A non-nil error is a per-block anomaly, never fatal to
// the page: the block is dropped and counted.
func MapBlock(block RawBlock, cal *GridCalibration) (*CandidateSlot, error) {
	day := int(math.Floor(block.Box.Left / cal.DayColumnWidth))
	if day < 0 {
		day = 0
	}
	if day >= cal.DayColumnCount {
		day = cal.DayColumnCount - 1
	}

	// A block bleeding well past its column boundary means the page is
	// rendering something this calibration cannot express. Splitting it
	// across days is not attempted.
	right := block.Box.Left + block.Box.Width
	columnRight := float64(day+1) * cal.DayColumnWidth
	if right > columnRight+columnBleedTolerance*cal.DayColumnWidth {
		return nil, fmt.Errorf("block %s spans multiple day columns (right edge %.1f, column ends %.1f)", block.NodeID, right, columnRight)
	}

	start := snapMinute(cal.MinuteAt(block.Box.Top))
	end := snapMinute(cal.MinuteAt(block.Box.Top + block.Box.Height))

	if end <= start {
		return nil, fmt.Errorf("block %s has non-positive duration (%d..%d)", block.NodeID, start, end)
	}
	if start < 0 || end > fullDayMinutes {
		return nil, fmt.Errorf("block %s maps outside the day (%d..%d)", block.NodeID, start, end)
	}

	return &CandidateSlot{
		NodeID:      block.NodeID,
		DayIndex:    day,
		StartMinute: start,
		EndMinute:   end,
		Lines:       block.Lines,
	}, nil
}
