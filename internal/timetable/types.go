// Package timetable reconstructs a structured weekly class schedule from
// the rendered geometry of a scraped timetable widget. The source markup
// carries no semantic tags, so day and time are recovered from bounding
// boxes via a per-page grid calibration, and course/room/professor from
// loosely ordered text fragments.
//
// The pipeline is strictly downstream: extractor -> calibrator -> mapper
// -> disambiguator -> merger. Every stage is a pure function of its
// inputs; only the page backends touch a live browser.
package timetable

import (
	"context"
	"fmt"
)

// DayColumnCount is the number of day columns in the rendered grid,
// Monday first.
const DayColumnCount = 7

var dayNames = [DayColumnCount]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// DayName returns the canonical name for a day column index.
func DayName(index int) string {
	if index < 0 || index >= DayColumnCount {
		return ""
	}
	return dayNames[index]
}

// BoundingBox is element geometry in one consistent unit per page,
// relative to the grid container's origin.
type BoundingBox struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Element is one DOM node as reported by a page backend: absolute
// geometry plus raw inner text.
type Element struct {
	NodeID string
	Box    BoundingBox
	Text   string
}

// RawBlock is one scheduled-block element after normalization: geometry
// relative to the container and text split into ordered lines. Produced
// once per page load and discarded after mapping.
type RawBlock struct {
	NodeID string
	Box    BoundingBox
	Lines  []string
}

// TimeReference anchors a vertical offset inside the container to a
// minute of day, taken from a time-axis label.
type TimeReference struct {
	Minute int
	Offset float64
}

// GridCalibration maps container-relative geometry to (day, minute).
// Computed once per page.
type GridCalibration struct {
	ContainerWidth   float64
	ContainerHeight  float64
	DayColumnCount   int
	DayColumnWidth   float64
	TimeOriginOffset float64
	MinutesPerUnit   float64
}

// MinuteAt converts a vertical offset to a minute of day.
func (c *GridCalibration) MinuteAt(offset float64) float64 {
	return c.TimeOriginOffset + offset*c.MinutesPerUnit
}

// CandidateSlot is a block mapped onto the calendar grid, not yet merged
// or validated.
type CandidateSlot struct {
	NodeID      string
	DayIndex    int
	StartMinute int
	EndMinute   int
	Lines       []string
}

// Fields is the disambiguated text of one block. Room and Professor are
// optional; an empty CourseName is fatal to the slot.
type Fields struct {
	CourseName string
	Room       string
	Professor  string
}

// ParsedSlot pairs a mapped slot with its disambiguated text, ready for
// merging.
type ParsedSlot struct {
	DayIndex    int
	StartMinute int
	EndMinute   int
	Fields      Fields
}

// ScheduleEntry is one reconstructed class occurrence. JSON keys match
// the response shape the surrounding API layer serializes.
type ScheduleEntry struct {
	Day        string `json:"day"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	CourseName string `json:"name"`
	Room       string `json:"place,omitempty"`
	Professor  string `json:"professor,omitempty"`
}

// Result is the outcome of one reconstruction call. AnomalyCount is the
// number of blocks dropped during mapping and merging; it is surfaced for
// observability, not treated as failure.
type Result struct {
	Entries      []ScheduleEntry `json:"timetable"`
	Message      string          `json:"message"`
	AnomalyCount int             `json:"anomaly_count"`
	Backend      string          `json:"backend"`
}

// PageHandle is a live rendered page owned by a single reconstruction
// call. Close must be safe to call on every exit path.
type PageHandle interface {
	ID() string
	Query(ctx context.Context, selector string) ([]Element, error)
	Close() error
}

// Backend opens pages. Two interchangeable implementations satisfy this
// contract (chromium via CDP and a static HTML fetcher).
type Backend interface {
	Name() string
	Open(ctx context.Context, url string) (PageHandle, error)
}

// Selectors locate the grid parts inside the page.
type Selectors struct {
	Container string
	Block     string
	Axis      string

	// Separator optionally matches explicit day column boundaries.
	// When empty the container width is divided into equal columns.
	Separator string
}

// Clock formats a minute of day as HH:MM.
func Clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
