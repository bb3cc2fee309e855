// Package grid implements the fixed week time grid: slot arithmetic,
// wall-clock labels, and pointer-offset mapping. All functions are pure and
// total; out-of-range inputs clamp rather than fail.
package grid

import (
	"fmt"
	"time"
)

const (
	HoursPerDay    = 24
	SlotsPerHour   = 2
	TotalSlots     = HoursPerDay * SlotsPerHour
	MinutesPerSlot = 60 / SlotsPerHour
	DaysPerWeek    = 7
)

// DateLayout is the canonical calendar-day identifier format.
const DateLayout = "2006-01-02"

// Geometry describes the pixel layout of the rendered week grid. It is the
// only piece of presentation knowledge the interaction machine needs.
type Geometry struct {
	// SlotHeight is the pixel height of a single 30-minute slot row.
	SlotHeight int
	// GutterWidth is the pixel width of the hour-label gutter on the left.
	GutterWidth int
	// DayColumnWidth is the pixel width of one day column.
	DayColumnWidth int
}

// DefaultGeometry matches the layout used by the embedded week-grid UI.
var DefaultGeometry = Geometry{
	SlotHeight:     24,
	GutterWidth:    56,
	DayColumnWidth: 120,
}

// SlotFromOffset maps a vertical pixel offset inside the grid body to a slot
// index. The result is always in [0, TotalSlots-1].
func (g Geometry) SlotFromOffset(y int) int {
	if g.SlotHeight <= 0 {
		return 0
	}
	return clamp(floorDiv(y, g.SlotHeight), 0, TotalSlots-1)
}

// DayFromOffset maps a horizontal pixel offset to a weekday column index.
// The result is always in [0, DaysPerWeek-1].
func (g Geometry) DayFromOffset(x int) int {
	if g.DayColumnWidth <= 0 {
		return 0
	}
	return clamp(floorDiv(x-g.GutterWidth, g.DayColumnWidth), 0, DaysPerWeek-1)
}

// SlotLabel returns the zero-padded 24-hour wall-clock label for a slot
// index. Slot 0 is the start of day ("00:00"); each slot covers
// MinutesPerSlot minutes. Out-of-range indices clamp into the grid.
func SlotLabel(index int) string {
	index = clamp(index, 0, TotalSlots)
	minutes := index * MinutesPerSlot
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// SlotTime converts a calendar day plus a slot index into a concrete
// wall-clock time in loc. The day string must use DateLayout.
func SlotTime(day string, index int, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, day, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("grid: invalid day %q: %w", day, err)
	}
	return d.Add(time.Duration(index*MinutesPerSlot) * time.Minute), nil
}

// SlotOf maps a wall-clock time to the slot index containing it within its
// own day.
func SlotOf(t time.Time) int {
	minutes := t.Hour()*60 + t.Minute()
	return clamp(minutes/MinutesPerSlot, 0, TotalSlots-1)
}

// WeekWindow is a run of 7 consecutive calendar days starting on a Monday.
// Windows are derived values: navigation produces a new window rather than
// mutating an existing one.
type WeekWindow struct {
	start time.Time // midnight Monday in the window's location
}

// WeekOf returns the week window containing t, anchored on Monday.
func WeekOf(t time.Time) WeekWindow {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	// time.Weekday: Sunday=0 ... Saturday=6; shift so Monday=0.
	back := (int(t.Weekday()) + 6) % 7
	return WeekWindow{start: t.AddDate(0, 0, -back)}
}

// Start returns midnight on the window's Monday.
func (w WeekWindow) Start() time.Time {
	return w.start
}

// Next returns the window one week later.
func (w WeekWindow) Next() WeekWindow {
	return WeekWindow{start: w.start.AddDate(0, 0, DaysPerWeek)}
}

// Prev returns the window one week earlier.
func (w WeekWindow) Prev() WeekWindow {
	return WeekWindow{start: w.start.AddDate(0, 0, -DaysPerWeek)}
}

// Day returns the calendar-day identifier for column i (0 = Monday). The
// column index clamps into the window.
func (w WeekWindow) Day(i int) string {
	i = clamp(i, 0, DaysPerWeek-1)
	return w.start.AddDate(0, 0, i).Format(DateLayout)
}

// Days returns all seven day identifiers, Monday first.
func (w WeekWindow) Days() []string {
	out := make([]string, DaysPerWeek)
	for i := range out {
		out[i] = w.Day(i)
	}
	return out
}

// Contains reports whether the given day identifier falls inside the window.
func (w WeekWindow) Contains(day string) bool {
	d, err := time.ParseInLocation(DateLayout, day, w.start.Location())
	if err != nil {
		return false
	}
	end := w.start.AddDate(0, 0, DaysPerWeek)
	return !d.Before(w.start) && d.Before(end)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// floorDiv divides rounding toward negative infinity, so pointer offsets
// slightly above the grid still clamp to the first slot rather than the
// second.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
