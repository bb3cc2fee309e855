// Package busy implements the availability backend: it accepts busy slot
// events from the calendar, normalizes them into ISO-8601 intervals in the
// requested timezone, and keeps the latest normalized snapshot in memory.
package busy

import (
	"sort"
	"time"

	"schedcal/internal/grid"
	appLog "schedcal/internal/log"
)

// SlotEvent is one busy block as submitted by the calendar client.
type SlotEvent struct {
	ID           string `json:"id"`
	Date         string `json:"date"` // YYYY-MM-DD
	StartIndex   int    `json:"start_time_index"`
	EndIndex     int    `json:"end_time_index"`
	SlotsPerHour int    `json:"slots_per_hour"`

	// RRule, when non-empty, marks a weekly-recurring block
	// (e.g. "FREQ=WEEKLY"). The base occurrence is normalized here; window
	// expansion happens in ExpandWindow.
	RRule string `json:"rrule,omitempty"`
}

// Payload is the POST /api/availability/busy request body.
type Payload struct {
	Timezone string      `json:"timezone"`
	Events   []SlotEvent `json:"events"`
}

// Interval is a normalized busy span with ISO-8601 endpoints.
type Interval struct {
	EventID string `json:"event_id"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Source  string `json:"source"`

	// RRule is carried through so window expansion and ICS export can
	// reconstruct recurrences.
	RRule string `json:"rrule,omitempty"`
}

// Response is the normalized busy snapshot returned by the API.
type Response struct {
	Timezone  string     `json:"timezone"`
	Intervals []Interval `json:"intervals"`
}

// Location resolves an IANA timezone name, falling back to UTC for unknown
// or empty names.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("unknown timezone, falling back to UTC", err, "name", name)
		return time.UTC
	}
	return loc
}

// slotTime converts a slot index on a given day into a wall-clock time.
// Slot index 0 is the start of day; each slot is 60/slotsPerHour minutes.
func slotTime(date string, index, slotsPerHour int, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(grid.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	minutesPerSlot := 60 / slotsPerHour
	return day.Add(time.Duration(index*minutesPerSlot) * time.Minute), nil
}

// Normalize converts a busy payload into ISO intervals in the payload's
// timezone, merging overlapping same-source intervals. Events with malformed
// dates or slot ranges are skipped, not fatal.
func Normalize(p Payload) Response {
	tzName := p.Timezone
	if tzName == "" {
		tzName = "UTC"
	}
	loc := Location(tzName)

	intervals := make([]Interval, 0, len(p.Events))
	for _, ev := range p.Events {
		if ev.SlotsPerHour <= 0 || ev.EndIndex <= ev.StartIndex || ev.StartIndex < 0 {
			appLog.Debug("skipping invalid slot event", "id", ev.ID)
			continue
		}
		start, err := slotTime(ev.Date, ev.StartIndex, ev.SlotsPerHour, loc)
		if err != nil {
			appLog.Error("skipping event with invalid date", err, "id", ev.ID, "date", ev.Date)
			continue
		}
		end, err := slotTime(ev.Date, ev.EndIndex, ev.SlotsPerHour, loc)
		if err != nil {
			continue
		}
		intervals = append(intervals, Interval{
			EventID: ev.ID,
			Start:   start.Format(time.RFC3339),
			End:     end.Format(time.RFC3339),
			Source:  "user",
			RRule:   ev.RRule,
		})
	}

	merged := mergeOverlapping(intervals)
	appLog.Info("normalized busy payload",
		"timezone", tzName,
		"raw", len(intervals),
		"merged", len(merged),
	)

	return Response{Timezone: tzName, Intervals: merged}
}

// mergeOverlapping coalesces intervals that touch or overlap and share a
// source, keeping the earlier interval's id. Input order does not matter;
// output is sorted by (start, end). Recurring intervals are never merged
// since their expansions differ.
func mergeOverlapping(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return []Interval{}
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		mergeable := cur.Start <= last.End && cur.Source == last.Source &&
			cur.RRule == "" && last.RRule == ""
		if mergeable {
			if cur.End > last.End {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
