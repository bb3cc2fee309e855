// Package event holds the calendar event model and the store that owns the
// event collection. All mutations to events go through the Store; other
// components never keep private copies.
package event

import (
	"schedcal/internal/grid"
)

// Source tags the provenance of an event.
type Source string

const (
	// SourceUser marks events authored locally in the week grid.
	SourceUser Source = "user"
	// SourceBackend marks events confirmed or supplied by the availability
	// backend.
	SourceBackend Source = "backend"
)

// Edge selects which end of an event a resize operates on.
type Edge string

const (
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
)

// Meta carries optional annotation attached to recommendation-derived events.
type Meta struct {
	Label  string `json:"label,omitempty"`
	Reason string `json:"reason,omitempty"`
	// Status is "suggested" or "accepted" for recommendation slots.
	Status string `json:"status,omitempty"`
}

// Event is a single block on the week grid.
//
// Invariant: 0 <= StartIndex < EndIndex <= grid.TotalSlots.
type Event struct {
	ID         string `json:"id"`
	Date       string `json:"date"` // YYYY-MM-DD
	StartIndex int    `json:"startTimeIndex"`
	EndIndex   int    `json:"endTimeIndex"`
	Title      string `json:"title"`
	Source     Source `json:"source"`
	ExternalID string `json:"externalId,omitempty"`
	Meta       *Meta  `json:"metadata,omitempty"`

	// RRule, when non-empty, marks a weekly-recurring busy block
	// (e.g. "FREQ=WEEKLY"). Recurrence is expanded by the availability
	// backend, not by the store.
	RRule string `json:"rrule,omitempty"`
}

// Duration returns the event length in slots.
func (e Event) Duration() int {
	return e.EndIndex - e.StartIndex
}

// Overlaps reports whether e intersects the half-open slot range
// [start, end) on the same date.
func (e Event) Overlaps(date string, start, end int) bool {
	return e.Date == date && e.StartIndex < end && start < e.EndIndex
}

// Valid reports whether the event respects the slot-range invariant.
func (e Event) Valid() bool {
	return e.StartIndex >= 0 && e.StartIndex < e.EndIndex && e.EndIndex <= grid.TotalSlots
}
