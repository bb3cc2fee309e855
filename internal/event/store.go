package event

import (
	"sort"
	"sync"

	"schedcal/internal/grid"
)

// Store owns the ordered event collection for one calendar session.
//
// The store is safe for concurrent use: the interaction machine mutates it
// from the session goroutine while the sync coordinator's debounce timer
// reads user events from its own goroutine.
type Store struct {
	mu     sync.Mutex
	events []Event

	// onChange, if set, runs after every successful mutation (outside the
	// lock). The sync coordinator and snapshot broadcaster hang off this.
	onChange func()
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// OnChange registers the change hook. Only one hook is supported; the
// session composes fan-out itself.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Add appends ev to the collection. The add is silently ignored when ev is
// invalid or when any existing event on the same date intersects its slot
// range. Returns true if the event was added.
func (s *Store) Add(ev Event) bool {
	s.mu.Lock()
	if !ev.Valid() {
		s.mu.Unlock()
		return false
	}
	for _, existing := range s.events {
		if existing.Overlaps(ev.Date, ev.StartIndex, ev.EndIndex) {
			s.mu.Unlock()
			return false
		}
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	s.notify()
	return true
}

// Move reassigns the event to newDate with a new start slot, preserving its
// duration exactly. The start clamps so the event stays inside the grid.
func (s *Store) Move(id, newDate string, newStart int) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	dur := s.events[i].Duration()
	newStart = clamp(newStart, 0, grid.TotalSlots-dur)

	changed := s.events[i].Date != newDate || s.events[i].StartIndex != newStart
	s.events[i].Date = newDate
	s.events[i].StartIndex = newStart
	s.events[i].EndIndex = newStart + dur
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

// Resize adjusts one edge of the event toward newIndex, the slot the pointer
// currently occupies. Either direction preserves a minimum duration of one
// slot:
//
//	top:    start = clamp(newIndex, 0, end-1)
//	bottom: end   = clamp(newIndex+1, start+1, TotalSlots)
func (s *Store) Resize(id string, edge Edge, newIndex int) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	ev := &s.events[i]
	changed := false
	switch edge {
	case EdgeTop:
		start := clamp(newIndex, 0, ev.EndIndex-1)
		changed = start != ev.StartIndex
		ev.StartIndex = start
	case EdgeBottom:
		end := clamp(newIndex+1, ev.StartIndex+1, grid.TotalSlots)
		changed = end != ev.EndIndex
		ev.EndIndex = end
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

// Remove deletes the event with the given id. Returns true if it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.events = append(s.events[:i], s.events[i+1:]...)
	s.mu.Unlock()

	s.notify()
	return true
}

// MergeBackend folds a backend-confirmed event set into the store.
//
// Rules:
//   - an empty incoming set leaves the store unchanged (identity)
//   - user-sourced events are always kept
//   - prior backend events whose id appears in the incoming set are replaced
//   - all incoming backend events are appended
func (s *Store) MergeBackend(incoming []Event) {
	if len(incoming) == 0 {
		return
	}

	s.mu.Lock()
	incomingIDs := make(map[string]struct{}, len(incoming))
	for _, ev := range incoming {
		incomingIDs[ev.ID] = struct{}{}
	}

	kept := make([]Event, 0, len(s.events)+len(incoming))
	for _, ev := range s.events {
		if ev.Source == SourceUser {
			kept = append(kept, ev)
			continue
		}
		if _, replaced := incomingIDs[ev.ID]; !replaced {
			kept = append(kept, ev)
		}
	}
	for _, ev := range incoming {
		ev.Source = SourceBackend
		if ev.Valid() {
			kept = append(kept, ev)
		}
	}
	s.events = kept
	s.mu.Unlock()

	s.notify()
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.events[i], true
	}
	return Event{}, false
}

// Snapshot returns a copy of all events in insertion order.
func (s *Store) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByDate returns the events on a given day, sorted by start slot.
func (s *Store) ByDate(date string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0)
	for _, ev := range s.events {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartIndex < out[j].StartIndex })
	return out
}

// UserEvents returns user-sourced events in a deterministic order
// (date, start, id). The sync coordinator serializes this list to build its
// comparison key, so the ordering must be stable across identical content.
func (s *Store) UserEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0)
	for _, ev := range s.events {
		if ev.Source == SourceUser {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartIndex != b.StartIndex {
			return a.StartIndex < b.StartIndex
		}
		return a.ID < b.ID
	})
	return out
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id string) int {
	for i := range s.events {
		if s.events[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
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
