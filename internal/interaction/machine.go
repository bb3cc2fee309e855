// Package interaction implements the pointer-driven drag/resize state
// machine for the week grid. The machine never owns event data; it requests
// mutations through the event store and recomputes placement on every
// pointer move, so the grid gives live feedback instead of a commit/rollback
// preview.
package interaction

import (
	"github.com/google/uuid"

	"schedcal/internal/event"
	"schedcal/internal/grid"
)

// Mode is the current interaction state.
type Mode string

const (
	ModeIdle           Mode = "idle"
	ModeMoving         Mode = "moving"
	ModeResizingTop    Mode = "resizing-top"
	ModeResizingBottom Mode = "resizing-bottom"
)

// Target identifies what a pointer-down landed on.
type Target string

const (
	TargetBody         Target = "body"
	TargetHandleTop    Target = "handle-top"
	TargetHandleBottom Target = "handle-bottom"
)

// DefaultEventSlots is the length, in slots, of an event created by a slot
// click (2 slots = one hour at 30-minute granularity).
const DefaultEventSlots = 2

// DefaultTitle names freshly clicked busy blocks.
const DefaultTitle = "Busy"

// Machine tracks a single in-flight drag or resize. At most one event can be
// interacted with at a time; the terminal state is always idle on pointer
// release, regardless of where the pointer ended up.
type Machine struct {
	store *event.Store
	geom  grid.Geometry
	week  grid.WeekWindow

	mode    Mode
	eventID string

	// grabOffset is the slot distance between the event's start and the slot
	// grabbed on pointer-down, so a moved block tracks the pointer instead of
	// snapping its top edge to it.
	grabOffset int
}

// NewMachine returns an idle machine operating over the given store,
// geometry, and week window.
func NewMachine(store *event.Store, geom grid.Geometry, week grid.WeekWindow) *Machine {
	return &Machine{store: store, geom: geom, week: week, mode: ModeIdle}
}

// Mode returns the current interaction mode.
func (m *Machine) Mode() Mode { return m.mode }

// ActiveEvent returns the id of the event being interacted with, or "".
func (m *Machine) ActiveEvent() string { return m.eventID }

// SetWeek points the machine at a different week window. Navigation while a
// drag is active releases the drag first.
func (m *Machine) SetWeek(week grid.WeekWindow) {
	m.PointerUp()
	m.week = week
}

// SlotClick creates a DefaultEventSlots-long user event at the clicked slot.
// Clicks are ignored while an interaction is active, which prevents
// accidental event creation mid-drag. The add itself is a silent no-op when
// the target range is occupied.
func (m *Machine) SlotClick(day int, slot int) {
	if m.mode != ModeIdle {
		return
	}
	end := slot + DefaultEventSlots
	if end > grid.TotalSlots {
		end = grid.TotalSlots
		slot = end - DefaultEventSlots
	}
	m.store.Add(event.Event{
		ID:         uuid.NewString(),
		Date:       m.week.Day(day),
		StartIndex: slot,
		EndIndex:   end,
		Title:      DefaultTitle,
		Source:     event.SourceUser,
	})
}

// PointerDown begins an interaction on the given event. A body grab starts a
// move; a handle grab starts a resize on the corresponding edge. Pointer-downs
// during an active interaction are ignored.
func (m *Machine) PointerDown(eventID string, target Target, x, y int) {
	if m.mode != ModeIdle {
		return
	}
	ev, ok := m.store.Get(eventID)
	if !ok {
		return
	}

	switch target {
	case TargetBody:
		m.mode = ModeMoving
		m.grabOffset = m.geom.SlotFromOffset(y) - ev.StartIndex
		if m.grabOffset < 0 {
			m.grabOffset = 0
		}
	case TargetHandleTop:
		m.mode = ModeResizingTop
	case TargetHandleBottom:
		m.mode = ModeResizingBottom
	default:
		return
	}
	m.eventID = eventID
}

// PointerMove recomputes the active event's placement from the current
// pointer coordinates. Moves outside an interaction are ignored. The store
// is updated in place on every call; there is no intermediate preview.
func (m *Machine) PointerMove(x, y int) {
	if m.mode == ModeIdle {
		return
	}
	slot := m.geom.SlotFromOffset(y)

	switch m.mode {
	case ModeMoving:
		day := m.geom.DayFromOffset(x)
		m.store.Move(m.eventID, m.week.Day(day), slot-m.grabOffset)
	case ModeResizingTop:
		m.store.Resize(m.eventID, event.EdgeTop, slot)
	case ModeResizingBottom:
		m.store.Resize(m.eventID, event.EdgeBottom, slot)
	}
}

// PointerUp unconditionally ends the interaction, wherever the pointer is.
func (m *Machine) PointerUp() {
	m.mode = ModeIdle
	m.eventID = ""
	m.grabOffset = 0
}
