// Package session binds one WebSocket connection to a calendar session: an
// event store, a drag/resize interaction machine, and a sync coordinator.
// The browser is a renderer only; it streams pointer and slot input here and
// redraws from the snapshots pushed back.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"schedcal/internal/event"
	"schedcal/internal/grid"
	"schedcal/internal/interaction"
	appLog "schedcal/internal/log"
	"schedcal/internal/syncer"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// inboundMessage is the envelope for every client-to-server message.
type inboundMessage struct {
	Action  string `json:"action"`
	Day     int    `json:"day"`
	Slot    int    `json:"slot"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	EventID string `json:"eventId"`
	Target  string `json:"target"`
	Delta   int    `json:"delta"`

	// accept_option fields
	OptionID string `json:"id"`
	Label    string `json:"label"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Reason   string `json:"reason"`
}

// snapshotMessage is the full render state pushed after every mutation.
type snapshotMessage struct {
	Type string       `json:"type"`
	Data snapshotData `json:"data"`
}

type snapshotData struct {
	Week      []string      `json:"week"`
	Events    []event.Event `json:"events"`
	Timezone  string        `json:"timezone"`
	DragMode  string        `json:"dragMode"`
	DragEvent string        `json:"dragEvent,omitempty"`
}

// Session owns the server-side calendar state for one connection.
type Session struct {
	conn *websocket.Conn
	loc  *time.Location
	tz   string

	store       *event.Store
	coordinator *syncer.Coordinator

	// mu guards machine and week, which are touched from both the read
	// pump (input handling) and the write pump (snapshot building).
	mu      sync.Mutex
	machine *interaction.Machine
	week    grid.WeekWindow

	// dirty coalesces snapshot pushes: many store mutations inside one
	// pointer-move burst produce a single queued snapshot.
	dirty chan struct{}
	done  chan struct{}
}

// New builds a session around an accepted WebSocket connection. The
// coordinator is started (clear + fetch handshake) before any input is read.
func New(conn *websocket.Conn, client *syncer.Client, tzName string, loc *time.Location, debounce time.Duration) *Session {
	store := event.NewStore()
	week := grid.WeekOf(time.Now().In(loc))

	s := &Session{
		conn:    conn,
		loc:     loc,
		tz:      tzName,
		store:   store,
		machine: interaction.NewMachine(store, grid.DefaultGeometry, week),
		week:    week,
		dirty:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.coordinator = syncer.NewCoordinator(store, client, tzName, debounce)

	store.OnChange(func() {
		s.coordinator.OnStoreChange()
		s.markDirty()
	})
	return s
}

// Run services the connection until it closes. It blocks until the read pump
// exits.
func (s *Session) Run() {
	go s.writePump()

	s.coordinator.Start()
	s.markDirty()

	s.readPump()

	close(s.done)
	s.coordinator.Stop()
}

func (s *Session) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Session) readPump() {
	defer s.conn.Close()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				appLog.Error("session read failed", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			appLog.Error("invalid session message", err)
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg inboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Action {
	case "slot_click":
		s.machine.SlotClick(msg.Day, msg.Slot)

	case "pointer_down":
		s.machine.PointerDown(msg.EventID, interaction.Target(msg.Target), msg.X, msg.Y)
		s.markDirty()

	case "pointer_move":
		s.machine.PointerMove(msg.X, msg.Y)

	case "pointer_up":
		s.machine.PointerUp()
		s.markDirty()

	case "delete_event":
		s.store.Remove(msg.EventID)

	case "week":
		switch {
		case msg.Delta > 0:
			s.week = s.week.Next()
		case msg.Delta < 0:
			s.week = s.week.Prev()
		default:
			s.week = grid.WeekOf(time.Now().In(s.loc))
		}
		s.machine.SetWeek(s.week)
		s.markDirty()

	case "accept_option":
		s.acceptOption(msg)

	case "ping":
		// Application-level keepalive from the UI; protocol pings are
		// handled by the write pump.
		s.markDirty()
	}
}

// acceptOption converts an accepted recommendation into a user busy event so
// the next sync marks the slot busy on the backend.
func (s *Session) acceptOption(msg inboundMessage) {
	start, err := time.Parse(time.RFC3339, msg.Start)
	if err != nil {
		appLog.Error("accept_option with invalid start", err, "option", msg.OptionID)
		return
	}
	end, err := time.Parse(time.RFC3339, msg.End)
	if err != nil {
		appLog.Error("accept_option with invalid end", err, "option", msg.OptionID)
		return
	}
	start = start.In(s.loc)
	end = end.In(s.loc)

	startIdx := grid.SlotOf(start)
	endIdx := grid.SlotOf(end)
	if endIdx <= startIdx {
		endIdx = grid.TotalSlots
	}

	title := "Meeting"
	if msg.Label != "" {
		title = "Meeting (" + msg.Label + ")"
	}

	added := s.store.Add(event.Event{
		ID:         msg.OptionID + "-" + start.Format("20060102"),
		Date:       start.Format(grid.DateLayout),
		StartIndex: startIdx,
		EndIndex:   endIdx,
		Title:      title,
		Source:     event.SourceUser,
		Meta: &event.Meta{
			Label:  msg.Label,
			Reason: msg.Reason,
			Status: "accepted",
		},
	})
	if !added {
		appLog.Info("accepted option overlaps existing events", "option", msg.OptionID)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.dirty:
			if err := s.writeSnapshot(); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

func (s *Session) writeSnapshot() error {
	s.mu.Lock()
	snap := snapshotMessage{
		Type: "snapshot",
		Data: snapshotData{
			Week:      s.week.Days(),
			Events:    s.store.Snapshot(),
			Timezone:  s.tz,
			DragMode:  string(s.machine.Mode()),
			DragEvent: s.machine.ActiveEvent(),
		},
	}
	s.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		appLog.Error("failed to marshal snapshot", err)
		return nil
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}
