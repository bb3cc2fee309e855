package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"schedcal/internal/syncer"
)

// newSessionServer stands up a busy backend stub plus a /ws endpoint running
// real sessions, and dials one client connection.
func newSessionServer(t *testing.T) *websocket.Conn {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/availability/busy", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.Error(w, "nothing stored", http.StatusNotFound)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"timezone":"UTC","intervals":[]}`))
		}
	})

	var client *syncer.Client
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		New(conn, client, "UTC", time.UTC, 50*time.Millisecond).Run()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client = syncer.NewClient(srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendAction(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitSnapshot reads pushed snapshots until pred accepts one.
func waitSnapshot(t *testing.T, conn *websocket.Conn, pred func(snapshotData) bool) snapshotData {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		var msg snapshotMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if msg.Type != "snapshot" {
			continue
		}
		if pred(msg.Data) {
			return msg.Data
		}
	}
	t.Fatal("no matching snapshot before deadline")
	return snapshotData{}
}

func TestSessionPushesInitialSnapshot(t *testing.T) {
	conn := newSessionServer(t)

	snap := waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Week) == 7 })
	if snap.Timezone != "UTC" || snap.DragMode != "idle" {
		t.Errorf("snapshot = %+v", snap)
	}
	// The week starts on a Monday.
	monday, err := time.Parse("2006-01-02", snap.Week[0])
	if err != nil {
		t.Fatal(err)
	}
	if monday.Weekday() != time.Monday {
		t.Errorf("week starts on %v", monday.Weekday())
	}
}

func TestSlotClickRoundTrip(t *testing.T) {
	conn := newSessionServer(t)
	waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Week) == 7 })

	sendAction(t, conn, map[string]any{"action": "slot_click", "day": 2, "slot": 24})

	snap := waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Events) == 1 })
	ev := snap.Events[0]
	if ev.StartIndex != 24 || ev.EndIndex != 26 {
		t.Errorf("slot range = [%d,%d)", ev.StartIndex, ev.EndIndex)
	}
	if ev.Title != "Busy" || string(ev.Source) != "user" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Date != snap.Week[2] {
		t.Errorf("date = %q, want %q", ev.Date, snap.Week[2])
	}
}

func TestDeleteEventRoundTrip(t *testing.T) {
	conn := newSessionServer(t)
	waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Week) == 7 })

	sendAction(t, conn, map[string]any{"action": "slot_click", "day": 0, "slot": 10})
	snap := waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Events) == 1 })

	sendAction(t, conn, map[string]any{"action": "delete_event", "eventId": snap.Events[0].ID})
	waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Events) == 0 })
}

func TestWeekNavigation(t *testing.T) {
	conn := newSessionServer(t)
	initial := waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Week) == 7 })

	sendAction(t, conn, map[string]any{"action": "week", "delta": 1})
	next := waitSnapshot(t, conn, func(d snapshotData) bool {
		return len(d.Week) == 7 && d.Week[0] != initial.Week[0]
	})

	initialMonday, _ := time.Parse("2006-01-02", initial.Week[0])
	nextMonday, _ := time.Parse("2006-01-02", next.Week[0])
	if got := nextMonday.Sub(initialMonday); got != 7*24*time.Hour {
		t.Errorf("week advanced by %v", got)
	}

	sendAction(t, conn, map[string]any{"action": "week", "delta": 0})
	waitSnapshot(t, conn, func(d snapshotData) bool {
		return len(d.Week) == 7 && d.Week[0] == initial.Week[0]
	})
}

func TestDragStateIsPushed(t *testing.T) {
	conn := newSessionServer(t)
	waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Week) == 7 })

	sendAction(t, conn, map[string]any{"action": "slot_click", "day": 0, "slot": 10})
	snap := waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Events) == 1 })
	id := snap.Events[0].ID

	sendAction(t, conn, map[string]any{
		"action": "pointer_down", "eventId": id, "target": "body", "x": 60, "y": 250,
	})
	waitSnapshot(t, conn, func(d snapshotData) bool {
		return d.DragMode == "moving" && d.DragEvent == id
	})

	sendAction(t, conn, map[string]any{"action": "pointer_up"})
	waitSnapshot(t, conn, func(d snapshotData) bool { return d.DragMode == "idle" })
}

func TestAcceptOptionCreatesMeetingEvent(t *testing.T) {
	conn := newSessionServer(t)
	initial := waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Week) == 7 })

	// Accept a slot on the visible week's Wednesday.
	start := initial.Week[2] + "T14:00:00Z"
	end := initial.Week[2] + "T15:00:00Z"
	sendAction(t, conn, map[string]any{
		"action": "accept_option",
		"id":     "option_a",
		"label":  "Option A",
		"start":  start,
		"end":    end,
		"reason": "fits the afternoon",
	})

	snap := waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Events) == 1 })
	ev := snap.Events[0]
	if ev.Title != "Meeting (Option A)" {
		t.Errorf("title = %q", ev.Title)
	}
	if ev.StartIndex != 28 || ev.EndIndex != 30 {
		t.Errorf("slot range = [%d,%d), want [28,30)", ev.StartIndex, ev.EndIndex)
	}
	if ev.Meta == nil || ev.Meta.Status != "accepted" || ev.Meta.Label != "Option A" {
		t.Errorf("meta = %+v", ev.Meta)
	}
	if string(ev.Source) != "user" {
		t.Errorf("source = %q", ev.Source)
	}
}

func TestMalformedMessageIsIgnored(t *testing.T) {
	conn := newSessionServer(t)
	waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Week) == 7 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatal(err)
	}

	// The session survives and still answers input.
	sendAction(t, conn, map[string]any{"action": "slot_click", "day": 0, "slot": 4})
	waitSnapshot(t, conn, func(d snapshotData) bool { return len(d.Events) == 1 })
}

func TestSnapshotWireShape(t *testing.T) {
	raw := []byte(`{"type":"snapshot","data":{"week":["2025-06-02"],"events":[],"timezone":"UTC","dragMode":"idle"}}`)
	var msg snapshotMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Data.Week[0] != "2025-06-02" || msg.Data.DragMode != "idle" {
		t.Errorf("decoded = %+v", msg)
	}
}
