package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"schedcal/internal/busy"
	"schedcal/internal/event"
)

// fakeBackend is a minimal busy endpoint recording every push it sees.
type fakeBackend struct {
	mu       sync.Mutex
	pushes   []busy.Payload
	deletes  int
	fetches  int
	stored   *busy.Response
	failPush bool
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/availability/busy", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodPost:
			if f.failPush {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			var p busy.Payload
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.pushes = append(f.pushes, p)
			resp := busy.Normalize(p)
			f.stored = &resp
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		case http.MethodGet:
			f.fetches++
			if f.stored == nil {
				http.Error(w, "nothing stored", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(f.stored)
		case http.MethodDelete:
			f.deletes++
			f.stored = nil
			w.WriteHeader(http.StatusNoContent)
		}
	})
	return mux
}

func (f *fakeBackend) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeBackend) lastPush() busy.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[len(f.pushes)-1]
}

func newTestCoordinator(t *testing.T, backend *fakeBackend, debounce time.Duration) (*Coordinator, *event.Store) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	store := event.NewStore()
	c := NewCoordinator(store, NewClient(srv.URL), "UTC", debounce)
	t.Cleanup(c.Stop)
	store.OnChange(c.OnStoreChange)
	return c, store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDebounceCoalescesBursts(t *testing.T) {
	backend := &fakeBackend{}
	_, store := newTestCoordinator(t, backend, 80*time.Millisecond)

	// Two edits inside one debounce window produce exactly one push carrying
	// the trailing state.
	store.Add(event.Event{ID: "a", Date: "2025-06-02", StartIndex: 10, EndIndex: 12, Source: event.SourceUser})
	store.Add(event.Event{ID: "b", Date: "2025-06-02", StartIndex: 20, EndIndex: 22, Source: event.SourceUser})

	waitFor(t, func() bool { return backend.pushCount() == 1 })
	time.Sleep(150 * time.Millisecond)
	if got := backend.pushCount(); got != 1 {
		t.Fatalf("got %d pushes, want 1", got)
	}
	if got := len(backend.lastPush().Events); got != 2 {
		t.Errorf("trailing push carried %d events, want 2", got)
	}
}

func TestIdenticalContentIsNotResynced(t *testing.T) {
	backend := &fakeBackend{}
	_, store := newTestCoordinator(t, backend, 40*time.Millisecond)

	store.Add(event.Event{ID: "a", Date: "2025-06-02", StartIndex: 10, EndIndex: 12, Source: event.SourceUser})
	waitFor(t, func() bool { return backend.pushCount() == 1 })

	// Move away and back: the final content matches the last-synced key.
	store.Move("a", "2025-06-02", 14)
	store.Move("a", "2025-06-02", 10)

	time.Sleep(120 * time.Millisecond)
	if got := backend.pushCount(); got != 1 {
		t.Errorf("got %d pushes, want 1", got)
	}
}

func TestFailedSyncRetriesOnNextChange(t *testing.T) {
	backend := &fakeBackend{failPush: true}
	_, store := newTestCoordinator(t, backend, 30*time.Millisecond)

	store.Add(event.Event{ID: "a", Date: "2025-06-02", StartIndex: 10, EndIndex: 12, Source: event.SourceUser})
	time.Sleep(120 * time.Millisecond)
	if backend.pushCount() != 0 {
		t.Fatal("failed push should not have been recorded")
	}

	backend.mu.Lock()
	backend.failPush = false
	backend.mu.Unlock()

	// The next change carries new content and must go through.
	store.Add(event.Event{ID: "b", Date: "2025-06-03", StartIndex: 4, EndIndex: 6, Source: event.SourceUser})
	waitFor(t, func() bool { return backend.pushCount() == 1 })
	if got := len(backend.lastPush().Events); got != 2 {
		t.Errorf("retry push carried %d events, want 2", got)
	}
}

func TestStartClearsThenMergesFetch(t *testing.T) {
	backend := &fakeBackend{}
	c, store := newTestCoordinator(t, backend, 40*time.Millisecond)

	c.Start()

	backend.mu.Lock()
	deletes, fetches := backend.deletes, backend.fetches
	backend.mu.Unlock()
	if deletes != 1 {
		t.Errorf("Start issued %d deletes, want 1", deletes)
	}
	if fetches != 1 {
		t.Errorf("Start issued %d fetches, want 1", fetches)
	}
	// 404 on fetch is silent; the store stays empty.
	if len(store.Snapshot()) != 0 {
		t.Errorf("store not empty after 404 fetch: %v", store.Snapshot())
	}
}

func TestSuccessfulSyncMergesConfirmedIntervals(t *testing.T) {
	backend := &fakeBackend{}
	c, store := newTestCoordinator(t, backend, 30*time.Millisecond)

	store.Add(event.Event{ID: "a", Date: "2025-06-02", StartIndex: 19, EndIndex: 21, Source: event.SourceUser})
	c.Flush()

	waitFor(t, func() bool {
		for _, ev := range store.Snapshot() {
			if ev.Source == event.SourceBackend {
				return true
			}
		}
		return false
	})

	var confirmed event.Event
	for _, ev := range store.Snapshot() {
		if ev.Source == event.SourceBackend {
			confirmed = ev
		}
	}
	if confirmed.Date != "2025-06-02" || confirmed.StartIndex != 19 || confirmed.EndIndex != 21 {
		t.Errorf("confirmed event = %+v", confirmed)
	}
	if confirmed.ID != "a" || confirmed.ExternalID != "a" {
		t.Errorf("confirmed event ids = %q/%q", confirmed.ID, confirmed.ExternalID)
	}
}

func TestClientFetchBusy404(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := NewClient(srv.URL)
	_, found, err := client.FetchBusy(context.Background())
	if err != nil {
		t.Fatalf("FetchBusy on empty backend errored: %v", err)
	}
	if found {
		t.Error("FetchBusy reported found on 404")
	}
}

func TestIntervalsToEventsClampsMidnightEnd(t *testing.T) {
	resp := busy.Response{
		Timezone: "UTC",
		Intervals: []busy.Interval{
			{EventID: "late", Start: "2025-06-02T23:30:00Z", End: "2025-06-03T00:00:00Z"},
		},
	}
	events := intervalsToEvents(resp)
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].StartIndex != 47 || events[0].EndIndex != 48 {
		t.Errorf("slot range = [%d,%d), want [47,48)", events[0].StartIndex, events[0].EndIndex)
	}
	if events[0].Date != "2025-06-02" {
		t.Errorf("date = %q", events[0].Date)
	}
}
