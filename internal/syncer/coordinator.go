package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"schedcal/internal/busy"
	"schedcal/internal/event"
	"schedcal/internal/grid"
	appLog "schedcal/internal/log"
)

// DefaultDebounce is the quiet period after the last qualifying store change
// before a sync fires.
const DefaultDebounce = 400 * time.Millisecond

// Coordinator debounces user-event changes and pushes them to the busy
// backend, merging confirmed intervals back into the store.
//
// Duplicate suppression works on a single comparison key: the deterministic
// serialization of the current user events. A sync is skipped when that key
// matches either the last successfully synced key or the key currently in
// flight. The in-flight key is the sole mechanism preventing duplicate
// concurrent calls for the same content.
type Coordinator struct {
	store    *event.Store
	client   *Client
	timezone string
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	timer      *time.Timer
	lastSynced string
	inFlight   string
}

// NewCoordinator wires a coordinator to a store and backend client. A
// non-positive debounce falls back to DefaultDebounce.
func NewCoordinator(store *event.Store, client *Client, timezone string, debounce time.Duration) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:    store,
		client:   client,
		timezone: timezone,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start performs the mount-time handshake: clear any previously stored busy
// state once, then fetch the current snapshot and merge it in. Fetch failure
// after a clear is treated as "no stored state" and swallowed. A cancelled
// context (session already closed) discards the late response instead of
// applying it.
func (c *Coordinator) Start() {
	if err := c.client.ClearBusy(c.ctx); err != nil {
		appLog.Error("initial busy clear failed", err)
	}

	resp, found, err := c.client.FetchBusy(c.ctx)
	if err != nil {
		appLog.Error("initial busy fetch failed", err)
		return
	}
	if !found || c.ctx.Err() != nil {
		return
	}
	c.store.MergeBackend(intervalsToEvents(resp))
}

// Stop cancels any pending debounce timer and in-flight requests.
func (c *Coordinator) Stop() {
	c.cancel()
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}

// OnStoreChange is the store's change hook. It restarts the debounce timer
// unless the current user-event content already matches the last-synced or
// in-flight key, so only the trailing state after a quiet period is sent.
func (c *Coordinator) OnStoreChange() {
	payload, key := c.buildPayload()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Any pending timer holds a stale payload now; cancel it even when the
	// current content needs no sync at all.
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if key == c.lastSynced || key == c.inFlight {
		return
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.sync(payload, key)
	})
}

// Flush runs any pending sync immediately. Intended for tests and shutdown.
func (c *Coordinator) Flush() {
	payload, key := c.buildPayload()

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	skip := key == c.lastSynced || key == c.inFlight
	c.mu.Unlock()

	if !skip {
		c.sync(payload, key)
	}
}

func (c *Coordinator) sync(payload busy.Payload, key string) {
	c.mu.Lock()
	if key == c.lastSynced || key == c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = key
	c.mu.Unlock()

	resp, err := c.client.PushBusy(c.ctx, payload)
	if err != nil {
		// Leave lastSynced untouched so the next change retries from
		// scratch. No backoff beyond the debounce gate.
		appLog.Error("busy sync failed", err, "events", len(payload.Events))
		c.mu.Lock()
		c.inFlight = ""
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.lastSynced = key
	c.inFlight = ""
	c.mu.Unlock()

	appLog.Info("busy sync ok", "events", len(payload.Events), "intervals", len(resp.Intervals))
	if c.ctx.Err() == nil {
		c.store.MergeBackend(intervalsToEvents(resp))
	}
}

// buildPayload serializes the current user events into the wire payload and
// the comparison key. Field order is fixed by the struct definitions and
// UserEvents returns a stable ordering, so identical content always yields
// an identical key.
func (c *Coordinator) buildPayload() (busy.Payload, string) {
	events := c.store.UserEvents()
	slots := make([]busy.SlotEvent, 0, len(events))
	for _, ev := range events {
		slots = append(slots, busy.SlotEvent{
			ID:           ev.ID,
			Date:         ev.Date,
			StartIndex:   ev.StartIndex,
			EndIndex:     ev.EndIndex,
			SlotsPerHour: grid.SlotsPerHour,
			RRule:        ev.RRule,
		})
	}
	payload := busy.Payload{Timezone: c.timezone, Events: slots}

	key, err := json.Marshal(slots)
	if err != nil {
		// Marshal of plain structs cannot realistically fail; fall back to
		// an always-dirty key.
		return payload, time.Now().String()
	}
	return payload, string(key)
}

// intervalsToEvents converts backend-confirmed intervals into backend-sourced
// store events. Intervals with malformed timestamps are skipped.
func intervalsToEvents(resp busy.Response) []event.Event {
	loc := busy.Location(resp.Timezone)
	out := make([]event.Event, 0, len(resp.Intervals))
	for _, iv := range resp.Intervals {
		start, err := time.Parse(time.RFC3339, iv.Start)
		if err != nil {
			appLog.Error("skipping confirmed interval with bad start", err, "event_id", iv.EventID)
			continue
		}
		end, err := time.Parse(time.RFC3339, iv.End)
		if err != nil {
			continue
		}
		start = start.In(loc)
		end = end.In(loc)

		startIdx := grid.SlotOf(start)
		endIdx := grid.SlotOf(end)
		if endIdx <= startIdx {
			// End lands on the next day or on the same slot; clamp to the
			// end of the start's day.
			endIdx = grid.TotalSlots
		}

		out = append(out, event.Event{
			ID:         iv.EventID,
			Date:       start.Format(grid.DateLayout),
			StartIndex: startIdx,
			EndIndex:   endIdx,
			Title:      "Busy",
			Source:     event.SourceBackend,
			ExternalID: iv.EventID,
			RRule:      iv.RRule,
		})
	}
	return out
}
