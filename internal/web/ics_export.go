package web

import (
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "schedcal/internal/log"
)

// handleBusyICS exports the current busy snapshot as an iCalendar feed so
// the marked busy time can be subscribed to from other calendar clients.
// Recurring blocks keep their RRULE rather than being expanded.
func (s *Server) handleBusyICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snapshot, ok := s.state.Get()
	if !ok {
		writeError(w, http.StatusNotFound, "No busy availability has been submitted yet.")
		return
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//schedcal//busy//EN")

	now := time.Now().UTC()
	for _, iv := range snapshot.Intervals {
		start, err := time.Parse(time.RFC3339, iv.Start)
		if err != nil {
			appLog.Error("skipping interval with invalid start in ICS export", err, "event_id", iv.EventID)
			continue
		}
		end, err := time.Parse(time.RFC3339, iv.End)
		if err != nil {
			continue
		}

		ev := cal.AddEvent(iv.EventID + "@schedcal")
		ev.SetDtStampTime(now)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary("Busy")
		if iv.RRule != "" {
			ev.AddRrule(iv.RRule)
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="busy.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(cal.Serialize())); err != nil {
		appLog.Error("failed to write ICS response", err)
	}
}
