package busy

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "schedcal/internal/log"
)

// maxOccurrencesPerInterval caps recurrence expansion so a malformed rule
// cannot blow up a query window.
const maxOccurrencesPerInterval = 500

// Span is a concrete busy span inside a query window, after recurrence
// expansion.
type Span struct {
	EventID string
	Start   time.Time
	End     time.Time
}

// ExpandWindow resolves the snapshot's intervals into concrete busy spans
// intersecting [windowStart, windowEnd). Non-recurring intervals map 1:1;
// intervals carrying an RRule are expanded occurrence by occurrence, each
// keeping the base interval's duration. Intervals with unparseable
// timestamps or rules are skipped.
func ExpandWindow(resp Response, windowStart, windowEnd time.Time) []Span {
	loc := Location(resp.Timezone)
	spans := make([]Span, 0, len(resp.Intervals))

	for _, iv := range resp.Intervals {
		start, err := time.Parse(time.RFC3339, iv.Start)
		if err != nil {
			appLog.Error("skipping interval with invalid start", err, "event_id", iv.EventID)
			continue
		}
		end, err := time.Parse(time.RFC3339, iv.End)
		if err != nil {
			appLog.Error("skipping interval with invalid end", err, "event_id", iv.EventID)
			continue
		}
		start = start.In(loc)
		end = end.In(loc)

		if iv.RRule == "" {
			if end.After(windowStart) && start.Before(windowEnd) {
				spans = append(spans, Span{EventID: iv.EventID, Start: start, End: end})
			}
			continue
		}

		r, err := rrule.StrToRRule(iv.RRule)
		if err != nil {
			appLog.Error("skipping interval with invalid rrule", err,
				"event_id", iv.EventID, "rrule", iv.RRule)
			continue
		}
		r.DTStart(start)

		dur := end.Sub(start)
		occStarts := r.Between(windowStart.Add(-dur), windowEnd, true)
		if len(occStarts) > maxOccurrencesPerInterval {
			occStarts = occStarts[:maxOccurrencesPerInterval]
			appLog.Error("truncated recurrence expansion", nil,
				"event_id", iv.EventID, "cap", maxOccurrencesPerInterval)
		}
		for _, occStart := range occStarts {
			occStart = occStart.In(loc)
			occEnd := occStart.Add(dur)
			if occEnd.After(windowStart) && occStart.Before(windowEnd) {
				spans = append(spans, Span{EventID: iv.EventID, Start: occStart, End: occEnd})
			}
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })
	return spans
}
