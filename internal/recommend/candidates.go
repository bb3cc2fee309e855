package recommend

import (
	"fmt"
	"strings"
	"time"

	"schedcal/internal/busy"
)

const (
	// SlotIncrementMinutes is the step between candidate start times.
	SlotIncrementMinutes = 30
	// MaxCandidateSlots caps the candidate list handed to the model.
	MaxCandidateSlots = 168
)

// candidateSlot is a free span long enough for the requested meeting.
type candidateSlot struct {
	Start time.Time
	End   time.Time
}

// key identifies a candidate by its exact ISO timestamps; the model must
// echo one of these back.
func (c candidateSlot) key() string {
	return c.Start.Format(time.RFC3339) + "|" + c.End.Format(time.RFC3339)
}

// roundUpToIncrement rounds t up to the next increment boundary within its
// day (already-aligned times stay put).
func roundUpToIncrement(t time.Time, minutes int) time.Time {
	incr := time.Duration(minutes) * time.Minute
	t = t.Truncate(time.Second)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	since := t.Sub(day)
	if since%incr == 0 {
		return t
	}
	return day.Add((since/incr + 1) * incr)
}

func overlaps(start, end, busyStart, busyEnd time.Time) bool {
	return start.Before(busyEnd) && busyStart.Before(end)
}

// generateCandidates walks the window from now in 30-minute steps, keeping
// spans that fit the meeting duration, stay within a single day, and avoid
// every busy span (recurrences already expanded).
func generateCandidates(snapshot busy.Response, tzName string, now time.Time, durationMinutes, daysAhead int) []candidateSlot {
	loc := busy.Location(tzName)
	now = now.In(loc)
	windowEnd := now.AddDate(0, 0, daysAhead)
	busySpans := busy.ExpandWindow(snapshot, now, windowEnd)

	duration := time.Duration(durationMinutes) * time.Minute
	current := roundUpToIncrement(now, SlotIncrementMinutes)

	candidates := make([]candidateSlot, 0)
	for !current.Add(duration).After(windowEnd) {
		candidateEnd := current.Add(duration)

		// Meetings must not straddle midnight.
		if candidateEnd.YearDay() != current.YearDay() || candidateEnd.Year() != current.Year() {
			current = current.Add(SlotIncrementMinutes * time.Minute)
			continue
		}

		conflict := false
		for _, span := range busySpans {
			if overlaps(current, candidateEnd, span.Start, span.End) {
				conflict = true
				break
			}
		}
		if !conflict {
			candidates = append(candidates, candidateSlot{Start: current, End: candidateEnd})
			if len(candidates) >= MaxCandidateSlots {
				break
			}
		}

		current = current.Add(SlotIncrementMinutes * time.Minute)
	}

	return candidates
}

// formatSlotsForPrompt renders the numbered candidate list shown to the
// model, with the exact ISO timestamps in brackets.
func formatSlotsForPrompt(slots []candidateSlot, tzName string) string {
	if len(slots) == 0 {
		return "No available slots within the requested window."
	}

	var b strings.Builder
	for i, slot := range slots {
		fmt.Fprintf(&b, "%d. %s - %s (%s) [%s → %s]\n",
			i+1,
			slot.Start.Format("Monday, January 02 · 03:04 PM"),
			slot.End.Format("03:04 PM"),
			tzName,
			slot.Start.Format(time.RFC3339),
			slot.End.Format(time.RFC3339),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// conversationToBullets renders prior chat turns as bullets.
func conversationToBullets(conversation []ConversationTurn) string {
	lines := make([]string, 0, len(conversation))
	for _, turn := range conversation {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := turn.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", role, content))
	}
	if len(lines) == 0 {
		return "No previous conversation."
	}
	return strings.Join(lines, "\n")
}

// formatPreviousOptions renders options already shown to the user so the
// model can avoid repeating them.
func formatPreviousOptions(options []Option) string {
	if len(options) == 0 {
		return "None provided yet."
	}

	lines := make([]string, 0, len(options))
	for _, option := range options {
		reason := ""
		if option.Reason != "" {
			reason = " - " + option.Reason
		}
		lines = append(lines, fmt.Sprintf("- %s: %s - %s%s",
			option.Label,
			option.Start.Format("Jan 02, 2006 · 03:04 PM"),
			option.End.Format("03:04 PM"),
			reason,
		))
	}
	return strings.Join(lines, "\n")
}
