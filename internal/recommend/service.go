package recommend

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"schedcal/internal/busy"
	appLog "schedcal/internal/log"
)

// DefaultMessage is the fixed top-level message returned with every
// successful recommendation.
const DefaultMessage = "Here are two meeting options that fit your availability."

//go:embed prompts/option_a.txt
var promptOptionA string

//go:embed prompts/option_b.txt
var promptOptionB string

// Service produces two-option recommendations from a busy snapshot.
type Service struct {
	gemini          *GeminiClient
	durationMinutes int
	windowDays      int

	// now is injectable for tests.
	now func() time.Time
}

// NewService wires a recommendation service. Non-positive duration/window
// fall back to 60 minutes / 7 days.
func NewService(gemini *GeminiClient, durationMinutes, windowDays int) *Service {
	if durationMinutes <= 0 {
		durationMinutes = 60
	}
	if windowDays <= 0 {
		windowDays = 7
	}
	return &Service{
		gemini:          gemini,
		durationMinutes: durationMinutes,
		windowDays:      windowDays,
		now:             time.Now,
	}
}

// Generate derives free candidate slots from the snapshot and asks the model
// for Option A and Option B in parallel. Each call must return exactly one
// option whose ISO timestamps match a candidate.
//
// Errors wrapping ErrInvalid are caller/model validation failures (HTTP 400);
// anything else is an upstream failure (HTTP 502).
func (s *Service) Generate(ctx context.Context, req Request, snapshot busy.Response) (Response, error) {
	tzName := req.Timezone
	if tzName == "" {
		tzName = snapshot.Timezone
	}
	if tzName == "" {
		tzName = "UTC"
	}

	candidates := generateCandidates(snapshot, tzName, s.now(), s.durationMinutes, s.windowDays)
	if len(candidates) < 2 {
		return Response{}, fmt.Errorf(
			"%w: not enough available slots within the next %d days to recommend a meeting",
			ErrInvalid, s.windowDays)
	}

	candidateKeys := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		candidateKeys[c.key()] = struct{}{}
	}

	userPrompt := s.buildUserPrompt(req, tzName, candidates)
	appLog.Debug("requesting recommendations", "candidates", len(candidates), "timezone", tzName)

	type outcome struct {
		option Option
		err    error
	}
	resultA := make(chan outcome, 1)
	resultB := make(chan outcome, 1)

	invoke := func(systemPrompt, optionID, optionLabel string, out chan<- outcome) {
		payload, err := s.gemini.GenerateJSON(ctx, systemPrompt, userPrompt)
		if err != nil {
			out <- outcome{err: err}
			return
		}
		option, err := extractOption(payload, candidateKeys, optionID, optionLabel)
		out <- outcome{option: option, err: err}
	}

	go invoke(promptOptionA, "option_a", "Option A", resultA)
	go invoke(promptOptionB, "option_b", "Option B", resultB)

	a := <-resultA
	b := <-resultB
	if a.err != nil {
		return Response{}, a.err
	}
	if b.err != nil {
		return Response{}, b.err
	}

	return Response{
		Scenario:  req.Scenario,
		Message:   DefaultMessage,
		Options:   []Option{a.option, b.option},
		Model:     s.gemini.Model(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) buildUserPrompt(req Request, tzName string, candidates []candidateSlot) string {
	return fmt.Sprintf(`Scenario:
%s

Timezone: %s

Available Slots (ISO timestamps provided in brackets):
%s

Previous Recommendations:
%s

Recent Conversation:
%s

Select exactly one option from the numbered list above. Use the ISO timestamps in brackets when forming the JSON response.`,
		strings.TrimSpace(req.Scenario),
		tzName,
		formatSlotsForPrompt(candidates, tzName),
		formatPreviousOptions(req.PreviousOptions),
		conversationToBullets(req.Conversation),
	)
}

// extractOption validates the model payload: it must carry a non-empty
// message and a single option whose timestamps are timezone-aware ISO
// datetimes matching one of the offered candidates.
func extractOption(payload map[string]any, candidateKeys map[string]struct{}, optionID, optionLabel string) (Option, error) {
	message, _ := payload["message"].(string)
	if strings.TrimSpace(message) == "" {
		return Option{}, fmt.Errorf("%w: gemini response is missing a descriptive message", ErrInvalid)
	}

	optionPayload, _ := payload["option"].(map[string]any)
	if optionPayload == nil {
		if list, ok := payload["options"].([]any); ok && len(list) > 0 {
			optionPayload, _ = list[0].(map[string]any)
		}
	}
	if optionPayload == nil {
		return Option{}, fmt.Errorf("%w: gemini response did not include a single option", ErrInvalid)
	}

	startStr, _ := optionPayload["start"].(string)
	endStr, _ := optionPayload["end"].(string)
	reason, _ := optionPayload["reason"].(string)
	if startStr == "" || endStr == "" {
		return Option{}, fmt.Errorf("%w: gemini option payload is missing required fields", ErrInvalid)
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return Option{}, fmt.Errorf("%w: gemini option timestamps were not valid ISO datetimes", ErrInvalid)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return Option{}, fmt.Errorf("%w: gemini option timestamps were not valid ISO datetimes", ErrInvalid)
	}

	key := start.Format(time.RFC3339) + "|" + end.Format(time.RFC3339)
	if _, ok := candidateKeys[key]; !ok {
		return Option{}, fmt.Errorf("%w: gemini option (%s) did not match any available slot", ErrInvalid, optionLabel)
	}

	return Option{
		ID:     optionID,
		Label:  optionLabel,
		Start:  start,
		End:    end,
		Reason: reason,
	}, nil
}
