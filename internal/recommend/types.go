// Package recommend generates meeting slot recommendations: it derives free
// candidate slots from the busy snapshot and asks Gemini to pick two options
// (Option A and Option B) with reasons.
package recommend

import (
	"errors"
	"time"
)

// ErrInvalid marks request/response validation failures that map to HTTP 400.
// Upstream (Gemini transport) failures are returned unwrapped and map to 502.
var ErrInvalid = errors.New("invalid recommendation input")

// ConversationTurn is one chat message providing context to the model.
type ConversationTurn struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// Option is a single recommended meeting slot.
type Option struct {
	ID     string    `json:"id"`
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

// Request is the POST /api/recommendations body.
type Request struct {
	Scenario        string             `json:"scenario"`
	Conversation    []ConversationTurn `json:"conversation"`
	Timezone        string             `json:"timezone,omitempty"`
	PreviousOptions []Option           `json:"previousOptions"`
}

// Response is the recommendation result.
type Response struct {
	Scenario  string    `json:"scenario"`
	Message   string    `json:"message"`
	Options   []Option  `json:"options"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}
