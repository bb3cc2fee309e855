package busy

import "sync"

// State holds the latest normalized busy snapshot. The backend keeps exactly
// one snapshot: each POST replaces it wholesale, DELETE drops it. There is no
// persistence; a restart is equivalent to a clear.
type State struct {
	mu     sync.RWMutex
	latest *Response
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// Set replaces the stored snapshot.
func (s *State) Set(resp Response) {
	s.mu.Lock()
	s.latest = &resp
	s.mu.Unlock()
}

// Get returns the stored snapshot, or ok=false when none has been submitted
// since the last clear.
func (s *State) Get() (Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Response{}, false
	}
	return *s.latest, true
}

// Clear drops the stored snapshot.
func (s *State) Clear() {
	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
}
