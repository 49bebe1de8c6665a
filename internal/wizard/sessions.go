package wizard

import (
	"sync"
	"time"
)

// Sessions owns one State per login session. Calls for the same session are
// serialized, so two requests from one learner never interleave on a State.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	mu      sync.Mutex
	state   State
	touched time.Time
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{entries: make(map[string]*entry), now: time.Now}
}

// With runs fn with exclusive access to the State of session id, creating it
// on first use.
func (s *Sessions) With(id string, fn func(st *State)) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.touched = s.now()
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
}

// Discard forgets the State of session id.
func (s *Sessions) Discard(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops states not used within maxIdle and returns how many were removed.
func (s *Sessions) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.touched.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
