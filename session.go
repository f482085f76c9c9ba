package sessionstore

import (
	"maps"
	"sync"
	"time"
)

// State is the application-visible session data.
type State map[string]string

// Clone returns a copy of the state. A nil state clones to an empty one.
func (s State) Clone() State {
	c := make(State, len(s))
	maps.Copy(c, s)
	return c
}

// Session is the request-scoped view of a stored session used by Manager.
// Individual Session objects should be handled within the scope of a single request.
type Session struct {
	ID        string
	Values    State
	ExpiresAt time.Time

	mu    sync.Mutex
	isNew bool
	dirty bool
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[key]
	return v, ok
}

// Set stores a value and marks the session dirty.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = make(State)
	}
	s.Values[key] = value
	s.dirty = true
}

// Delete removes a value. The session is marked dirty only if the key existed.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Values[key]; ok {
		delete(s.Values, key)
		s.dirty = true
	}
}

// Clear wipes all values from memory.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.Values)
	s.dirty = true
}

// IsNew reports whether the session has never been persisted.
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}
