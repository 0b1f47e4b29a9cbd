package usecases

import (
	"sync"
	"time"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// SessionStore keeps per-client fetch state in memory. Every cycle replaces
// the session's bounds and bumps its generation; only the cycle holding the
// latest generation may drive the presenter.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.SessionSnapshot
	now      func() time.Time
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.SessionSnapshot),
		now:      time.Now,
	}
}

// Begin starts a cycle on the session, creating it if needed, and returns the
// cycle's generation.
func (s *SessionStore) Begin(sessionID, cycleID string, bounds domain.Bounds) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &domain.SessionSnapshot{ID: sessionID}
		s.sessions[sessionID] = sess
	}
	b := bounds
	sess.Bounds = &b
	sess.CycleID = cycleID
	sess.Generation++
	sess.State = domain.StateLoading
	sess.ControlsEnabled = false
	sess.UpdatedAt = s.now()
	return sess.Generation
}

// IsCurrent reports whether gen is still the session's latest cycle.
func (s *SessionStore) IsCurrent(sessionID string, gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return ok && sess.Generation == gen
}

// Finish records the terminal state of cycle gen and re-enables controls.
// It returns false, leaving the session untouched, when a newer cycle has
// started since.
func (s *SessionStore) Finish(sessionID string, gen uint64, state domain.FetchState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.Generation != gen {
		return false
	}
	sess.State = state
	sess.ControlsEnabled = true
	sess.UpdatedAt = s.now()
	return true
}

// Get returns a copy of the session.
func (s *SessionStore) Get(sessionID string) (domain.SessionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.SessionSnapshot{}, false
	}
	out := *sess
	if sess.Bounds != nil {
		b := *sess.Bounds
		out.Bounds = &b
	}
	return out, true
}

// Len returns the number of known sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune drops idle sessions not updated within maxAge and returns how many
// were removed. Sessions with a cycle in flight are kept.
func (s *SessionStore) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for id, sess := range s.sessions {
		if sess.State == domain.StateLoading {
			continue
		}
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
