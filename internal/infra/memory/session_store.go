package memory

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/domain"
)

// SessionStore is an in-process app.SessionRepository. It also holds the
// exclusivity keys so two live sessions never share one.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
	keys     map[string]string // exclusive key -> session id
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
		keys:     make(map[string]string),
	}
}

func (s *SessionStore) Insert(_ context.Context, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID()]; ok {
		return fmt.Errorf("%w: session %s already exists", domain.ErrConflict, session.ID())
	}
	if holder, ok := s.keys[session.ExclusiveKey()]; ok {
		return fmt.Errorf("%w: session %s is already running for %s", domain.ErrConflict, holder, session.ExclusiveKey())
	}
	s.sessions[session.ID()] = session
	s.keys[session.ExclusiveKey()] = session.ID()
	return nil
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	delete(s.sessions, sessionID)
	if s.keys[session.ExclusiveKey()] == sessionID {
		delete(s.keys, session.ExclusiveKey())
	}
	return true
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	return list
}
