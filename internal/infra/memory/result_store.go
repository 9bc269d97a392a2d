package memory

import (
	"context"
	"sync"

	"live-quiz-engine/internal/domain"
)

// ResultStore keeps attempt results in memory. Recording a session again
// never adds a second row for a participant.
type ResultStore struct {
	mu      sync.Mutex
	results map[string]map[string]domain.ParticipantResult // session id -> user id
	writes  int
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]map[string]domain.ParticipantResult)}
}

func (s *ResultStore) RecordAttemptResult(_ context.Context, result domain.AttemptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	rows, ok := s.results[result.SessionID]
	if !ok {
		rows = make(map[string]domain.ParticipantResult, len(result.Participants))
		s.results[result.SessionID] = rows
	}
	for _, p := range result.Participants {
		if _, exists := rows[p.UserID]; !exists {
			rows[p.UserID] = p
		}
	}
	return nil
}

// Results returns the stored rows for sessionID.
func (s *ResultStore) Results(sessionID string) []domain.ParticipantResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]domain.ParticipantResult, 0, len(s.results[sessionID]))
	for _, p := range s.results[sessionID] {
		rows = append(rows, p)
	}
	return rows
}

// Writes counts RecordAttemptResult calls, including repeats.
func (s *ResultStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
