package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/domain"
)

// releaseLock deletes the exclusivity key only while it still names this session.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore keeps live session actors in a local map and mirrors them in
// Redis: quiz:session:{id} marks liveness and quiz:lock:{key} enforces the
// exclusivity policy across engine processes. Keys carry a TTL so a crashed
// process does not hold locks forever; KeepAlive refreshes them.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Insert(ctx context.Context, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID()]; ok {
		return fmt.Errorf("%w: session %s already exists", domain.ErrConflict, session.ID())
	}

	acquired, err := s.client.SetNX(ctx, lockKey(session.ExclusiveKey()), session.ID(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: acquire session lock: %v", domain.ErrUnavailable, err)
	}
	if !acquired {
		return fmt.Errorf("%w: a session is already running for %s", domain.ErrConflict, session.ExclusiveKey())
	}
	if err := s.client.Set(ctx, liveKey(session.ID()), session.ExclusiveKey(), s.ttl).Err(); err != nil {
		s.logger.Warn("marking session live failed", "session_id", session.ID(), "error", err)
	}
	s.sessions[session.ID()] = session
	return nil
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) bool {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return false
	}

	if err := releaseLock.Run(ctx, s.client, []string{lockKey(session.ExclusiveKey())}, sessionID).Err(); err != nil {
		s.logger.Warn("releasing session lock failed", "session_id", sessionID, "error", err)
	}
	if err := s.client.Del(ctx, liveKey(sessionID)).Err(); err != nil {
		s.logger.Warn("clearing session marker failed", "session_id", sessionID, "error", err)
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

// Refresh extends the TTL of every key owned by this process.
func (s *SessionStore) Refresh(ctx context.Context) error {
	sessions := s.List()
	if len(sessions) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, session := range sessions {
		pipe.Expire(ctx, lockKey(session.ExclusiveKey()), s.ttl)
		pipe.Expire(ctx, liveKey(session.ID()), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// KeepAlive refreshes keys every third of the TTL until ctx is done.
func (s *SessionStore) KeepAlive(ctx context.Context) error {
	if s.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("refreshing session keys failed", "error", err)
			}
		}
	}
}

func liveKey(sessionID string) string { return "quiz:session:" + sessionID }

func lockKey(exclusiveKey string) string { return "quiz:lock:" + exclusiveKey }
