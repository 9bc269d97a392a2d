package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-engine/internal/domain"
)

// ResultStore records attempt results as one hash per session:
// HSETNX quiz:results:{sessionID} {userID} {json}. HSETNX keeps the first
// write, so replays after a timeout never duplicate a participant.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

func (s *ResultStore) RecordAttemptResult(ctx context.Context, result domain.AttemptResult) error {
	key := resultsKey(result.SessionID)
	pipe := s.client.TxPipeline()
	for _, p := range result.Participants {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode result for %s: %w", p.UserID, err)
		}
		pipe.HSetNX(ctx, key, p.UserID, raw)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record results for session %s: %w", result.SessionID, err)
	}
	return nil
}

// Results loads every participant result stored for sessionID.
func (s *ResultStore) Results(ctx context.Context, sessionID string) ([]domain.ParticipantResult, error) {
	rows, err := s.client.HGetAll(ctx, resultsKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]domain.ParticipantResult, 0, len(rows))
	for userID, raw := range rows {
		var p domain.ParticipantResult
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", userID, err)
		}
		results = append(results, p)
	}
	return results, nil
}

func resultsKey(sessionID string) string { return "quiz:results:" + sessionID }
