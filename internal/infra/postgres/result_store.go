package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-engine/internal/domain"
)

// ResultStore writes one attempt_results row per participant of a finished
// session. The (session_id, user_id) key makes a replayed write a no-op.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) RecordAttemptResult(ctx context.Context, result domain.AttemptResult) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range result.Participants {
			subs, err := json.Marshal(p.Submissions)
			if err != nil {
				return fmt.Errorf("encode submissions for %s: %w", p.UserID, err)
			}
			batch.Queue(`
				INSERT INTO attempt_results
					(session_id, quiz_id, host_id, user_id, display_name, score, rank, submissions, finished_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (session_id, user_id) DO NOTHING`,
				result.SessionID, result.QuizID, result.HostID, p.UserID, p.DisplayName, p.Score, p.Rank, subs, result.FinishedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range result.Participants {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("record results for session %s: %w", result.SessionID, err)
			}
		}
		return br.Close()
	})
}

// Results returns the stored rows for sessionID ordered by rank.
func (s *ResultStore) Results(ctx context.Context, sessionID string) ([]domain.ParticipantResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, display_name, score, rank, submissions
		FROM attempt_results WHERE session_id = $1 ORDER BY rank`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ParticipantResult
	for rows.Next() {
		var (
			p    domain.ParticipantResult
			subs []byte
		)
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Score, &p.Rank, &subs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(subs, &p.Submissions); err != nil {
			return nil, fmt.Errorf("decode submissions for %s: %w", p.UserID, err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}
