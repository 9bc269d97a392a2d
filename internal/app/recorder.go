package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"live-quiz-engine/internal/domain"
)

// ResultRecorder writes finished sessions to the ResultStore with bounded
// exponential retry. When retries run out the full payload is logged and a
// results_failed event is published so the result can be replayed by hand.
type ResultRecorder struct {
	store    ResultStore
	policy   RetryPolicy
	notifier Notifier
	logger   *slog.Logger
}

func NewResultRecorder(store ResultStore, policy RetryPolicy, notifier Notifier, logger *slog.Logger) *ResultRecorder {
	d := DefaultEngineConfig().Results
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = d.InitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = d.MaxInterval
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = d.AttemptTimeout
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultRecorder{store: store, policy: policy, notifier: notifier, logger: logger}
}

// Record blocks until result is stored, retries are exhausted, or ctx ends.
func (r *ResultRecorder) Record(ctx context.Context, result domain.AttemptResult) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0

	attempts := 0
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
		defer cancel()
		return r.store.RecordAttemptResult(attemptCtx, result)
	}
	retrying := func(err error, wait time.Duration) {
		r.logger.Warn("recording session results failed, retrying",
			"session_id", result.SessionID, "attempt", attempts, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, retrying); err != nil {
		r.alert(result, attempts, err)
		return fmt.Errorf("record results for session %s: %w", result.SessionID, err)
	}
	if attempts > 1 {
		r.logger.Info("session results recorded after retry", "session_id", result.SessionID, "attempts", attempts)
	}
	return nil
}

func (r *ResultRecorder) alert(result domain.AttemptResult, attempts int, cause error) {
	r.logger.Error("giving up on session results",
		"session_id", result.SessionID,
		"quiz_id", result.QuizID,
		"attempts", attempts,
		"error", cause,
		"result", result,
	)
	event := LifecycleEvent{
		Kind:      EventResultsFailed,
		SessionID: result.SessionID,
		QuizID:    result.QuizID,
		HostID:    result.HostID,
		At:        result.FinishedAt,
		Reason:    cause.Error(),
		Result:    &result,
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.policy.AttemptTimeout)
	defer cancel()
	if err := r.notifier.Notify(ctx, event); err != nil {
		r.logger.Error("results_failed notification failed", "session_id", result.SessionID, "error", err)
	}
}
