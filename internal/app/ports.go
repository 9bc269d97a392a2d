package app

import (
	"context"
	"time"

	"live-quiz-engine/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionRepository is the directory of live sessions (in-memory, Redis-marked, etc).
// Insert must fail with domain.ErrConflict when the session id or its
// exclusive key is already held by another live session.
type SessionRepository interface {
	Insert(ctx context.Context, session *Session) error
	Get(sessionID string) (*Session, bool)
	Delete(ctx context.Context, sessionID string) bool
	List() []*Session
}

// ResultStore durably records finished sessions. Recording the same session
// twice must leave exactly one result per participant.
type ResultStore interface {
	RecordAttemptResult(ctx context.Context, result domain.AttemptResult) error
}

// IdentityProvider validates a bearer credential. Failures wrap domain.ErrUnauthorized.
type IdentityProvider interface {
	ValidateCredential(ctx context.Context, token string) (domain.Identity, error)
}

// Lifecycle event kinds published through a Notifier.
const (
	EventSessionStarted  = "started"
	EventSessionFinished = "finished"
	EventSessionAborted  = "aborted"
	EventResultsFailed   = "results_failed"
)

// LifecycleEvent is emitted on session transitions and on unrecoverable result writes.
type LifecycleEvent struct {
	Kind      string                `json:"kind"`
	SessionID string                `json:"sessionId"`
	QuizID    string                `json:"quizId"`
	HostID    string                `json:"hostId"`
	At        time.Time             `json:"at"`
	Reason    string                `json:"reason,omitempty"`
	Result    *domain.AttemptResult `json:"result,omitempty"`
}

// Notifier receives lifecycle events outside the session goroutine.
type Notifier interface {
	Notify(ctx context.Context, event LifecycleEvent) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, LifecycleEvent) error { return nil }

// Member is the outbound half of one connection attached to a session.
type Member interface {
	// Deliver enqueues msg without blocking and reports whether it was accepted.
	Deliver(msg Message) bool
	// Close ends the connection. Safe to call more than once.
	Close(reason CloseReason)
}

// CloseReason is the websocket close code and text sent when a member is dropped.
type CloseReason struct {
	Code int
	Text string
}

var (
	CloseNormal       = CloseReason{Code: 1000, Text: "left session"}
	CloseSessionEnded = CloseReason{Code: 4000, Text: "session ended"}
	CloseReplaced     = CloseReason{Code: 4001, Text: "replaced by a newer connection"}
	CloseSlowConsumer = CloseReason{Code: 4008, Text: "too many failed deliveries"}
)
