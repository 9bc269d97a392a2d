package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/clock"
	"live-quiz-engine/internal/domain"
	"live-quiz-engine/internal/infra/memory"
)

var epoch = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

var hostIdentity = domain.Identity{UserID: "host", Name: "Quizmaster", Role: domain.RoleHost}

func participant(id string) domain.Identity {
	return domain.Identity{UserID: id, Role: domain.RoleParticipant}
}

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Basics",
		TimeLimitSeconds: 10,
		Questions: []domain.Question{
			{
				ID:      "q1",
				Prompt:  "What is 2 + 2?",
				Options: []domain.Option{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}},
				Answer:  "b",
			},
			{
				ID:      "q2",
				Prompt:  "Capital of France?",
				Options: []domain.Option{{ID: "a", Text: "Paris"}, {ID: "b", Text: "Lyon"}},
				Answer:  "a",
			},
		},
	}
}

func testConfig() app.EngineConfig {
	return app.EngineConfig{
		Policy: app.PolicyPerQuiz,
		Session: app.SessionConfig{
			DefaultTimeLimit: 10 * time.Second,
			RevealInterval:   5 * time.Second,
			PresenceGrace:    3 * time.Second,
			Retention:        time.Minute,
			QueueSize:        64,
			MaxSendFailures:  3,
			MaxChatLength:    500,
			Scoring:          app.Scorer{Policy: app.ScoringSpeed, BasePoints: 1000, MinFactor: 0.25},
		},
		Results: app.RetryPolicy{
			MaxRetries:      3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			AttemptTimeout:  time.Second,
		},
	}
}

type registryOptions struct {
	sessions app.SessionRepository
	cfg      app.EngineConfig
	results  app.ResultStore
	quizzes  app.QuizRepository
	notifier app.Notifier
}

func newTestRegistry(t *testing.T, clk *clock.FakeClock, mutate ...func(*registryOptions)) *app.Registry {
	t.Helper()
	opts := registryOptions{
		sessions: memory.NewSessionStore(),
		cfg:      testConfig(),
		results:  memory.NewResultStore(),
		quizzes:  memory.Catalog{"quiz-1": testQuiz()},
	}
	for _, m := range mutate {
		m(&opts)
	}
	options := []app.Option{app.WithClock(clk), app.WithConfig(opts.cfg)}
	if opts.notifier != nil {
		options = append(options, app.WithNotifier(opts.notifier))
	}
	registry := app.NewRegistry(opts.sessions, opts.quizzes, opts.results, options...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Close(ctx)
	})
	return registry
}

// fakeMember records everything the session sends it.
type fakeMember struct {
	mu       sync.Mutex
	messages []app.Message
	closed   *app.CloseReason
	reject   bool
}

func (m *fakeMember) Deliver(msg app.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject || m.closed != nil {
		return false
	}
	m.messages = append(m.messages, msg)
	return true
}

func (m *fakeMember) Close(reason app.CloseReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed == nil {
		m.closed = &reason
	}
}

func (m *fakeMember) types() []app.MessageType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]app.MessageType, 0, len(m.messages))
	for _, msg := range m.messages {
		types = append(types, msg.Type)
	}
	return types
}

func (m *fakeMember) last(t *testing.T, typ app.MessageType) app.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Type == typ {
			return m.messages[i]
		}
	}
	t.Fatalf("no %s message among %d received", typ, len(m.messages))
	return app.Message{}
}

func (m *fakeMember) closeReason() *app.CloseReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func join(t *testing.T, s *app.Session, identity domain.Identity, name string) *fakeMember {
	t.Helper()
	m := &fakeMember{}
	require.NoError(t, s.Join(context.Background(), identity, name, m))
	return m
}

func snapshot(t *testing.T, s *app.Session) app.Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func userIDs(entries []domain.LeaderboardEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

func presenceOf(snap app.Snapshot, userID string) domain.PresenceStatus {
	for _, p := range snap.Participants {
		if p.UserID == userID {
			return p.Presence
		}
	}
	return ""
}

func waitDone(t *testing.T, s *app.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not stop", s.ID())
	}
}

// recordingNotifier collects lifecycle events published off the actor goroutine.
type recordingNotifier struct {
	mu     sync.Mutex
	events []app.LifecycleEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event app.LifecycleEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.events))
	for _, e := range n.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (n *recordingNotifier) find(kind string) (app.LifecycleEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.Kind == kind {
			return e, true
		}
	}
	return app.LifecycleEvent{}, false
}
