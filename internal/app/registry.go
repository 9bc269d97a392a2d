package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"live-quiz-engine/internal/clock"
	"live-quiz-engine/internal/domain"
)

// Registry creates live sessions and is the directory the gateway looks them up in.
type Registry struct {
	sessions SessionRepository
	quizzes  QuizRepository
	results  ResultStore
	recorder *ResultRecorder
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	cfg      EngineConfig
	newID    func() string

	baseCtx context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Option customizes a Registry.
type Option func(*Registry)

func WithClock(c clock.Clock) Option       { return func(r *Registry) { r.clock = c } }
func WithLogger(l *slog.Logger) Option     { return func(r *Registry) { r.logger = l } }
func WithNotifier(n Notifier) Option       { return func(r *Registry) { r.notifier = n } }
func WithConfig(cfg EngineConfig) Option   { return func(r *Registry) { r.cfg = cfg } }
func WithIDGenerator(f func() string) Option { return func(r *Registry) { r.newID = f } }

// NewRegistry wires the registry. results may be nil, in which case finished
// sessions are not recorded anywhere.
func NewRegistry(sessions SessionRepository, quizzes QuizRepository, results ResultStore, opts ...Option) *Registry {
	r := &Registry{
		sessions: sessions,
		quizzes:  quizzes,
		results:  results,
		notifier: nopNotifier{},
		clock:    clock.Real(),
		logger:   slog.Default(),
		cfg:      DefaultEngineConfig(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.Policy == "" {
		r.cfg.Policy = PolicyPerQuiz
	}
	r.cfg.Session = r.cfg.Session.withDefaults()
	if results != nil {
		r.recorder = NewResultRecorder(results, r.cfg.Results, r.notifier, r.logger)
	}
	r.baseCtx, r.cancel = context.WithCancel(context.Background())
	return r
}

// CreateSession loads quizID and starts a session actor in the lobby state.
func (r *Registry) CreateSession(ctx context.Context, quizID string, host domain.Identity) (*Session, error) {
	if !host.Role.CanHost() {
		return nil, fmt.Errorf("%w: role %q cannot host sessions", domain.ErrForbidden, host.Role)
	}

	quiz, err := r.quizzes.GetQuiz(ctx, quizID)
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: load quiz %s: %v", domain.ErrUnavailable, quizID, err)
	case len(quiz.Questions) == 0:
		return nil, fmt.Errorf("%w: quiz %s has no questions", domain.ErrUnavailable, quizID)
	}

	session := newSession(sessionParams{
		id:       r.newID(),
		key:      r.cfg.Policy.key(quiz.ID, host.UserID),
		quiz:     quiz,
		host:     host,
		cfg:      r.cfg.Session,
		clock:    r.clock,
		logger:   r.logger,
		recorder: r.recorder,
		notifier: r.notifier,
		baseCtx:  r.baseCtx,
		onClosed: r.remove,
	})
	if err := r.sessions.Insert(ctx, session); err != nil {
		return nil, err
	}

	r.running.Add(1)
	go func() {
		defer r.running.Done()
		session.run()
	}()
	r.logger.Info("session created", "session_id", session.ID(), "quiz_id", quiz.ID, "host_id", host.UserID)
	return session, nil
}

// GetSession returns the live session with id.
func (r *Registry) GetSession(id string) (*Session, error) {
	session, ok := r.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// TerminateSession shuts a session down. Terminating an unknown or already
// closed session is not an error.
func (r *Registry) TerminateSession(ctx context.Context, id string) error {
	session, ok := r.sessions.Get(id)
	if !ok {
		return nil
	}
	return session.terminate(ctx)
}

// Active reports the number of live sessions.
func (r *Registry) Active() int {
	return len(r.sessions.List())
}

// Close terminates every session. Result writes still retrying when ctx ends are abandoned.
func (r *Registry) Close(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, session := range r.sessions.List() {
		session := session
		g.Go(func() error { return session.terminate(gctx) })
	}
	err := g.Wait()
	r.cancel()

	stopped := make(chan struct{})
	go func() {
		r.running.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// remove runs after the session loop has stopped handling events.
func (r *Registry) remove(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !r.sessions.Delete(ctx, s.ID()) {
		r.logger.Warn("session missing from directory on teardown", "session_id", s.ID())
	}
}
