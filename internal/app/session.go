package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"live-quiz-engine/internal/clock"
	"live-quiz-engine/internal/domain"
)

// Command is a host action on a session.
type Command string

const (
	CommandStart Command = "start"
	CommandNext  Command = "next"
	CommandAbort Command = "abort"
)

// Session is the actor for one live run of a quiz. All state below the
// events field is owned by the run goroutine; other goroutines only talk to
// it through the inbound queue.
type Session struct {
	id        string
	key       string
	quiz      domain.Quiz
	host      domain.Identity
	createdAt time.Time
	cfg       SessionConfig
	clock     clock.Clock
	logger    *slog.Logger
	recorder  *ResultRecorder
	notifier  Notifier
	baseCtx   context.Context
	onClosed  func(*Session)

	events chan any
	// stopped closes when the run loop exits; done closes once the session
	// has also left the directory.
	stopped chan struct{}
	done    chan struct{}

	state         domain.SessionState
	index         int
	openedAt      time.Time
	deadline      time.Time
	limit         time.Duration
	phase         uint64
	participants  map[string]*participant
	joinOrder     []string
	presence      *Presence
	board         *Leaderboard
	hostMember    Member
	viewers       map[Member]struct{}
	failures      map[Member]int
	timers        map[string]clock.Timer
	pending       []any
	recording     bool
	closeDeferred bool
	closed        bool
}

type participant struct {
	userID      string
	displayName string
	joinedAt    time.Time
	score       int
	submissions map[string]domain.Submission
}

// Snapshot is a consistent read of session state taken by the actor.
type Snapshot struct {
	SessionID     string                    `json:"sessionId"`
	QuizID        string                    `json:"quizId"`
	HostID        string                    `json:"hostId"`
	State         domain.SessionState       `json:"state"`
	QuestionIndex int                       `json:"questionIndex"`
	QuestionID    string                    `json:"questionId,omitempty"`
	Deadline      time.Time                 `json:"deadline,omitempty"`
	Leaderboard   []domain.LeaderboardEntry `json:"leaderboard"`
	Participants  []ParticipantView         `json:"participants"`
}

// ParticipantView is one participant inside a Snapshot.
type ParticipantView struct {
	UserID      string                `json:"userId"`
	DisplayName string                `json:"displayName"`
	Score       int                   `json:"score"`
	Presence    domain.PresenceStatus `json:"presence"`
	Submissions []domain.Submission   `json:"submissions"`
}

type sessionParams struct {
	id       string
	key      string
	quiz     domain.Quiz
	host     domain.Identity
	cfg      SessionConfig
	clock    clock.Clock
	logger   *slog.Logger
	recorder *ResultRecorder
	notifier Notifier
	baseCtx  context.Context
	onClosed func(*Session)
}

func newSession(p sessionParams) *Session {
	cfg := p.cfg.withDefaults()
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.notifier == nil {
		p.notifier = nopNotifier{}
	}
	if p.baseCtx == nil {
		p.baseCtx = context.Background()
	}
	return &Session{
		id:           p.id,
		key:          p.key,
		quiz:         p.quiz,
		host:         p.host,
		createdAt:    p.clock.Now(),
		cfg:          cfg,
		clock:        p.clock,
		logger:       p.logger.With("session_id", p.id, "quiz_id", p.quiz.ID),
		recorder:     p.recorder,
		notifier:     p.notifier,
		baseCtx:      p.baseCtx,
		onClosed:     p.onClosed,
		events:       make(chan any, cfg.QueueSize),
		stopped:      make(chan struct{}),
		done:         make(chan struct{}),
		state:        domain.StateLobby,
		participants: make(map[string]*participant),
		presence:     NewPresence(),
		board:        NewLeaderboard(),
		viewers:      make(map[Member]struct{}),
		failures:     make(map[Member]int),
		timers:       make(map[string]clock.Timer),
	}
}

func (s *Session) ID() string              { return s.id }
func (s *Session) QuizID() string          { return s.quiz.ID }
func (s *Session) Host() domain.Identity   { return s.host }
func (s *Session) ExclusiveKey() string    { return s.key }
func (s *Session) CreatedAt() time.Time    { return s.createdAt }
func (s *Session) Done() <-chan struct{}   { return s.done }

type joinEvent struct {
	identity    domain.Identity
	displayName string
	member      Member
	reply       chan error
}

type submitEvent struct {
	userID     string
	questionID string
	answer     string
	at         time.Time
	reply      chan submitReply
}

type submitReply struct {
	result domain.AnswerResult
	err    error
}

type chatEvent struct {
	userID string
	text   string
	reply  chan error
}

type leaveEvent struct {
	userID string
	member Member
	reply  chan error
}

type disconnectEvent struct {
	userID string
	member Member
}

type commandEvent struct {
	userID  string
	command Command
	reply   chan error
}

type snapshotEvent struct {
	reply chan Snapshot
}

type terminateEvent struct{}

type questionDeadlineEvent struct{ phase uint64 }

type revealElapsedEvent struct{ phase uint64 }

type retentionElapsedEvent struct{}

type graceExpiredEvent struct {
	userID     string
	generation uint64
}

type recordedEvent struct{ err error }

// Join attaches member for identity. Rejoining with the same identity
// replaces the previous connection and keeps score and history.
func (s *Session) Join(ctx context.Context, identity domain.Identity, displayName string, member Member) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, joinEvent{identity: identity, displayName: displayName, member: member, reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Submit records an answer. The submission is stamped with the session clock
// before it is queued.
func (s *Session) Submit(ctx context.Context, userID, questionID, answer string) (domain.AnswerResult, error) {
	reply := make(chan submitReply, 1)
	ev := submitEvent{userID: userID, questionID: questionID, answer: answer, at: s.clock.Now(), reply: reply}
	if err := s.post(ctx, ev); err != nil {
		return domain.AnswerResult{}, err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return r.result, r.err
}

// Chat broadcasts text from userID to the session.
func (s *Session) Chat(ctx context.Context, userID, text string) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, chatEvent{userID: userID, text: text, reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Leave removes userID from presence for good. Their score stays on the board.
func (s *Session) Leave(ctx context.Context, userID string, member Member) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, leaveEvent{userID: userID, member: member, reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Disconnect reports that member's connection dropped. It never blocks past
// session teardown.
func (s *Session) Disconnect(userID string, member Member) {
	s.enqueue(disconnectEvent{userID: userID, member: member})
}

// Command applies a host action. Only the session host may issue commands.
func (s *Session) Command(ctx context.Context, userID string, command Command) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, commandEvent{userID: userID, command: command, reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Snapshot returns the current state as seen by the actor.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.post(ctx, snapshotEvent{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	return await(ctx, s, reply)
}

// terminate asks the actor to shut down and waits until it has, or ctx ends.
// A finished session still writing its results shuts down once the write resolves.
func (s *Session) terminate(ctx context.Context) error {
	if err := s.post(ctx, terminateEvent{}); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) post(ctx context.Context, ev any) error {
	select {
	case <-s.stopped:
		return domain.ErrSessionNotFound
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.stopped:
		return domain.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue is post for timer callbacks and disconnects, which have no caller context.
func (s *Session) enqueue(ev any) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	}
}

func await[T any](ctx context.Context, s *Session, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.stopped:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, domain.ErrSessionNotFound
		}
	}
}

func (s *Session) run() {
	s.logger.Info("session actor started", "host_id", s.host.UserID, "questions", len(s.quiz.Questions))
	for !s.closed {
		s.handle(<-s.events)
		for len(s.pending) > 0 && !s.closed {
			next := s.pending[0]
			s.pending = s.pending[1:]
			s.handle(next)
		}
	}
	close(s.stopped)
	if s.onClosed != nil {
		s.onClosed(s)
	}
	close(s.done)
	s.logger.Info("session actor stopped", "state", s.state)
}

func (s *Session) handle(ev any) {
	switch ev := ev.(type) {
	case joinEvent:
		ev.reply <- s.handleJoin(ev)
	case submitEvent:
		result, err := s.handleSubmit(ev)
		ev.reply <- submitReply{result: result, err: err}
	case chatEvent:
		ev.reply <- s.handleChat(ev)
	case leaveEvent:
		ev.reply <- s.handleLeave(ev)
	case disconnectEvent:
		s.handleDisconnect(ev)
	case commandEvent:
		ev.reply <- s.handleCommand(ev)
	case snapshotEvent:
		ev.reply <- s.snapshot()
	case terminateEvent:
		s.handleTerminate()
	case questionDeadlineEvent:
		if ev.phase == s.phase && s.state == domain.StateQuestionActive {
			s.closeQuestion()
		}
	case revealElapsedEvent:
		if ev.phase == s.phase && s.state == domain.StateQuestionClosed {
			s.advance()
		}
	case retentionElapsedEvent:
		if s.state == domain.StateFinished && !s.recording {
			s.teardown()
		}
	case graceExpiredEvent:
		s.handleGraceExpired(ev)
	case recordedEvent:
		s.handleRecorded(ev)
	default:
		s.logger.Error("unknown session event", "event", ev)
	}
}

// schedule delivers ev through the queue after d. Zero delays run right after
// the current event instead of re-entering the queue from the actor itself.
func (s *Session) schedule(name string, d time.Duration, ev any) {
	s.cancelTimer(name)
	if d <= 0 {
		s.pending = append(s.pending, ev)
		return
	}
	s.timers[name] = s.clock.AfterFunc(d, func() { s.enqueue(ev) })
}

func (s *Session) cancelTimer(name string) {
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

func (s *Session) now() time.Time { return s.clock.Now() }
