package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"live-quiz-engine/internal/domain"
)

const (
	timerQuestion  = "question"
	timerReveal    = "reveal"
	timerRetention = "retention"
)

func graceTimer(userID string) string { return "grace:" + userID }

func (s *Session) handleJoin(ev joinEvent) error {
	now := s.now()
	userID := ev.identity.UserID
	if s.state == domain.StateAborted {
		return domain.ErrSessionNotFound
	}

	if userID == s.host.UserID {
		if s.hostMember != nil && s.hostMember != ev.member {
			delete(s.failures, s.hostMember)
			s.hostMember.Close(CloseReplaced)
		}
		s.hostMember = ev.member
		s.logger.Info("host attached", "user_id", userID)
		s.sendState(userID, ev.member)
		return nil
	}

	p, known := s.participants[userID]
	if !known && s.state == domain.StateFinished {
		s.viewers[ev.member] = struct{}{}
		s.sendState("", ev.member)
		return nil
	}

	name := strings.TrimSpace(ev.displayName)
	if !known {
		if name == "" {
			name = ev.identity.Name
		}
		if name == "" {
			name = userID
		}
		p = &participant{
			userID:      userID,
			displayName: name,
			joinedAt:    now,
			submissions: make(map[string]domain.Submission),
		}
		s.participants[userID] = p
		s.joinOrder = append(s.joinOrder, userID)
		// Existing members learn about the newcomer; the newcomer gets a full snapshot below.
		if delta := s.board.Add(userID, name, now); len(delta) > 0 {
			s.broadcast(Message{Type: MessageLeaderboardDelta, Payload: LeaderboardPayload{Entries: delta}})
		}
	} else if name != "" && name != p.displayName {
		p.displayName = name
		if delta := s.board.Add(userID, name, now); len(delta) > 0 {
			s.broadcast(Message{Type: MessageLeaderboardDelta, Payload: LeaderboardPayload{Entries: delta}})
		}
	}

	if previous := s.presence.Connect(userID, ev.member, now); previous != nil && previous != ev.member {
		delete(s.failures, previous)
		previous.Close(CloseReplaced)
	}
	s.cancelTimer(graceTimer(userID))
	s.logger.Info("participant joined", "user_id", userID, "rejoin", known, "presence", s.presence.Status(userID))
	s.sendState(userID, ev.member)
	return nil
}

func (s *Session) handleSubmit(ev submitEvent) (domain.AnswerResult, error) {
	p, ok := s.participants[ev.userID]
	if !ok {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}
	qi := s.questionIndex(ev.questionID)
	if qi < 0 {
		return domain.AnswerResult{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, ev.questionID)
	}

	switch {
	case s.state == domain.StateLobby || s.state == domain.StateAborted || qi > s.index:
		return domain.AnswerResult{}, domain.ErrNotAccepting
	case qi < s.index || s.state != domain.StateQuestionActive || ev.at.After(s.deadline):
		return domain.AnswerResult{}, domain.ErrLate
	}
	if _, dup := p.submissions[ev.questionID]; dup {
		return domain.AnswerResult{}, domain.ErrDuplicateSubmission
	}

	q := s.quiz.Questions[qi]
	correct, awarded := s.cfg.Scoring.Score(q, ev.answer, ev.at, s.deadline, s.limit)
	p.submissions[q.ID] = domain.Submission{
		QuestionID:  q.ID,
		Answer:      ev.answer,
		SubmittedAt: ev.at,
		Correct:     correct,
		Awarded:     awarded,
	}
	p.score += awarded
	s.logger.Debug("submission accepted", "user_id", p.userID, "question_id", q.ID, "correct", correct, "awarded", awarded)

	if delta := s.board.Award(p.userID, awarded, ev.at); len(delta) > 0 {
		s.broadcast(Message{Type: MessageLeaderboardDelta, Payload: LeaderboardPayload{Entries: delta}})
	}
	result := domain.AnswerResult{QuestionID: q.ID, Correct: correct, Awarded: awarded, TotalScore: p.score}
	s.closeIfComplete()
	return result, nil
}

func (s *Session) handleChat(ev chatEvent) error {
	var from string
	switch p, ok := s.participants[ev.userID]; {
	case ok:
		from = p.displayName
	case ev.userID == s.host.UserID:
		from = s.host.Name
		if from == "" {
			from = s.host.UserID
		}
	default:
		return domain.ErrParticipantNotFound
	}

	text := strings.TrimSpace(ev.text)
	if text == "" {
		return fmt.Errorf("%w: empty chat message", domain.ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxChatLength {
		return fmt.Errorf("%w: chat message longer than %d characters", domain.ErrInvalidMessage, s.cfg.MaxChatLength)
	}
	s.broadcast(Message{Type: MessageChat, Payload: ChatPayload{From: ev.userID, DisplayName: from, Text: text, SentAt: s.now()}})
	return nil
}

func (s *Session) handleLeave(ev leaveEvent) error {
	if _, ok := s.viewers[ev.member]; ok {
		delete(s.viewers, ev.member)
		ev.member.Close(CloseNormal)
		return nil
	}
	if ev.userID == s.host.UserID {
		if s.hostMember != nil {
			s.hostMember.Close(CloseNormal)
			s.hostMember = nil
		}
		return nil
	}
	if _, ok := s.participants[ev.userID]; !ok {
		return domain.ErrParticipantNotFound
	}

	if previous := s.presence.Leave(ev.userID, s.now()); previous != nil {
		delete(s.failures, previous)
		previous.Close(CloseNormal)
	}
	s.cancelTimer(graceTimer(ev.userID))
	s.logger.Info("participant left", "user_id", ev.userID)
	s.closeIfComplete()
	return nil
}

func (s *Session) handleDisconnect(ev disconnectEvent) {
	delete(s.failures, ev.member)
	if _, ok := s.viewers[ev.member]; ok {
		delete(s.viewers, ev.member)
		return
	}
	if ev.userID == s.host.UserID {
		if s.hostMember == ev.member {
			s.hostMember = nil
		}
		return
	}
	s.detach(ev.userID, ev.member)
}

// detach starts the grace window for a participant whose connection is gone.
func (s *Session) detach(userID string, m Member) {
	generation, grace := s.presence.Disconnect(userID, m, s.now())
	if !grace {
		return
	}
	s.logger.Info("participant disconnected", "user_id", userID, "grace", s.cfg.PresenceGrace)
	s.schedule(graceTimer(userID), s.cfg.PresenceGrace, graceExpiredEvent{userID: userID, generation: generation})
}

func (s *Session) handleGraceExpired(ev graceExpiredEvent) {
	if !s.presence.Expire(ev.userID, ev.generation, s.now()) {
		return
	}
	delete(s.timers, graceTimer(ev.userID))
	s.logger.Info("participant grace expired", "user_id", ev.userID)
	s.closeIfComplete()
}

func (s *Session) handleCommand(ev commandEvent) error {
	if ev.userID != s.host.UserID {
		return domain.ErrForbidden
	}
	switch ev.command {
	case CommandStart:
		if s.state != domain.StateLobby {
			return domain.ErrInvalidTransition
		}
		if len(s.quiz.Questions) == 0 {
			s.abort("quiz has no questions")
			return nil
		}
		now := s.now()
		s.logger.Info("session started", "participants", len(s.participants))
		s.broadcast(Message{Type: MessageSessionStarted, Payload: SessionStartedPayload{
			SessionID:      s.id,
			QuizID:         s.quiz.ID,
			Title:          s.quiz.Title,
			TotalQuestions: len(s.quiz.Questions),
			StartedAt:      now,
		}})
		s.notify(EventSessionStarted, "", nil)
		s.openQuestion(0)
	case CommandNext:
		if s.state != domain.StateQuestionClosed {
			return domain.ErrInvalidTransition
		}
		s.advance()
	case CommandAbort:
		if s.state.Terminal() {
			return domain.ErrInvalidTransition
		}
		s.abort("aborted by host")
	default:
		return fmt.Errorf("%w: unknown command %q", domain.ErrInvalidMessage, ev.command)
	}
	return nil
}

func (s *Session) handleTerminate() {
	switch {
	case s.state.Terminal() && s.recording:
		s.closeDeferred = true
	case s.state.Terminal():
		s.teardown()
	default:
		s.abort("session terminated")
	}
}

func (s *Session) handleRecorded(ev recordedEvent) {
	s.recording = false
	if ev.err != nil {
		s.logger.Error("session results could not be recorded", "error", ev.err)
	} else {
		s.logger.Info("session results recorded")
	}
	if s.closeDeferred {
		s.teardown()
		return
	}
	s.schedule(timerRetention, s.cfg.Retention, retentionElapsedEvent{})
}

func (s *Session) openQuestion(i int) {
	now := s.now()
	s.index = i
	s.state = domain.StateQuestionActive
	s.phase++
	s.openedAt = now
	s.limit = s.quiz.TimeLimit(i, s.cfg.DefaultTimeLimit)
	s.deadline = now.Add(s.limit)
	s.presence.Promote(now)
	s.logger.Info("question opened", "question_id", s.quiz.Questions[i].ID, "index", i, "deadline", s.deadline)
	s.broadcast(s.questionActiveMessage())
	s.schedule(timerQuestion, s.limit, questionDeadlineEvent{phase: s.phase})
}

// closeIfComplete closes the active question once every present participant answered.
func (s *Session) closeIfComplete() {
	if s.state != domain.StateQuestionActive {
		return
	}
	questionID := s.quiz.Questions[s.index].ID
	present := 0
	for _, userID := range s.joinOrder {
		if !s.presence.Present(userID) {
			continue
		}
		present++
		if _, ok := s.participants[userID].submissions[questionID]; !ok {
			return
		}
	}
	if present > 0 {
		s.closeQuestion()
	}
}

func (s *Session) closeQuestion() {
	q := s.quiz.Questions[s.index]
	s.state = domain.StateQuestionClosed
	s.phase++
	s.cancelTimer(timerQuestion)

	results := make([]ParticipantCorrectness, 0, len(s.joinOrder))
	for _, userID := range s.joinOrder {
		p := s.participants[userID]
		sub, ok := p.submissions[q.ID]
		results = append(results, ParticipantCorrectness{
			UserID:      userID,
			DisplayName: p.displayName,
			Submitted:   ok,
			Correct:     ok && sub.Correct,
			Awarded:     sub.Awarded,
		})
	}
	s.logger.Info("question closed", "question_id", q.ID, "index", s.index, "early", s.now().Before(s.deadline))
	s.broadcast(Message{Type: MessageQuestionClosed, Payload: QuestionClosedPayload{
		QuestionID:    q.ID,
		Index:         s.index,
		CorrectAnswer: q.Answer,
		Results:       results,
	}})
	s.schedule(timerReveal, s.cfg.RevealInterval, revealElapsedEvent{phase: s.phase})
}

func (s *Session) advance() {
	s.cancelTimer(timerReveal)
	if s.index+1 < len(s.quiz.Questions) {
		s.openQuestion(s.index + 1)
		return
	}
	s.finish()
}

func (s *Session) finish() {
	s.state = domain.StateFinished
	s.phase++
	final := s.board.Snapshot()
	s.logger.Info("session finished", "participants", len(s.participants))
	s.broadcast(Message{Type: MessageSessionFinished, Payload: SessionFinishedPayload{FinalLeaderboard: final}})
	s.notify(EventSessionFinished, "", nil)

	if s.recorder == nil {
		s.schedule(timerRetention, s.cfg.Retention, retentionElapsedEvent{})
		return
	}
	result := s.attemptResult(final)
	s.recording = true
	go func() {
		err := s.recorder.Record(s.baseCtx, result)
		s.enqueue(recordedEvent{err: err})
	}()
}

func (s *Session) abort(reason string) {
	s.state = domain.StateAborted
	s.phase++
	s.logger.Info("session aborted", "reason", reason)
	s.broadcast(Message{Type: MessageSessionAborted, Payload: SessionAbortedPayload{Reason: reason}})
	s.notify(EventSessionAborted, reason, nil)
	s.teardown()
}

// teardown stops every timer and closes every connection. The run loop exits
// after the current event and only then removes the session from the registry.
func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.phase++
	for name := range s.timers {
		s.cancelTimer(name)
	}
	for _, userID := range s.joinOrder {
		if m := s.presence.Member(userID); m != nil {
			m.Close(CloseSessionEnded)
		}
	}
	if s.hostMember != nil {
		s.hostMember.Close(CloseSessionEnded)
		s.hostMember = nil
	}
	for m := range s.viewers {
		m.Close(CloseSessionEnded)
	}
	s.logger.Info("session torn down", "state", s.state)
}

func (s *Session) sendState(userID string, m Member) {
	s.deliver(userID, m, Message{Type: MessageLeaderboardSnapshot, Payload: SnapshotPayload{
		SessionID:     s.id,
		State:         s.state,
		QuestionIndex: s.index,
		Entries:       s.board.Snapshot(),
	}})
	switch s.state {
	case domain.StateQuestionActive:
		s.deliver(userID, m, s.questionActiveMessage())
	case domain.StateFinished:
		s.deliver(userID, m, Message{Type: MessageSessionFinished, Payload: SessionFinishedPayload{FinalLeaderboard: s.board.Snapshot()}})
	}
}

func (s *Session) questionActiveMessage() Message {
	q := s.quiz.Questions[s.index]
	return Message{Type: MessageQuestionActive, Payload: QuestionActivePayload{
		QuestionID:  q.ID,
		Index:       s.index,
		Total:       len(s.quiz.Questions),
		Prompt:      q.Prompt,
		Options:     q.Options,
		Deadline:    s.deadline,
		TimeLimitMs: s.limit.Milliseconds(),
	}}
}

func (s *Session) questionIndex(questionID string) int {
	for i, q := range s.quiz.Questions {
		if q.ID == questionID {
			return i
		}
	}
	return -1
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:     s.id,
		QuizID:        s.quiz.ID,
		HostID:        s.host.UserID,
		State:         s.state,
		QuestionIndex: s.index,
		Leaderboard:   s.board.Snapshot(),
		Participants:  make([]ParticipantView, 0, len(s.joinOrder)),
	}
	if s.state == domain.StateQuestionActive || s.state == domain.StateQuestionClosed {
		snap.QuestionID = s.quiz.Questions[s.index].ID
		snap.Deadline = s.deadline
	}
	for _, userID := range s.joinOrder {
		p := s.participants[userID]
		snap.Participants = append(snap.Participants, ParticipantView{
			UserID:      userID,
			DisplayName: p.displayName,
			Score:       p.score,
			Presence:    s.presence.Status(userID),
			Submissions: s.orderedSubmissions(p),
		})
	}
	return snap
}

func (s *Session) orderedSubmissions(p *participant) []domain.Submission {
	subs := make([]domain.Submission, 0, len(p.submissions))
	for _, q := range s.quiz.Questions {
		if sub, ok := p.submissions[q.ID]; ok {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (s *Session) attemptResult(final []domain.LeaderboardEntry) domain.AttemptResult {
	result := domain.AttemptResult{
		SessionID:    s.id,
		QuizID:       s.quiz.ID,
		HostID:       s.host.UserID,
		FinishedAt:   s.now(),
		Participants: make([]domain.ParticipantResult, 0, len(final)),
	}
	for _, entry := range final {
		p := s.participants[entry.UserID]
		result.Participants = append(result.Participants, domain.ParticipantResult{
			UserID:      entry.UserID,
			DisplayName: p.displayName,
			Score:       p.score,
			Rank:        entry.Rank,
			Submissions: s.orderedSubmissions(p),
		})
	}
	return result
}

func (s *Session) notify(kind, reason string, result *domain.AttemptResult) {
	event := LifecycleEvent{
		Kind:      kind,
		SessionID: s.id,
		QuizID:    s.quiz.ID,
		HostID:    s.host.UserID,
		At:        s.now(),
		Reason:    reason,
		Result:    result,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("lifecycle notification failed", "kind", kind, "error", err)
		}
	}()
}
