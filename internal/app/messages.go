package app

import (
	"time"

	"live-quiz-engine/internal/domain"
)

// MessageType names an outbound protocol message.
type MessageType string

const (
	MessageSessionStarted      MessageType = "session_started"
	MessageQuestionActive      MessageType = "question_active"
	MessageQuestionClosed      MessageType = "question_closed"
	MessageLeaderboardDelta    MessageType = "leaderboard_delta"
	MessageLeaderboardSnapshot MessageType = "leaderboard_snapshot"
	MessageChat                MessageType = "chat"
	MessageSessionFinished     MessageType = "session_finished"
	MessageSessionAborted      MessageType = "session_aborted"
	MessageAnswerResult        MessageType = "answer_result"
	MessageError               MessageType = "error"
)

// Message is one outbound frame: {"type": ..., "payload": ...}.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type SessionStartedPayload struct {
	SessionID      string    `json:"sessionId"`
	QuizID         string    `json:"quizId"`
	Title          string    `json:"title"`
	TotalQuestions int       `json:"totalQuestions"`
	StartedAt      time.Time `json:"startedAt"`
}

// QuestionActivePayload deliberately omits the answer key.
type QuestionActivePayload struct {
	QuestionID  string          `json:"questionId"`
	Index       int             `json:"index"`
	Total       int             `json:"total"`
	Prompt      string          `json:"prompt"`
	Options     []domain.Option `json:"options"`
	Deadline    time.Time       `json:"deadline"`
	TimeLimitMs int64           `json:"timeLimitMs"`
}

// ParticipantCorrectness is one row of a question_closed message.
type ParticipantCorrectness struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Submitted   bool   `json:"submitted"`
	Correct     bool   `json:"correct"`
	Awarded     int    `json:"awarded"`
}

type QuestionClosedPayload struct {
	QuestionID    string                   `json:"questionId"`
	Index         int                      `json:"index"`
	CorrectAnswer string                   `json:"correctAnswer"`
	Results       []ParticipantCorrectness `json:"results"`
}

type LeaderboardPayload struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// SnapshotPayload is sent on join so late joiners see current state.
type SnapshotPayload struct {
	SessionID     string                    `json:"sessionId"`
	State         domain.SessionState       `json:"state"`
	QuestionIndex int                       `json:"questionIndex"`
	Entries       []domain.LeaderboardEntry `json:"entries"`
}

type ChatPayload struct {
	From        string    `json:"from"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sentAt"`
}

type SessionFinishedPayload struct {
	FinalLeaderboard []domain.LeaderboardEntry `json:"finalLeaderboard"`
}

type SessionAbortedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorMessage builds the scoped error frame for err.
func ErrorMessage(err error) Message {
	return Message{Type: MessageError, Payload: ErrorPayload{Kind: domain.KindOf(err), Message: err.Error()}}
}
