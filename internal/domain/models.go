package domain

import "time"

// Role is the coarse permission attached to an authenticated identity.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleHost        Role = "host"
	RoleAdmin       Role = "admin"
)

// CanHost reports whether the role may create and drive sessions.
func (r Role) CanHost() bool {
	return r == RoleHost || r == RoleAdmin
}

// Identity is what the identity provider vouches for on a connection.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

// SessionState is the phase of a live session.
type SessionState string

const (
	StateLobby          SessionState = "lobby"
	StateQuestionActive SessionState = "question_active"
	StateQuestionClosed SessionState = "question_closed"
	StateFinished       SessionState = "finished"
	StateAborted        SessionState = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateFinished || s == StateAborted
}

// PresenceStatus tracks whether a participant currently counts as present.
type PresenceStatus string

const (
	PresenceConnected         PresenceStatus = "connected"
	PresenceDisconnectedGrace PresenceStatus = "disconnected_grace"
	PresenceLeft              PresenceStatus = "left"
)

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models a single-answer question. Answer holds the correct option id.
type Question struct {
	ID               string   `json:"id"`
	Prompt           string   `json:"prompt"`
	Options          []Option `json:"options"`
	Answer           string   `json:"answer"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty"`
	Points           int      `json:"points,omitempty"`
}

// Quiz is an immutable, ordered collection of questions.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	CreatorID        string     `json:"creatorId,omitempty"`
	TimeLimitSeconds int        `json:"timeLimitSeconds,omitempty"` // default for questions without their own
	Questions        []Question `json:"questions"`
}

// QuestionIDs returns the question ids in quiz order.
func (q Quiz) QuestionIDs() []string {
	ids := make([]string, 0, len(q.Questions))
	for _, question := range q.Questions {
		ids = append(ids, question.ID)
	}
	return ids
}

// TimeLimit resolves the limit for question i, falling back to the quiz default and then to fallback.
func (q Quiz) TimeLimit(i int, fallback time.Duration) time.Duration {
	if i >= 0 && i < len(q.Questions) && q.Questions[i].TimeLimitSeconds > 0 {
		return time.Duration(q.Questions[i].TimeLimitSeconds) * time.Second
	}
	if q.TimeLimitSeconds > 0 {
		return time.Duration(q.TimeLimitSeconds) * time.Second
	}
	return fallback
}

// Submission is one accepted answer. It is never modified after acceptance.
type Submission struct {
	QuestionID  string    `json:"questionId"`
	Answer      string    `json:"answer"`
	SubmittedAt time.Time `json:"submittedAt"`
	Correct     bool      `json:"correct"`
	Awarded     int       `json:"awarded"`
}

// AnswerResult summarizes the outcome of a submission for the submitter.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

// LeaderboardEntry is a ranked view of a participant.
type LeaderboardEntry struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Score        int    `json:"score"`
	Rank         int    `json:"rank"`
	PreviousRank int    `json:"previousRank,omitempty"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// ParticipantResult is the durable outcome for one participant of a finished session.
type ParticipantResult struct {
	UserID      string       `json:"userId"`
	DisplayName string       `json:"displayName"`
	Score       int          `json:"score"`
	Rank        int          `json:"rank"`
	Submissions []Submission `json:"submissions"`
}

// AttemptResult is the payload written to the content store when a session finishes.
type AttemptResult struct {
	SessionID    string              `json:"sessionId"`
	QuizID       string              `json:"quizId"`
	HostID       string              `json:"hostId"`
	FinishedAt   time.Time           `json:"finishedAt"`
	Participants []ParticipantResult `json:"participants"`
}
