package domain

import "errors"

var (
	// ErrUnauthorized is returned for missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an identity lacks the role for an action.
	ErrForbidden = errors.New("forbidden")
	// ErrSessionNotFound is returned when a session is unknown or already torn down.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrConflict is returned when an exclusive session is already active.
	ErrConflict = errors.New("session already active")
	// ErrUnavailable indicates the content store could not serve the request.
	ErrUnavailable = errors.New("content store unavailable")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrDuplicateSubmission rejects a second answer to the same question.
	ErrDuplicateSubmission = errors.New("answer already submitted for this question")
	// ErrLate rejects an answer that arrived after the question deadline.
	ErrLate = errors.New("answer submitted after the deadline")
	// ErrNotAccepting rejects answers while no question is open.
	ErrNotAccepting = errors.New("no question is accepting answers")
	// ErrInvalidTransition rejects host commands that do not apply to the current state.
	ErrInvalidTransition = errors.New("command not valid in current session state")
	// ErrInvalidMessage rejects malformed protocol messages.
	ErrInvalidMessage = errors.New("invalid message")
)

// Error kinds as they appear on the wire.
const (
	KindUnauthorized        = "unauthorized"
	KindForbidden           = "forbidden"
	KindNotFound            = "not_found"
	KindConflict            = "conflict"
	KindUnavailable         = "unavailable"
	KindDuplicateSubmission = "duplicate_submission"
	KindLate                = "late"
	KindNotAccepting        = "not_accepting"
	KindInvalidTransition   = "invalid_transition"
	KindInvalidMessage      = "invalid_message"
	KindInternal            = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, KindUnauthorized},
	{ErrForbidden, KindForbidden},
	{ErrSessionNotFound, KindNotFound},
	{ErrQuizNotFound, KindNotFound},
	{ErrParticipantNotFound, KindNotFound},
	{ErrQuestionNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrUnavailable, KindUnavailable},
	{ErrDuplicateSubmission, KindDuplicateSubmission},
	{ErrLate, KindLate},
	{ErrNotAccepting, KindNotAccepting},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInvalidMessage, KindInvalidMessage},
}

// KindOf maps an error to its wire kind.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
