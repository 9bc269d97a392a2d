package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/domain"
)

// Routes mounts the gateway and its HTTP helpers.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.terminateSession)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", h.leaderboard)
	return mux
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type createSessionResponse struct {
	SessionID string              `json:"sessionId"`
	QuizID    string              `json:"quizId"`
	State     domain.SessionState `json:"state"`
	CreatedAt time.Time           `json:"createdAt"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.registry.Active()})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		writeError(w, domain.ErrInvalidMessage, "body must be {\"quizId\": \"...\"}")
		return
	}

	session, err := h.registry.CreateSession(r.Context(), req.QuizID, identity)
	if err != nil {
		writeError(w, err, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.ID(),
		QuizID:    session.QuizID(),
		State:     domain.StateLobby,
		CreatedAt: session.CreatedAt(),
	})
}

func (h *Handler) terminateSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	session, err := h.registry.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err, err.Error())
		return
	}
	if session.Host().UserID != identity.UserID && identity.Role != domain.RoleAdmin {
		writeError(w, domain.ErrForbidden, "only the host can terminate a session")
		return
	}
	if err := h.registry.TerminateSession(r.Context(), session.ID()); err != nil {
		writeError(w, err, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	session, err := h.registry.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err, err.Error())
		return
	}
	snap, err := session.Snapshot(r.Context())
	if err != nil {
		writeError(w, err, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, app.SnapshotPayload{
		SessionID:     snap.SessionID,
		State:         snap.State,
		QuestionIndex: snap.QuestionIndex,
		Entries:       snap.Leaderboard,
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	identity, err := h.identity.ValidateCredential(r.Context(), credentialFrom(r))
	if err != nil {
		writeError(w, err, err.Error())
		return domain.Identity{}, false
	}
	return identity, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, message string) {
	writeJSON(w, statusFor(err), errorResponse{Kind: domain.KindOf(err), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
