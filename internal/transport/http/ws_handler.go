package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/domain"
)

// Close codes for connection-fatal errors.
var (
	CloseUnauthorized = app.CloseReason{Code: 4401, Text: "unauthorized"}
	CloseNotFound     = app.CloseReason{Code: 4404, Text: "session not found"}
	CloseJoinRequired = app.CloseReason{Code: websocket.ClosePolicyViolation, Text: "join required"}
)

// GatewayConfig tunes websocket connections.
type GatewayConfig struct {
	JoinTimeout     time.Duration
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	RequestTimeout  time.Duration
	OutboxSize      int
	MaxMessageBytes int64
	AllowedOrigins  []string
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		JoinTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    50 * time.Second,
		RequestTimeout:  5 * time.Second,
		OutboxSize:      64,
		MaxMessageBytes: 8 << 10,
	}
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	d := DefaultGatewayConfig()
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = d.OutboxSize
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	return c
}

// Handler is the connection gateway: websocket sessions plus a few HTTP helpers.
type Handler struct {
	registry *app.Registry
	identity app.IdentityProvider
	cfg      GatewayConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(registry *app.Registry, identity app.IdentityProvider, cfg GatewayConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := &Handler{
		registry: registry,
		identity: identity,
		cfg:      cfg,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}

type submitPayload struct {
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
}

type chatPayload struct {
	Text string `json:"text"`
}

// ServeWS authenticates, waits for join and then pumps inbound messages into the session.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	credential := credentialFrom(r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	conn := newConnection(ws, h.cfg, h.logger)
	go conn.writeLoop()
	defer func() {
		conn.Close(app.CloseNormal)
		<-conn.Done()
	}()

	ctx := r.Context()
	identity, err := h.identity.ValidateCredential(ctx, credential)
	if err != nil {
		h.reject(conn, err, CloseUnauthorized)
		return
	}

	join, err := h.awaitJoin(ws)
	if err != nil {
		h.reject(conn, err, CloseJoinRequired)
		return
	}
	session, err := h.registry.GetSession(join.SessionID)
	if err != nil {
		h.reject(conn, err, CloseNotFound)
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	err = session.Join(joinCtx, identity, join.DisplayName, conn)
	cancel()
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		h.reject(conn, err, CloseNotFound)
		return
	case err != nil:
		h.reject(conn, err, CloseJoinRequired)
		return
	}

	logger := h.logger.With("session_id", session.ID(), "user_id", identity.UserID)
	logger.Info("connection joined")
	h.readLoop(ctx, ws, conn, session, identity, logger)
	session.Disconnect(identity.UserID, conn)
	logger.Info("connection closed")
}

func (h *Handler) awaitJoin(ws *websocket.Conn) (joinPayload, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.JoinTimeout))
	var msg inboundMessage
	if err := ws.ReadJSON(&msg); err != nil {
		return joinPayload{}, fmt.Errorf("%w: expected join: %v", domain.ErrInvalidMessage, err)
	}
	if msg.Type != "join" {
		return joinPayload{}, fmt.Errorf("%w: expected join, got %q", domain.ErrInvalidMessage, msg.Type)
	}
	var join joinPayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil || join.SessionID == "" {
		return joinPayload{}, fmt.Errorf("%w: join needs a sessionId", domain.ErrInvalidMessage)
	}
	return join, nil
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *connection, session *app.Session, identity domain.Identity, logger *slog.Logger) {
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				conn.Deliver(app.ErrorMessage(fmt.Errorf("%w: malformed json", domain.ErrInvalidMessage)))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("ws read failed", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		reqCtx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
		err := h.dispatch(reqCtx, conn, session, identity, msg)
		cancel()
		if errors.Is(err, domain.ErrSessionNotFound) {
			return
		}
		if err != nil {
			conn.Deliver(app.ErrorMessage(err))
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *connection, session *app.Session, identity domain.Identity, msg inboundMessage) error {
	switch msg.Type {
	case "join":
		return fmt.Errorf("%w: already joined", domain.ErrInvalidMessage)
	case "submit_answer":
		var payload submitPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.QuestionID == "" {
			return fmt.Errorf("%w: submit_answer needs questionId and answer", domain.ErrInvalidMessage)
		}
		answer, err := parseAnswer(payload.Answer)
		if err != nil {
			return err
		}
		result, err := session.Submit(ctx, identity.UserID, payload.QuestionID, answer)
		if err != nil {
			return err
		}
		conn.Deliver(app.Message{Type: app.MessageAnswerResult, Payload: result})
		return nil
	case "chat":
		var payload chatPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("%w: chat needs text", domain.ErrInvalidMessage)
		}
		return session.Chat(ctx, identity.UserID, payload.Text)
	case "leave":
		return session.Leave(ctx, identity.UserID, conn)
	case string(app.CommandStart), string(app.CommandNext), string(app.CommandAbort):
		return session.Command(ctx, identity.UserID, app.Command(msg.Type))
	default:
		return fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidMessage, msg.Type)
	}
}

func (h *Handler) reject(conn *connection, err error, reason app.CloseReason) {
	h.logger.Info("rejecting connection", "kind", domain.KindOf(err), "error", err)
	conn.Deliver(app.ErrorMessage(err))
	conn.Close(reason)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// credentialFrom reads the bearer token from the Authorization header, the
// access_token cookie or the token query parameter, in that order.
func credentialFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// parseAnswer accepts an option id as a JSON string or number.
func parseAnswer(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: missing answer", domain.ErrInvalidMessage)
	}
	switch a := v.(type) {
	case string:
		return a, nil
	case json.Number:
		return a.String(), nil
	default:
		return "", fmt.Errorf("%w: answer must be a string or number", domain.ErrInvalidMessage)
	}
}
