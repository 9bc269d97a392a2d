package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-engine/internal/app"
)

// connection is the app.Member for one websocket. Only writeLoop writes to
// the socket; everything else goes through the bounded outbox.
type connection struct {
	ws     *websocket.Conn
	cfg    GatewayConfig
	logger *slog.Logger

	outbox    chan app.Message
	closing   chan struct{}
	closeOnce sync.Once
	reason    app.CloseReason
	done      chan struct{}
}

func newConnection(ws *websocket.Conn, cfg GatewayConfig, logger *slog.Logger) *connection {
	return &connection{
		ws:      ws,
		cfg:     cfg,
		logger:  logger,
		outbox:  make(chan app.Message, cfg.OutboxSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Deliver never blocks. A full outbox is reported as a failed delivery.
func (c *connection) Deliver(msg app.Message) bool {
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case c.outbox <- msg:
		return true
	default:
		return false
	}
}

// Close flushes queued messages, sends a close frame with reason and drops the socket.
func (c *connection) Close(reason app.CloseReason) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.closing)
	})
}

// Done is closed once the socket is gone.
func (c *connection) Done() <-chan struct{} { return c.done }

func (c *connection) writeLoop() {
	ping := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ping.Stop()
		c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case msg := <-c.outbox:
			if err := c.write(msg); err != nil {
				c.logger.Debug("ws write failed", "type", msg.Type, "error", err)
				c.Close(app.CloseReason{Code: websocket.CloseAbnormalClosure})
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ws ping failed", "error", err)
				c.Close(app.CloseReason{Code: websocket.CloseAbnormalClosure})
				return
			}
		case <-c.closing:
			c.flush()
			return
		}
	}
}

func (c *connection) flush() {
	for {
		select {
		case msg := <-c.outbox:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			if c.reason.Code == websocket.CloseAbnormalClosure {
				return
			}
			frame := websocket.FormatCloseMessage(c.reason.Code, c.reason.Text)
			_ = c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}

func (c *connection) write(msg app.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("encode outbound message", "type", msg.Type, "error", err)
		return nil
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}
