// Package websocket streams enriched contacts to map clients over WebSocket.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Attacher hands out hub subscriptions.
type Attacher interface {
	Attach() *hub.Subscription
}

// Handler upgrades requests to WebSocket and runs one Session per connection.
type Handler struct {
	hub      Attacher
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler attaching each connection to h.
func NewHandler(h Attacher, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			// The map page may be served from anywhere; the stream is read-only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	NewSession(conn, h.hub.Attach(), h.logger).Run(r.Context())
}

// Session is a middleman between one WebSocket connection and its hub
// subscription.
type Session struct {
	conn   *websocket.Conn
	sub    *hub.Subscription
	logger *slog.Logger
}

// NewSession binds conn to sub. The session owns both and releases them when
// Run returns.
func NewSession(conn *websocket.Conn, sub *hub.Subscription, logger *slog.Logger) *Session {
	return &Session{
		conn:   conn,
		sub:    sub,
		logger: logger.With("subscriber", sub.ID().String()),
	}
}

// Run streams contacts until the client goes away, a write fails, the hub
// closes, or ctx ends.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.sub.Close()
		_ = s.conn.Close()
		s.logger.Info("websocket session ended", "dropped", s.sub.Dropped())
	}()
	s.logger.Info("websocket session started", "remote", s.conn.RemoteAddr().String())

	go func() {
		s.readPump()
		cancel()
	}()
	go s.pingPump(ctx)

	s.writePump(ctx)
}

// readPump discards client frames; it exists to process control frames and
// notice disconnects.
func (s *Session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("unexpected websocket close", "error", err)
			}
			return
		}
	}
}

func (s *Session) writePump(ctx context.Context) {
	for {
		contact, err := s.sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, hub.ErrClosed) {
				s.writeClose(websocket.CloseGoingAway, "stream closed")
			} else if ctx.Err() != nil {
				s.writeClose(websocket.CloseGoingAway, "server shutting down")
			}
			return
		}
		if err := s.write(contact); err != nil {
			s.logger.Warn("websocket write failed, detaching", "call", contact.Call, "error", err)
			return
		}
	}
}

func (s *Session) write(c domain.EnrichedContact) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// pingPump keeps idle connections alive. WriteControl is safe alongside the
// write pump.
func (s *Session) pingPump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Session) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
