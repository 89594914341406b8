// Package notify fans order events out to admins over websockets, browser
// push and email.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/observability"
)

const (
	EventNewOrder     = "newOrder"
	EventOrderPaid    = "orderPaid"
	EventOrderUpdated = "orderUpdated"

	defaultWriteTimeout = 5 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = pongWait * 9 / 10
	maxInboundBytes     = 1024
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one live admin socket.
type Session struct {
	ID     string
	UserID string

	conn    Conn
	writeMu sync.Mutex
}

func (s *Session) write(messageType int, data []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// Envelope is the JSON frame sent to every socket.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub holds the live admin sockets. Broadcast works on a snapshot so slow
// writers never block registration.
type Hub struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		sessions:     make(map[string]*Session),
		upgrader:     websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		writeTimeout: defaultWriteTimeout,
		logger:       logger.With("component", "notify_hub"),
	}
}

func (h *Hub) Add(userID string, conn Conn) *Session {
	session := &Session{ID: uuid.NewString(), UserID: userID, conn: conn}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()

	return session
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	session, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if ok {
		_ = session.conn.Close()
	}
}

// List returns a snapshot of the registered sessions.
func (h *Hub) List() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Broadcast writes the event to every session and returns how many writes
// failed. Failing sessions are removed.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) int {
	logger := logging.FromContext(ctx, h.logger)

	data, err := json.Marshal(Envelope{Type: event, Data: payload})
	if err != nil {
		logger.Error("failed to encode hub event", "event", event, "error", err)
		return 0
	}

	failed := 0
	for _, session := range h.List() {
		if err := session.write(websocket.TextMessage, data, h.writeTimeout); err != nil {
			failed++
			logger.Warn("dropping admin socket after failed write",
				"session_id", session.ID,
				"user_id", session.UserID,
				"event", event,
				"error", err,
			)
			observability.CountReason(ctx, "notify.delivery.failed", "websocket")
			h.Remove(session.ID)
		}
	}
	return failed
}

// Serve upgrades the request and keeps the socket registered until the
// client goes away. It blocks for the lifetime of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade admin socket: %w", err)
	}

	session := h.Add(userID, conn)
	logger := logging.FromContext(r.Context(), h.logger).With("session_id", session.ID, "user_id", userID)
	logger.Info("admin socket connected")
	defer func() {
		h.Remove(session.ID)
		logger.Info("admin socket disconnected")
	}()

	conn.SetReadLimit(maxInboundBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.ping(session, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("admin socket closed unexpectedly", "error", err)
			}
			return nil
		}
	}
}

func (h *Hub) ping(session *Session, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := session.write(websocket.PingMessage, nil, h.writeTimeout); err != nil {
				return
			}
		}
	}
}

// Close disconnects every session.
func (h *Hub) Close() {
	for _, session := range h.List() {
		h.Remove(session.ID)
	}
}
