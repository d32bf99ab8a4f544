package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"vigil/internal/logging"
	"vigil/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	lookupTimeout  = 5 * time.Second
)

// Sessions reads stored session snapshots.
type Sessions interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Handler serves the WebSocket observer endpoint. The session id comes from
// the "id" route variable.
type Handler struct {
	registry *Registry
	sessions Sessions
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a WebSocket handler.
func NewHandler(registry *Registry, sessions Sessions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		registry: registry,
		sessions: sessions,
		logger:   logging.NewComponentLogger(logger, "stream-ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(mux.Vars(r)["id"])
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	logger := h.logger.With(logging.String(logging.FieldSessionID, sessionID))

	snapshot, err := h.lookup(r.Context(), sessionID)
	if err != nil {
		writeAndClose(conn, NewError(lookupMessage(err)))
		logger.Debug("observer rejected", logging.Error(err))
		return
	}

	obs := h.registry.Attach(sessionID, StatusFromSession(snapshot))
	logger.Info("observer connected",
		logging.String(logging.FieldEventType, "observer_connected"),
		logging.String("remote_addr", r.RemoteAddr),
	)

	go h.writePump(conn, obs)
	go h.readPump(conn, obs, logger)
}

func (h *Handler) lookup(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, session.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
	defer cancel()
	return h.sessions.Get(ctx, id)
}

func lookupMessage(err error) string {
	if errors.Is(err, session.ErrNotFound) {
		return "Session not found"
	}
	return "Session lookup failed"
}

func (h *Handler) readPump(conn *websocket.Conn, obs *Observer, logger *slog.Logger) {
	defer func() {
		h.registry.Detach(obs)
		logger.Debug("observer disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read failed", logging.Error(err))
			}
			return
		}
		h.registry.Deliver(obs, h.reply(obs.SessionID(), data))
	}
}

// reply answers one client message.
func (h *Handler) reply(sessionID string, data []byte) Message {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return NewError("Invalid JSON message")
	}
	switch strings.TrimSpace(msg.Action) {
	case ActionPing:
		return Pong{Type: TypePong}
	case ActionGetStatus:
		snapshot, err := h.lookup(context.Background(), sessionID)
		if err != nil {
			return NewError(lookupMessage(err))
		}
		return StatusFromSession(snapshot)
	default:
		return NewError(fmt.Sprintf("Unknown action: %s", msg.Action))
	}
}

func (h *Handler) writePump(conn *websocket.Conn, obs *Observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-obs.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.registry.Detach(obs)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.registry.Detach(obs)
				return
			}
		}
	}
}

func writeAndClose(conn *websocket.Conn, msg Message) {
	defer conn.Close()
	frame, err := encode(msg)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
