package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/plugin"
	"github.com/starford/questline/internal/sse"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SocketHandler is the bidirectional plugin channel: inbound frames are
// envelopes for the session, outbound frames are every broadcast message.
type SocketHandler struct {
	inbox    *plugin.Inbox
	broker   *sse.Broker
	upgrader websocket.Upgrader
}

// NewSocketHandler creates a handler for GET /api/ws.
func NewSocketHandler(inbox *plugin.Inbox, broker *sse.Broker) *SocketHandler {
	return &SocketHandler{
		inbox:  inbox,
		broker: broker,
		upgrader: websocket.Upgrader{
			// The editor UI is served from its own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and pumps messages both ways until the
// client goes away.
func (s *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	frames := s.broker.Subscribe()
	defer s.broker.Unsubscribe(frames)
	replies := make(chan errResponse, 8)

	go s.readLoop(ctx, cancel, conn, replies)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame.Data); err != nil {
				return
			}
		case reply := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop queues every inbound envelope on the inbox, in read order.
// Malformed envelopes are answered on the same connection only.
func (s *SocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, replies chan<- errResponse) {
	defer cancel()
	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if _, err := s.inbox.Enqueue(ctx, raw); err != nil {
			if !errors.Is(err, apperr.ErrInvalidMessage) {
				slog.Warn("websocket enqueue failed", slog.String("error", err.Error()))
				return
			}
			select {
			case replies <- errorBody(err.Error()):
			default:
			}
		}
	}
}
