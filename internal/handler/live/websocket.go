package live

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-favorites/backend/internal/model/user"
	"github.com/zhouzirui/z-favorites/backend/internal/service/favorites"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Service is what a live client can observe and change.
type Service interface {
	Subscribe() (string, <-chan favorites.Snapshot)
	Unsubscribe(id string)
	ToggleFavorite(ctx context.Context, id int) (user.User, error)
	RemoveFromFavorites(ctx context.Context, id int) (bool, error)
}

// WebSocketHandler pushes snapshots to a client and applies its toggle/remove
// commands.
type WebSocketHandler struct {
	svc      Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(svc Service) *WebSocketHandler {
	return &WebSocketHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newMessage(kind string, data interface{}) outgoingMessage {
	return outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log.Printf("[websocket] new connection conn=%s", connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subID, updates := h.svc.Subscribe()
	defer h.svc.Unsubscribe(subID)

	replies := make(chan outgoingMessage, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		// Closing unblocks the reader when the writer gives up first.
		defer conn.Close()
		h.writeLoop(ctx, conn, updates, replies)
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error conn=%s: %v", connID, err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		reply := h.handleMessage(ctx, msg)
		select {
		case replies <- reply:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	<-writerDone
	log.Printf("[websocket] connection closed conn=%s", connID)
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, msg inboundMessage) outgoingMessage {
	if msg.ID <= 0 && msg.Type != "ping" {
		return newMessage("error", map[string]string{"message": "id must be a positive integer"})
	}

	switch msg.Type {
	case "toggle":
		updated, err := h.svc.ToggleFavorite(ctx, msg.ID)
		if err != nil {
			switch {
			case errors.Is(err, favorites.ErrUserNotFound):
				return newMessage("error", map[string]string{"message": "user not found"})
			case errors.Is(err, favorites.ErrClosed):
				return newMessage("error", map[string]string{"message": "service closed"})
			}
			return newMessage("error", map[string]string{"message": "toggle failed"})
		}
		return newMessage("toggled", updated)
	case "remove":
		removed, err := h.svc.RemoveFromFavorites(ctx, msg.ID)
		if err != nil {
			if errors.Is(err, favorites.ErrClosed) {
				return newMessage("error", map[string]string{"message": "service closed"})
			}
			return newMessage("error", map[string]string{"message": "remove failed"})
		}
		return newMessage("removed", map[string]any{"id": msg.ID, "changed": removed})
	case "ping":
		return newMessage("pong", nil)
	default:
		return newMessage("error", map[string]string{"message": "unsupported message type: " + msg.Type})
	}
}

// writeLoop is the only goroutine writing to conn.
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, updates <-chan favorites.Snapshot, replies <-chan outgoingMessage) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[websocket] write failed: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case snap, open := <-updates:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			}
			if !write(newMessage("snapshot", snap)) {
				return
			}
		case reply := <-replies:
			if !write(reply) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
