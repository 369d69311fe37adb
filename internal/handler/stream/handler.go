package stream

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-favorites/backend/internal/service/favorites"
	"github.com/zhouzirui/z-favorites/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Subscriber is the change feed the stream forwards.
type Subscriber interface {
	Subscribe() (string, <-chan favorites.Snapshot)
	Unsubscribe(id string)
}

// Handler pushes favorites snapshots to clients via Server-Sent Events
type Handler struct {
	feed      Subscriber
	heartbeat time.Duration
}

// New creates a new stream handler
func New(feed Subscriber) *Handler {
	return &Handler{feed: feed, heartbeat: defaultHeartbeat}
}

// RegisterRoutes mounts the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	id, updates := h.feed.Subscribe()
	defer h.feed.Unsubscribe(id)

	ctx := r.Context()
	log.Printf("[sse] opening favorites stream subscriber=%s", id)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing favorites stream subscriber=%s", id)
			return
		case snap, open := <-updates:
			if !open {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "snapshot", strconv.FormatUint(snap.Version, 10), snap); err != nil {
				log.Printf("[sse] write failed subscriber=%s: %v", id, err)
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat "+t.UTC().Format(time.RFC3339)); err != nil {
				return
			}
		}
	}
}
