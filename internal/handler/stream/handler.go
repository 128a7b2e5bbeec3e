// Package stream pushes widget changes to the browser over Server-Sent Events.
package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/consultationhouse/site/backend/internal/model/chat"
	chatService "github.com/consultationhouse/site/backend/internal/service/chat"
	"github.com/consultationhouse/site/backend/pkg/utils"
)

const (
	keepAliveInterval = 15 * time.Second
	writeTimeout      = 10 * time.Second
)

// Subscriber hands out a widget's live events.
type Subscriber interface {
	Subscribe(ctx context.Context, widgetID string) (<-chan chat.Event, error)
}

// Handler streams widget events via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	events    Subscriber
	keepAlive time.Duration
}

// New creates a new stream handler.
func New(chatSvc *chatService.Service, events Subscriber) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		events:    events,
		keepAlive: keepAliveInterval,
	}
}

// RegisterRoutes registers the event stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/widgets/{widgetID}/events", h.handleEvents)
}

// handleEvents writes a snapshot event first, then every widget change
// until the client disconnects or the widget's subscription ends.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	widgetID := chi.URLParam(r, "widgetID")

	manager, err := h.chatSvc.Get(r.Context(), widgetID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "widget not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before the snapshot so nothing falls between the two.
	events, err := h.events.Subscribe(ctx, widgetID)
	if err != nil {
		log.Error().Err(err).Str("widget", widgetID).Msg("[sse] subscribe failed")
		utils.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	// A client that stops reading fails the write instead of hanging it.
	rc := http.NewResponseController(w)
	extendDeadline := func() {
		_ = rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	}

	utils.SetupSSEHeaders(w)
	extendDeadline()
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "snapshot", manager.Snapshot()); err != nil {
		return
	}
	log.Debug().Str("widget", widgetID).Msg("[sse] stream opened")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("widget", widgetID).Msg("[sse] stream closed")
			return
		case evt, ok := <-events:
			if !ok {
				// Closed by the bus when this client fell behind; the browser
				// reconnects and starts over from a snapshot.
				return
			}
			extendDeadline()
			if err := utils.SendSSEEvent(w, flusher, string(evt.Type), evt); err != nil {
				return
			}
		case <-ticker.C:
			extendDeadline()
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}
