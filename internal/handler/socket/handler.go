// Package socket drives a widget over a WebSocket: the browser sends
// open/close/send commands and receives every widget change as it happens.
package socket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/consultationhouse/site/backend/internal/handler/stream"
	chatModel "github.com/consultationhouse/site/backend/internal/model/chat"
	"github.com/consultationhouse/site/backend/internal/service/chat"
	"github.com/consultationhouse/site/backend/internal/service/widget"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Handler upgrades widget connections.
type Handler struct {
	chatSvc  *chat.Service
	events   stream.Subscriber
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler.
func New(chatSvc *chat.Service, events stream.Subscriber) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		events:  events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/widgets/{widgetID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	WidgetID  string      `json:"widgetId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	conn     *websocket.Conn
	widgetID string
	mu       sync.Mutex
}

func (c *connection) write(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		WidgetID:  c.widgetID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *connection) sendError(message string) {
	if err := c.write("error", map[string]string{"message": message}); err != nil {
		log.Warn().Err(err).Str("widget", c.widgetID).Msg("[websocket] write error failed")
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	widgetID := chi.URLParam(r, "widgetID")

	manager, err := h.chatSvc.Get(r.Context(), widgetID)
	if err != nil {
		http.Error(w, "widget not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.events.Subscribe(ctx, widgetID)
	if err != nil {
		log.Error().Err(err).Str("widget", widgetID).Msg("[websocket] subscribe failed")
		return
	}

	c := &connection{conn: conn, widgetID: widgetID}
	log.Debug().Str("widget", widgetID).Msg("[websocket] new connection")

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	if err := c.write("snapshot", manager.Snapshot()); err != nil {
		return
	}

	go h.forwardEvents(ctx, c, events)
	go h.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("widget", widgetID).Msg("[websocket] read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, c, manager, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, manager *widget.Manager, msg inboundMessage) {
	switch msg.Type {
	case "open":
		manager.Open(ctx)
	case "close":
		manager.Close()
	case "send":
		// Replies arrive through the event stream.
		if _, err := manager.Submit(ctx, msg.Text); err != nil {
			if errors.Is(err, widget.ErrEmptyMessage) {
				return
			}
			c.sendError(err.Error())
		}
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// forwardEvents closes the connection when it stops, which ends the read loop.
func (h *Handler) forwardEvents(ctx context.Context, c *connection, events <-chan chatModel.Event) {
	defer c.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := c.write(string(evt.Type), evt); err != nil {
				log.Debug().Err(err).Str("widget", c.widgetID).Msg("[websocket] forward event failed")
				return
			}
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
