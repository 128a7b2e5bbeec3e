package chat

import "time"

// EventType enumerates the widget changes pushed to live subscribers.
type EventType string

const (
	EventMessage EventType = "message"
	EventPending EventType = "pending"
	EventOpen    EventType = "open"
)

// Event is a single widget change. Only the field matching Type is set.
type Event struct {
	Type     EventType `json:"type"`
	WidgetID string    `json:"widgetId"`
	Message  *Message  `json:"message,omitempty"`
	Pending  *bool     `json:"pending,omitempty"`
	Open     *bool     `json:"open,omitempty"`
	At       time.Time `json:"at"`
}

// MessageEvent wraps an appended message.
func MessageEvent(widgetID string, msg Message) Event {
	return Event{Type: EventMessage, WidgetID: widgetID, Message: &msg, At: time.Now().UTC()}
}

// PendingEvent reports the pending indicator.
func PendingEvent(widgetID string, pending bool) Event {
	return Event{Type: EventPending, WidgetID: widgetID, Pending: &pending, At: time.Now().UTC()}
}

// OpenEvent reports the open/close toggle.
func OpenEvent(widgetID string, open bool) Event {
	return Event{Type: EventOpen, WidgetID: widgetID, Open: &open, At: time.Now().UTC()}
}
