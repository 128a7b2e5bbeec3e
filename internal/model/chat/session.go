package chat

import "time"

// Session describes a mounted widget instance, one per page load.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is everything a render layer needs to draw one widget.
type Snapshot struct {
	ID       string    `json:"id"`
	Open     bool      `json:"open"`
	Pending  bool      `json:"pending"`
	State    string    `json:"state"`
	Messages []Message `json:"messages"`
}
