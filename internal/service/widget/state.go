package widget

// State tracks whether a widget holds a backend session.
type State int

const (
	// StateUninitialized: the widget has never been opened.
	StateUninitialized State = iota
	// StateReady: a session was created and serves every send.
	StateReady
	// StateDegraded: session creation failed; sends use one-shot requests.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
