package widget

import (
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/consultationhouse/site/backend/internal/model/chat"
)

// EventSink receives widget changes as they happen.
type EventSink interface {
	Publish(evt chat.Event)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithID fixes the widget identifier instead of generating one.
func WithID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.id = id
		}
	}
}

// WithModel overrides the persona's model identifier.
func WithModel(model string) Option {
	return func(m *Manager) {
		if model != "" {
			m.model = model
		}
	}
}

// WithMaxInFlight caps concurrent sends. Zero or less keeps sends unbounded.
func WithMaxInFlight(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithEventSink forwards widget events to sink.
func WithEventSink(sink EventSink) Option {
	return func(m *Manager) {
		m.sink = sink
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithGreeting controls whether the transcript opens with the persona greeting.
func WithGreeting(enabled bool) Option {
	return func(m *Manager) {
		m.greeting = enabled
	}
}
