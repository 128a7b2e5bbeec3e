package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/consultationhouse/site/backend/internal/model/chat"
	"github.com/consultationhouse/site/backend/internal/model/persona"
	"github.com/consultationhouse/site/backend/internal/service/ai"
	"github.com/consultationhouse/site/backend/internal/service/widget"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrWidgetNotFound  = errors.New("widget not found")
)

// Options are applied to every widget the service mounts.
type Options struct {
	Model       string
	MaxInFlight int
	Greeting    bool
	Events      widget.EventSink
}

type mounted struct {
	session chat.Session
	manager *widget.Manager
}

// Service keeps the widgets mounted by live page loads, in memory only.
type Service struct {
	personas persona.Store
	factory  ai.ClientFactory
	opts     Options

	mu      sync.RWMutex
	widgets map[string]mounted
	// draining holds unmounted widgets until their in-flight sends settle.
	draining map[string]*widget.Manager
}

// NewService creates an empty widget registry.
func NewService(personas persona.Store, factory ai.ClientFactory, opts Options) *Service {
	return &Service{
		personas: personas,
		factory:  factory,
		opts:     opts,
		widgets:  make(map[string]mounted),
		draining: make(map[string]*widget.Manager),
	}
}

// Mount creates a widget bound to personaID, or to the default persona when
// personaID is empty.
func (s *Service) Mount(_ context.Context, personaID string) (chat.Session, *widget.Manager, error) {
	p := s.personas.Default()
	if personaID != "" {
		found, ok := s.personas.FindByID(personaID)
		if !ok {
			return chat.Session{}, nil, errors.Wrap(ErrPersonaNotFound, personaID)
		}
		p = found
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: p.ID,
		CreatedAt: time.Now().UTC(),
	}

	manager := widget.New(p, s.factory,
		widget.WithID(session.ID),
		widget.WithModel(s.opts.Model),
		widget.WithMaxInFlight(s.opts.MaxInFlight),
		widget.WithGreeting(s.opts.Greeting),
		widget.WithEventSink(s.opts.Events),
		widget.WithLogger(log.Logger),
	)

	s.mu.Lock()
	s.widgets[session.ID] = mounted{session: session, manager: manager}
	s.mu.Unlock()

	log.Debug().Str("widget", session.ID).Str("persona", p.ID).Msg("widget mounted")
	return session, manager, nil
}

// Get retrieves a mounted widget.
func (s *Service) Get(_ context.Context, id string) (*widget.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.widgets[id]
	if !ok {
		return nil, ErrWidgetNotFound
	}
	return entry.manager, nil
}

// GetSession retrieves the descriptor of a mounted widget.
func (s *Service) GetSession(_ context.Context, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.widgets[id]
	if !ok {
		return chat.Session{}, ErrWidgetNotFound
	}
	return entry.session, nil
}

// Unmount drops a widget. Its in-flight sends still complete, and Drain
// keeps waiting for them.
func (s *Service) Unmount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.widgets[id]
	if !ok {
		return ErrWidgetNotFound
	}
	delete(s.widgets, id)
	s.draining[id] = entry.manager
	s.pruneDrainingLocked()
	return nil
}

// Draining returns how many unmounted widgets still have sends in flight.
func (s *Service) Draining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneDrainingLocked()
	return len(s.draining)
}

func (s *Service) pruneDrainingLocked() {
	for id, manager := range s.draining {
		if !manager.Pending() {
			delete(s.draining, id)
		}
	}
}

// Count returns the number of mounted widgets.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.widgets)
}

// Drain waits for background sends of every mounted or still draining
// widget, or until ctx ends.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.pruneDrainingLocked()
	managers := make([]*widget.Manager, 0, len(s.widgets)+len(s.draining))
	for _, entry := range s.widgets {
		managers = append(managers, entry.manager)
	}
	for _, manager := range s.draining {
		managers = append(managers, manager)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, m := range managers {
			m.Wait()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
