// Package widget implements the chat widget's session manager: it owns the
// lazily created backend conversation, the transcript and the pending
// indicator, and guarantees every accepted send ends in exactly one bot
// message.
package widget

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/consultationhouse/site/backend/internal/model/chat"
	"github.com/consultationhouse/site/backend/internal/model/persona"
	"github.com/consultationhouse/site/backend/internal/service/ai"
)

var (
	// ErrEmptyMessage reports a send that was ignored because the text was blank.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTooManyInFlight reports a send rejected by the in-flight bound.
	ErrTooManyInFlight = errors.New("too many messages awaiting a reply")
)

// Exchange pairs the user message of a send with the bot message it produced.
type Exchange struct {
	User  chat.Message `json:"user"`
	Reply chat.Message `json:"reply"`
}

// Manager is one mounted chat widget.
type Manager struct {
	id       string
	persona  persona.Persona
	model    string
	factory  ai.ClientFactory
	sink     EventSink
	logger   zerolog.Logger
	limit    *semaphore.Weighted
	greeting bool

	initOnce sync.Once
	wg       sync.WaitGroup

	// pubMu is held from a state change through its events, so subscribers
	// see changes in the order they were made. Acquired before mu.
	pubMu sync.Mutex

	mu           sync.Mutex
	open         bool
	state        State
	conversation ai.Conversation
	initAttempts int
	transcript   []chat.Message
	inFlight     int
}

// New mounts a widget for p. factory is consulted once when the widget is
// first opened and again for every send made without a session.
func New(p persona.Persona, factory ai.ClientFactory, opts ...Option) *Manager {
	m := &Manager{
		id:       uuid.NewString(),
		persona:  p,
		model:    p.ModelID(),
		factory:  factory,
		logger:   log.Logger,
		greeting: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("widget", m.id).Logger()

	if m.greeting && p.Greeting != "" {
		m.appendLocked(p.Greeting, chat.SenderBot)
	}
	return m
}

// ID returns the widget identifier.
func (m *Manager) ID() string {
	return m.id
}

// Persona returns the persona the widget talks as.
func (m *Manager) Persona() persona.Persona {
	return m.persona
}

// Open shows the widget. The first call attempts to create the backend
// session; later calls never retry, even when that attempt failed.
func (m *Manager) Open(ctx context.Context) {
	m.pubMu.Lock()
	m.mu.Lock()
	changed := !m.open
	m.open = true
	m.mu.Unlock()

	if changed {
		m.publish(chat.OpenEvent(m.id, true))
	}
	m.pubMu.Unlock()

	m.ensureInitialized(ctx)
}

// Close hides the widget. In-flight sends keep running.
func (m *Manager) Close() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	changed := m.open
	m.open = false
	m.mu.Unlock()

	if changed {
		m.publish(chat.OpenEvent(m.id, false))
	}
}

func (m *Manager) ensureInitialized(ctx context.Context) {
	m.initOnce.Do(func() {
		conv, err := m.startConversation(ctx)

		m.mu.Lock()
		m.initAttempts++
		if err != nil {
			m.state = StateDegraded
		} else {
			m.state = StateReady
			m.conversation = conv
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn().Err(err).Str("model", m.model).Msg("chat session init failed, falling back to stateless requests")
			return
		}
		m.logger.Debug().Str("model", m.model).Msg("chat session ready")
	})
}

func (m *Manager) startConversation(ctx context.Context) (conv ai.Conversation, err error) {
	defer recoverBackend(&err)

	client, err := m.factory(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build client")
	}
	conv, err = client.StartConversation(ctx, m.model, ai.SystemInstruction(m.persona))
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.New("backend returned no conversation")
	}
	return conv, nil
}

// Send appends text as a user message, waits for the backend and appends the
// bot reply. Backend failures become the persona's apology message; the only
// errors returned are ErrEmptyMessage and ErrTooManyInFlight, in which case
// nothing was appended.
func (m *Manager) Send(ctx context.Context, text string) (Exchange, error) {
	user, err := m.accept(text)
	if err != nil {
		return Exchange{}, err
	}
	return Exchange{User: user, Reply: m.respond(ctx, user.Text)}, nil
}

// Submit appends the user message synchronously and completes the backend
// call in the background. The background call ignores ctx cancellation, so
// a reply still lands after the caller has gone away.
func (m *Manager) Submit(ctx context.Context, text string) (chat.Message, error) {
	user, err := m.accept(text)
	if err != nil {
		return chat.Message{}, err
	}

	detached := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.respond(detached, user.Text)
	}()
	return user, nil
}

// Wait blocks until every background send has settled.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) accept(text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if m.limit != nil && !m.limit.TryAcquire(1) {
		return chat.Message{}, ErrTooManyInFlight
	}

	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	msg := m.appendLocked(text, chat.SenderUser)
	m.inFlight++
	nowPending := m.inFlight == 1
	m.mu.Unlock()

	m.publish(chat.MessageEvent(m.id, msg))
	if nowPending {
		m.publish(chat.PendingEvent(m.id, true))
	}
	return msg, nil
}

func (m *Manager) respond(ctx context.Context, text string) chat.Message {
	start := time.Now()
	reply, err := m.generate(ctx, text)
	display := m.displayText(reply, err)

	m.pubMu.Lock()
	m.mu.Lock()
	msg := m.appendLocked(display, chat.SenderBot)
	m.inFlight--
	settled := m.inFlight == 0
	m.mu.Unlock()

	m.publish(chat.MessageEvent(m.id, msg))
	if settled {
		m.publish(chat.PendingEvent(m.id, false))
	}
	m.pubMu.Unlock()

	if m.limit != nil {
		m.limit.Release(1)
	}

	m.logger.Debug().Dur("elapsed", time.Since(start)).Bool("failed", err != nil).Msg("reply appended")
	return msg
}

// generate routes a turn through the session when there is one and through
// a fresh stateless client otherwise.
func (m *Manager) generate(ctx context.Context, text string) (reply ai.Reply, err error) {
	defer recoverBackend(&err)

	m.mu.Lock()
	conv := m.conversation
	m.mu.Unlock()

	if conv != nil {
		return conv.Send(ctx, text)
	}

	client, err := m.factory(ctx)
	if err != nil {
		return ai.Reply{}, errors.Wrap(err, "build stateless client")
	}
	return client.Generate(ctx, m.model, text)
}

// displayText is the single place a backend result becomes bubble text.
func (m *Manager) displayText(reply ai.Reply, err error) string {
	if err != nil {
		m.logger.Warn().Err(err).Msg("chat reply failed")
		return m.persona.ApologyText()
	}
	if reply.Text == "" {
		return m.persona.NoResponseText()
	}
	return reply.Text
}

// appendLocked requires m.mu, except during construction.
func (m *Manager) appendLocked(text string, sender chat.Sender) chat.Message {
	msg := chat.Message{
		ID:        uuid.NewString(),
		Seq:       len(m.transcript),
		Text:      text,
		Sender:    sender,
		CreatedAt: time.Now().UTC(),
	}
	m.transcript = append(m.transcript, msg)
	return msg
}

func (m *Manager) publish(evt chat.Event) {
	if m.sink != nil {
		m.sink.Publish(evt)
	}
}

// Messages returns a copy of the transcript in display order.
func (m *Manager) Messages() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Message(nil), m.transcript...)
}

// Pending reports whether any send is awaiting its reply.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight > 0
}

// IsOpen reports whether the widget is shown.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// State returns the session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// InitAttempts returns how many times session creation ran (0 or 1).
func (m *Manager) InitAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initAttempts
}

// Snapshot returns the UI-facing view of the widget.
func (m *Manager) Snapshot() chat.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return chat.Snapshot{
		ID:       m.id,
		Open:     m.open,
		Pending:  m.inFlight > 0,
		State:    m.state.String(),
		Messages: append([]chat.Message(nil), m.transcript...),
	}
}

func recoverBackend(err *error) {
	if r := recover(); r != nil {
		*err = errors.Errorf("generative backend panicked: %v", r)
	}
}
