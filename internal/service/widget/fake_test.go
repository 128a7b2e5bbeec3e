package widget

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/consultationhouse/site/backend/internal/model/chat"
	"github.com/consultationhouse/site/backend/internal/service/ai"
)

var errBackendDown = errors.New("backend unreachable")

// fakeBackend records every call the manager makes. Replies are produced by
// reply; a nil reply echoes the text.
type fakeBackend struct {
	mu sync.Mutex

	factoryCalls  int
	startCalls    int
	sessionSends  []string
	statelessSend []string

	factoryErr func(call int) error
	startErr   error
	reply      func(ctx context.Context, text string) (ai.Reply, error)
}

func (f *fakeBackend) factory(ctx context.Context) (ai.Client, error) {
	f.mu.Lock()
	f.factoryCalls++
	call := f.factoryCalls
	f.mu.Unlock()

	if f.factoryErr != nil {
		if err := f.factoryErr(call); err != nil {
			return nil, err
		}
	}
	return &fakeClient{backend: f}, nil
}

func (f *fakeBackend) answer(ctx context.Context, text string) (ai.Reply, error) {
	if f.reply == nil {
		return ai.Reply{Text: "echo: " + text}, nil
	}
	return f.reply(ctx, text)
}

func (f *fakeBackend) counts() (factory, start, session, stateless int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.factoryCalls, f.startCalls, len(f.sessionSends), len(f.statelessSend)
}

type fakeClient struct {
	backend *fakeBackend
}

func (c *fakeClient) StartConversation(_ context.Context, _ string, _ string) (ai.Conversation, error) {
	c.backend.mu.Lock()
	c.backend.startCalls++
	err := c.backend.startErr
	c.backend.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeConversation{backend: c.backend}, nil
}

func (c *fakeClient) Generate(ctx context.Context, _ string, text string) (ai.Reply, error) {
	c.backend.mu.Lock()
	c.backend.statelessSend = append(c.backend.statelessSend, text)
	c.backend.mu.Unlock()
	return c.backend.answer(ctx, text)
}

type fakeConversation struct {
	backend *fakeBackend
}

func (s *fakeConversation) Send(ctx context.Context, text string) (ai.Reply, error) {
	s.backend.mu.Lock()
	s.backend.sessionSends = append(s.backend.sessionSends, text)
	s.backend.mu.Unlock()
	return s.backend.answer(ctx, text)
}

// recordingSink keeps published events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []chat.Event
}

func (r *recordingSink) Publish(evt chat.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) types() []chat.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.EventType, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

// lastPending returns the most recent pending indicator published.
func (r *recordingSink) lastPending() (value, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == chat.EventPending && r.events[i].Pending != nil {
			return *r.events[i].Pending, true
		}
	}
	return false, false
}

// slowReplySink delays delivery of bot messages, widening the window between
// a reply landing and its pending event.
type slowReplySink struct {
	recordingSink
	delay time.Duration
}

func (s *slowReplySink) Publish(evt chat.Event) {
	if evt.Type == chat.EventMessage && evt.Message != nil && evt.Message.Sender == chat.SenderBot {
		time.Sleep(s.delay)
	}
	s.recordingSink.Publish(evt)
}
