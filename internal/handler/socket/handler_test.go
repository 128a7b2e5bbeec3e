package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	chatModel "github.com/consultationhouse/site/backend/internal/model/chat"
	"github.com/consultationhouse/site/backend/internal/model/persona"
	"github.com/consultationhouse/site/backend/internal/service/ai"
	"github.com/consultationhouse/site/backend/internal/service/chat"
	"github.com/consultationhouse/site/backend/internal/service/events"
)

type echoClient struct{}

func (echoClient) StartConversation(context.Context, string, string) (ai.Conversation, error) {
	return echoClient{}, nil
}

func (echoClient) Generate(_ context.Context, _ string, text string) (ai.Reply, error) {
	return ai.Reply{Text: "stateless: " + text}, nil
}

func (echoClient) Send(_ context.Context, text string) (ai.Reply, error) {
	return ai.Reply{Text: "session: " + text}, nil
}

type frame struct {
	Type     string          `json:"type"`
	WidgetID string          `json:"widgetId"`
	Data     json.RawMessage `json:"data"`
}

func dial(t *testing.T) (*websocket.Conn, *chat.Service, string) {
	t.Helper()

	bus := events.NewChannelBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	factory := func(context.Context) (ai.Client, error) { return echoClient{}, nil }
	chatSvc := chat.NewService(persona.NewMemoryStore(persona.Seed()), factory, chat.Options{
		Greeting: true,
		Events:   bus,
	})
	session, _, err := chatSvc.Mount(context.Background(), "")
	if err != nil {
		t.Fatalf("Mount err: %v", err)
	}

	r := chi.NewRouter()
	New(chatSvc, bus).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/widgets/" + session.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, chatSvc, session.ID
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestSnapshotOnConnect(t *testing.T) {
	conn, _, widgetID := dial(t)

	f := readFrame(t, conn)
	if f.Type != "snapshot" || f.WidgetID != widgetID {
		t.Fatalf("unexpected first frame: %+v", f)
	}
	var snap chatModel.Snapshot
	if err := json.Unmarshal(f.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Open || snap.State != "uninitialized" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestOpenAndSendOverSocket(t *testing.T) {
	conn, chatSvc, widgetID := dial(t)
	readFrame(t, conn)

	if err := conn.WriteJSON(inboundMessage{Type: "open"}); err != nil {
		t.Fatalf("write open: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "open" {
		t.Fatalf("expected open event, got %s", f.Type)
	}

	if err := conn.WriteJSON(inboundMessage{Type: "send", Text: "GST registration?"}); err != nil {
		t.Fatalf("write send: %v", err)
	}

	var reply chatModel.Event
	for _, want := range []string{"message", "pending", "message", "pending"} {
		f := readFrame(t, conn)
		if f.Type != want {
			t.Fatalf("expected %s, got %s", want, f.Type)
		}
		if want == "message" {
			if err := json.Unmarshal(f.Data, &reply); err != nil {
				t.Fatalf("decode event: %v", err)
			}
		}
	}
	if reply.Message == nil || reply.Message.Text != "session: GST registration?" {
		t.Fatalf("unexpected reply event: %+v", reply)
	}

	manager, err := chatSvc.Get(context.Background(), widgetID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	manager.Wait()
	if got := len(manager.Messages()); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	conn, _, _ := dial(t)
	readFrame(t, conn)

	if err := conn.WriteJSON(inboundMessage{Type: "shout"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "error" {
		t.Fatalf("expected error frame, got %s", f.Type)
	}
}

func TestUnknownWidgetRejected(t *testing.T) {
	factory := func(context.Context) (ai.Client, error) { return echoClient{}, nil }
	chatSvc := chat.NewService(persona.NewMemoryStore(persona.Seed()), factory, chat.Options{})
	bus := events.NewChannelBus(zerolog.Nop())
	defer bus.Close()

	r := chi.NewRouter()
	New(chatSvc, bus).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/widgets/missing/ws", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
