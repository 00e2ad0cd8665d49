package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"go-dm/internal/chat"
	myMiddleware "go-dm/internal/middleware"
	"go-dm/internal/user"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type gateway struct {
	srv       *httptest.Server
	publisher *Publisher
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { rdb.Close() })

	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(rdb, log)
	go hub.Run(ctx)
	go hub.SubscribeToRedis(ctx)
	select {
	case <-hub.Ready():
	case <-time.After(5 * time.Second):
		t.Fatalf("hub never subscribed to redis")
	}

	sessions := myMiddleware.NewSessionMiddleware(testSecret, log)
	r := chi.NewRouter()
	r.With(sessions.Require).Get("/ws", NewHandler(hub, nil, log).ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &gateway{srv: srv, publisher: NewPublisher(rdb, log)}
}

func (g *gateway) dial(t *testing.T, u user.User) *websocket.Conn {
	t.Helper()
	token, err := myMiddleware.SignSession(testSecret, u, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// frames reads one websocket message and splits batched envelopes.
func frames(t *testing.T, conn *websocket.Conn) []Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []Envelope
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		out = append(out, env)
	}
	return out
}

func nextEnvelope(t *testing.T, conn *websocket.Conn, pending *[]Envelope) Envelope {
	t.Helper()
	if len(*pending) == 0 {
		*pending = frames(t, conn)
	}
	env := (*pending)[0]
	*pending = (*pending)[1:]
	return env
}

func control(t *testing.T, conn *websocket.Conn, op, channel string) {
	t.Helper()
	if err := conn.WriteJSON(ControlFrame{Op: op, Channel: channel}); err != nil {
		t.Fatalf("write %s: %v", op, err)
	}
}

func TestGatewayDeliversToSubscribers(t *testing.T) {
	g := newGateway(t)
	u1 := user.User{ID: "U1", Name: "One", Image: "one.png"}
	u2 := user.User{ID: "U2", Name: "Two"}

	conn := g.dial(t, u2)
	var pending []Envelope

	for _, ch := range []string{"chat:U1--U2", "user:U2:chats"} {
		control(t, conn, OpSubscribe, ch)
		ack := nextEnvelope(t, conn, &pending)
		if ack.Event != EventSubscribed || ack.Channel != ch {
			t.Fatalf("expected subscribe ack for %s, got %+v", ch, ack)
		}
	}

	m := chat.Message{ID: "m1", SenderID: "U1", ReceiverID: "U2", Text: "hi", Timestamp: 1000}
	g.publisher.MessageSent(context.Background(), "U1--U2", m, u1)

	got := map[string]Event{}
	for len(got) < 2 {
		ev, err := Decode(nextEnvelope(t, conn, &pending))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got[ev.Channel] = ev
	}
	if p := got["chat:U1--U2"].Payload.(MessageSent); p.Message != m {
		t.Fatalf("unexpected conversation payload %+v", p)
	}
	if p := got["user:U2:chats"].Payload.(SidebarMessage); p.Message != m || p.SenderName != "One" || p.SenderImg != "one.png" {
		t.Fatalf("unexpected sidebar payload %+v", p)
	}
}

func TestGatewayRejectsForeignChannels(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, user.User{ID: "U3"})
	var pending []Envelope

	for _, ch := range []string{"chat:U1--U2", "user:U1:chats", "nonsense"} {
		control(t, conn, OpSubscribe, ch)
		reply := nextEnvelope(t, conn, &pending)
		if reply.Event != EventSubscriptionError || reply.Channel != ch {
			t.Fatalf("expected subscription error for %s, got %+v", ch, reply)
		}
	}
}

func TestGatewayUnsubscribeStopsDelivery(t *testing.T) {
	g := newGateway(t)
	u1 := user.User{ID: "U1"}
	conn := g.dial(t, user.User{ID: "U2"})
	var pending []Envelope

	control(t, conn, OpSubscribe, "chat:U1--U2")
	control(t, conn, OpSubscribe, "chat:U1--U2")
	nextEnvelope(t, conn, &pending)
	nextEnvelope(t, conn, &pending)

	control(t, conn, OpUnsubscribe, "chat:U1--U2")
	control(t, conn, OpUnsubscribe, "chat:U1--U2")
	control(t, conn, OpSubscribe, "user:U2:chats")
	if ack := nextEnvelope(t, conn, &pending); ack.Channel != "user:U2:chats" {
		t.Fatalf("expected ack for chats channel, got %+v", ack)
	}

	m := chat.Message{ID: "m1", SenderID: "U1", ReceiverID: "U2", Text: "hi", Timestamp: 1000}
	g.publisher.MessageSent(context.Background(), "U1--U2", m, u1)

	env := nextEnvelope(t, conn, &pending)
	if env.Channel != "user:U2:chats" {
		t.Fatalf("expected only the chats event, got %+v", env)
	}

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if len(pending) == 0 {
		if _, raw, err := conn.ReadMessage(); err == nil {
			t.Fatalf("unexpected frame after unsubscribe: %s", raw)
		}
	} else {
		t.Fatalf("unexpected frames after unsubscribe: %+v", pending)
	}
}

func TestGatewayRequiresSession(t *testing.T) {
	g := newGateway(t)
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}
