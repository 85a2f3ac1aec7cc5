package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vox-chat/config"
	"vox-chat/internal/domain"
	"vox-chat/internal/events"
	"vox-chat/internal/observability"
	"vox-chat/internal/realtime"
	"vox-chat/internal/session"
	"vox-chat/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

type fakeHealth struct{ err error }

func (f fakeHealth) Ping(context.Context) error { return f.err }

func newTestServer(t *testing.T, health HealthChecker) (*httptest.Server, *Hub) {
	t.Helper()
	log := logger.Wrap(zaptest.NewLogger(t))
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	hub := NewHub(metrics, NewWebSocketLogger(log.Logger))
	store := session.New(session.LoadedState{
		Channels: domain.DefaultChannels(),
		Roles:    domain.DefaultRoles(),
	})
	router := realtime.NewRouter(store, hub, realtime.WithLogger(log), realtime.WithMetrics(metrics))

	ctx, cancel := context.WithCancel(context.Background())
	go router.Run(ctx)

	srv := New(&config.Config{AppPort: "0", AppMode: TestMode}, log)
	srv.SetupRoutes(&Handlers{
		WebSocket: NewWebSocketHandler(hub, router, nil),
		Health:    health,
		Gatherer:  reg,
	})
	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
		cancel()
	})
	return ts, hub
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) events.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var f events.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func write(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := events.Encode(event, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatal(err)
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	ts, hub := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var first events.Frame
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatal(err)
	}
	if first.Event != events.EventInit {
		t.Fatalf("first event = %q, want init", first.Event)
	}

	write(t, conn, events.CmdSetUsername, "alice")
	readUntil(t, conn, events.EventUsernamesUpdate)

	write(t, conn, events.CmdSendMessage, map[string]any{"channelId": "general", "text": "hello"})
	f := readUntil(t, conn, events.EventNewMessage)

	var got events.NewMessagePayload
	if err := json.Unmarshal(f.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ChannelID != "general" || got.Message == nil || got.Message.Text != "hello" || got.Message.User != "alice" {
		t.Errorf("new-message = %s", f.Data)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub still has %d clients after close", hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthAndPing(t *testing.T) {
	tests := []struct {
		name       string
		health     HealthChecker
		path       string
		wantStatus int
	}{
		{name: "ping", path: "/ping", wantStatus: http.StatusOK},
		{name: "healthy", health: fakeHealth{}, path: "/health", wantStatus: http.StatusOK},
		{name: "db down", health: fakeHealth{err: errors.New("database is closed")}, path: "/health", wantStatus: http.StatusServiceUnavailable},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, tt.health)
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHub_SendDropsWhenBufferFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hub := NewHub(metrics, NewWebSocketLogger(zaptest.NewLogger(t)))
	client := &Client{connID: "c1", send: make(chan []byte, 1)}
	hub.register(client)

	hub.Send("c1", []byte("a"))
	hub.Send("c1", []byte("b"))
	hub.Send("unknown", []byte("c"))

	if got := len(client.send); got != 1 {
		t.Errorf("buffered frames = %d, want 1", got)
	}
	if !hub.unregister(client) {
		t.Fatal("unregister() = false")
	}
	if hub.unregister(client) {
		t.Error("second unregister() = true")
	}
	hub.Send("c1", []byte("after close"))
}

func TestHub_LeavesConnectionGaugeToRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hub := NewHub(metrics, NewWebSocketLogger(zaptest.NewLogger(t)))
	store := session.New(session.LoadedState{Channels: domain.DefaultChannels(), Roles: domain.DefaultRoles()})
	router := realtime.NewRouter(store, hub, realtime.WithMetrics(metrics))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	client := &Client{connID: "c1", send: make(chan []byte, 16)}
	hub.register(client)
	router.Connect("c1", "127.0.0.1:40000")

	select {
	case <-client.send:
	case <-time.After(2 * time.Second):
		t.Fatal("router never sent init to c1")
	}
	if got := testutil.ToFloat64(metrics.ActiveConnections); got != 1 {
		t.Errorf("active connections = %v, want 1", got)
	}
}

func TestClientRateLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewClientRateLimiter(RateLimits{MaxTypingEvents: 2, MaxSignals: 1})
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	for i, want := range []bool{true, true, false} {
		if got := rl.Allow(events.CmdTyping); got != want {
			t.Errorf("typing #%d Allow() = %v, want %v", i, got, want)
		}
	}
	if !rl.Allow(events.CmdWebRTCCandidate) {
		t.Error("signal budget is independent of typing")
	}
	if rl.Allow(events.CmdSendMessage) {
		t.Error("zero message budget allowed a message")
	}

	now = now.Add(time.Minute)
	if !rl.Allow(events.CmdTyping) {
		t.Error("budget was not refilled after a minute")
	}
}
