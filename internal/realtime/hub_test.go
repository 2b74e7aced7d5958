package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

type fakeHandler struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
	identities   []model.Identity

	// disconnectDelay stands in for a slow session write.
	disconnectDelay time.Duration
}

func (f *fakeHandler) Connect(_ context.Context, connID, transport string, id model.Identity) model.Event {
	f.mu.Lock()
	f.connected = append(f.connected, connID)
	f.identities = append(f.identities, id)
	f.mu.Unlock()
	return model.Event{Event: model.EventConnected, Data: model.ConnectedEvent{Status: "connected", UserID: id.UserID, SessionID: id.SessionID}}
}

func (f *fakeHandler) Disconnect(_ context.Context, connID string) {
	time.Sleep(f.disconnectDelay)
	f.mu.Lock()
	f.disconnected = append(f.disconnected, connID)
	f.mu.Unlock()
}

func (f *fakeHandler) HandleRealtimeMessage(_ context.Context, _ string, req model.ChatRequest) model.Event {
	if strings.TrimSpace(req.Message) == "" {
		return model.Event{Event: model.EventError, Data: model.ErrorEvent{Message: "Message is required"}}
	}
	return model.Event{Event: model.EventAIResponse, Data: model.AIResponseEvent{Text: "echo: " + req.Message, Type: model.MessageTypeRealtime}}
}

func (f *fakeHandler) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disconnected)
}

type frame struct {
	Event model.EventType `json:"event"`
	Data  map[string]any  `json:"data"`
}

func newServer(t *testing.T, h *fakeHandler) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(h, func(*http.Request) model.Identity {
		return model.Identity{UserID: "user_cookie1"}
	}, Config{Heartbeat: time.Second}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/api/events", hub.ServeSSE)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		_ = hub.Close(context.Background())
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestWebsocketConnectAndMessage(t *testing.T) {
	h := &fakeHandler{}
	hub, srv := newServer(t, h)
	conn := dial(t, srv)

	hello := read(t, conn)
	assert.Equal(t, model.EventConnected, hello.Event)
	assert.Equal(t, "user_cookie1", hello.Data["user_id"])
	assert.True(t, strings.HasPrefix(hello.Data["session_id"].(string), "session_"))
	assert.Equal(t, 1, hub.Count())

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "send_message",
		"data":  map[string]any{"message": "hi"},
	}))
	resp := read(t, conn)
	assert.Equal(t, model.EventAIResponse, resp.Event)
	assert.Equal(t, "echo: hi", resp.Data["text"])

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send_message", "data": map[string]any{"message": ""}}))
	resp = read(t, conn)
	assert.Equal(t, model.EventError, resp.Event)
	assert.Equal(t, "Message is required", resp.Data["message"])
}

func TestWebsocketRejectsGarbage(t *testing.T) {
	_, srv := newServer(t, &fakeHandler{})
	conn := dial(t, srv)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, model.EventError, read(t, conn).Event)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "dance"}))
	f := read(t, conn)
	assert.Equal(t, model.EventError, f.Event)
	assert.Contains(t, f.Data["message"], "dance")
}

func TestEachConnectionGetsOwnSession(t *testing.T) {
	h := &fakeHandler{}
	_, srv := newServer(t, h)
	a := dial(t, srv)
	b := dial(t, srv)
	fa, fb := read(t, a), read(t, b)

	assert.Equal(t, fa.Data["user_id"], fb.Data["user_id"])
	assert.NotEqual(t, fa.Data["session_id"], fb.Data["session_id"])
}

func TestBroadcastAndDisconnect(t *testing.T) {
	h := &fakeHandler{}
	hub, srv := newServer(t, h)
	conn := dial(t, srv)
	read(t, conn)

	hub.Broadcast(model.Event{Event: model.EventVoiceStatus, Data: model.VoiceStatusEvent{Listening: true}})
	f := read(t, conn)
	assert.Equal(t, model.EventVoiceStatus, f.Event)
	assert.Equal(t, true, f.Data["listening"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.disconnects() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSSEMirrorsBroadcasts(t *testing.T) {
	hub, srv := newServer(t, &fakeHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	expect := func(want string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed")
				if line == want {
					return
				}
			case <-deadline:
				t.Fatalf("did not see %q", want)
			}
		}
	}

	expect("event: connected")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(model.Event{Event: model.EventSpeakingStatus, Data: model.SpeakingStatusEvent{Speaking: true, Text: "hi"}})
	expect("event: speaking_status")
	expect(`data: {"speaking":true,"text":"hi"}`)
}

func TestClosedHubRefusesConnections(t *testing.T) {
	hub, srv := newServer(t, &fakeHandler{})
	require.NoError(t, hub.Close(context.Background()))

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUpgradeForwardsMiddlewareHeaders(t *testing.T) {
	hub := NewHub(&fakeHandler{}, nil, Config{Heartbeat: time.Second}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "zyeon_session", Value: "token"})
		hub.ServeWS(w, r)
	}))
	t.Cleanup(func() {
		_ = hub.Close(context.Background())
		srv.Close()
	})

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, "zyeon_session", resp.Cookies()[0].Name)
	assert.Equal(t, "token", resp.Cookies()[0].Value)
}

func TestCloseWaitsForDisconnectWork(t *testing.T) {
	h := &fakeHandler{disconnectDelay: 200 * time.Millisecond}
	hub, srv := newServer(t, h)
	conn := dial(t, srv)
	read(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Close(ctx))
	assert.Equal(t, 1, h.disconnects())
}

func TestCloseGivesUpWhenContextEnds(t *testing.T) {
	h := &fakeHandler{disconnectDelay: time.Second}
	hub, srv := newServer(t, h)
	conn := dial(t, srv)
	read(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := hub.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, h.disconnects())
}
