package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gungorefecetin/web-code-editor/internal/protocol"
	"github.com/gungorefecetin/web-code-editor/internal/room"
	"github.com/gungorefecetin/web-code-editor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	*httptest.Server
	hub      *Hub
	registry *room.Registry
	counters *SendCounters
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := discardLogger()
	registry := room.NewRegistry(logger)
	router := session.NewRouter(registry, logger)
	hub := NewHub(logger)
	counters := &SendCounters{}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(hub, router, opts, logger, counters.Middleware()))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, registry: registry, counters: counters}
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (ts *testServer) dial(t *testing.T) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(event string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// next reads frames until one named event arrives.
func (c *testClient) next(event string) json.RawMessage {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev wireEvent
		require.NoError(c.t, c.conn.ReadJSON(&ev), "waiting for %s", event)
		if ev.Event == event {
			return ev.Data
		}
	}
}

func (c *testClient) join(roomID, participantID, name string) protocol.RoomState {
	c.t.Helper()
	c.send("join", map[string]string{"roomId": roomID, "participantId": participantID, "displayName": name})
	var state protocol.RoomState
	require.NoError(c.t, json.Unmarshal(c.next("room_state"), &state))
	return state
}

func TestEndToEndCollaboration(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.dial(t)
	bob := ts.dial(t)

	state := alice.join("demo", "u1", "Alice")
	assert.Equal(t, room.DefaultDocuments(), state.Documents)

	state = bob.join("demo", "u2", "Bob")
	assert.Len(t, state.Participants, 2)

	var joined protocol.ParticipantJoined
	require.NoError(t, json.Unmarshal(alice.next("participant_joined"), &joined))
	assert.Equal(t, "u2", joined.ID)

	alice.send("document_update", map[string]string{
		"roomId": "demo", "documentName": "markup", "content": "<p>hi</p>", "participantId": "u1",
	})
	var updated protocol.DocumentUpdated
	require.NoError(t, json.Unmarshal(bob.next("document_updated"), &updated))
	assert.Equal(t, room.DocumentMarkup, updated.DocumentName)
	assert.Equal(t, "<p>hi</p>", updated.Content)
	assert.Equal(t, "u1", updated.ParticipantID)

	alice.send("chat_message", map[string]string{"roomId": "demo", "content": "hello"})
	for _, c := range []*testClient{alice, bob} {
		var msg room.ChatMessage
		for {
			require.NoError(t, json.Unmarshal(c.next("chat_message"), &msg))
			if msg.AuthorID != room.SystemAuthorID {
				break
			}
		}
		assert.Equal(t, "u1", msg.AuthorID)
		assert.Equal(t, "hello", msg.Content)
		assert.NotEmpty(t, msg.ID)
	}

	require.NoError(t, alice.conn.Close())

	var left protocol.ParticipantLeft
	require.NoError(t, json.Unmarshal(bob.next("participant_left"), &left))
	assert.Equal(t, "u1", left.ParticipantID)

	var notice room.ChatMessage
	require.NoError(t, json.Unmarshal(bob.next("chat_message"), &notice))
	assert.Equal(t, room.SystemAuthorID, notice.AuthorID)
	assert.Contains(t, notice.Content, "Alice")

	assert.Positive(t, ts.counters.Sent())
}

func TestInvalidFramesAreDropped(t *testing.T) {
	ts := newTestServer(t, Options{})
	c := ts.dial(t)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	c.send("code_update", map[string]string{"roomId": "demo"})
	c.send("join", map[string]string{"roomId": "demo"})
	require.NoError(t, c.conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1}))

	state := c.join("demo", "u1", "Alice")
	require.Len(t, state.Participants, 1, "connection is still usable")
}

func TestTakeoverClosesPriorSocket(t *testing.T) {
	ts := newTestServer(t, Options{})
	first := ts.dial(t)
	second := ts.dial(t)

	first.join("demo", "u1", "Alice")
	second.join("demo", "u1", "Alice")

	first.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := first.conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
	}

	participants, err := ts.registry.ListParticipants("demo")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, "u1", participants[0].ID)
}

func TestChatWithoutJoinRequiresReconnect(t *testing.T) {
	ts := newTestServer(t, Options{})
	c := ts.dial(t)

	c.send("chat_message", map[string]string{"roomId": "demo", "content": "hi"})
	assert.JSONEq(t, `{}`, string(c.next("reconnect_required")))
}

func TestHubTracksConnections(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.dial(t)
	ts.dial(t)

	assert.Eventually(t, func() bool { return ts.hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	a.conn.Close()
	assert.Eventually(t, func() bool { return ts.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, ts.hub.CloseAll())
	assert.Zero(t, ts.hub.Count())
}

func TestOriginCheck(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	conn.Close()
}

func TestEnqueueIsNonBlocking(t *testing.T) {
	c := &Client{
		id:     "c1",
		send:   make(chan []byte, 1),
		closed: make(chan struct{}),
	}
	counters := &SendCounters{}
	c.sendFn = chain(c.enqueue, counters.Middleware())

	require.NoError(t, c.Send(protocol.ReconnectRequired{}))
	assert.ErrorIs(t, c.Send(protocol.ReconnectRequired{}), ErrSendBufferFull)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send(protocol.ReconnectRequired{}), ErrClosed)

	assert.EqualValues(t, 1, counters.Sent())
	assert.EqualValues(t, 2, counters.Dropped())
}

func TestClosedClientStopsDispatching(t *testing.T) {
	logger := discardLogger()
	registry := room.NewRegistry(logger)
	c := &Client{
		id:      "c1",
		router:  session.NewRouter(registry, logger),
		decoder: protocol.NewDecoder(0),
		logger:  logger,
		send:    make(chan []byte, 8),
		closed:  make(chan struct{}),
	}
	c.sendFn = chain(c.enqueue)
	c.session = session.New(c)

	frame := func(roomID string) []byte {
		data, err := json.Marshal(map[string]any{
			"event": "join",
			"data":  map[string]string{"roomId": roomID, "participantId": "u1", "displayName": "Alice"},
		})
		require.NoError(t, err)
		return data
	}

	assert.True(t, c.handle(websocket.BinaryMessage, []byte{0x01}), "non-text frames are skipped")
	assert.True(t, c.handle(websocket.TextMessage, []byte("not json")))
	require.True(t, c.handle(websocket.TextMessage, frame("first")))
	_, ok := registry.Lookup("first")
	require.True(t, ok)

	c.Close()
	assert.False(t, c.handle(websocket.TextMessage, frame("second")))
	_, ok = registry.Lookup("second")
	assert.False(t, ok, "frames buffered behind a close are not dispatched")
	roomID, _, bound := c.session.Binding()
	assert.True(t, bound)
	assert.Equal(t, "first", roomID)
}

func TestChainOrder(t *testing.T) {
	var calls []string
	mark := func(name string) SendMiddleware {
		return func(next SendFunc) SendFunc {
			return func(ev room.Event) error {
				calls = append(calls, name)
				return next(ev)
			}
		}
	}
	send := chain(func(room.Event) error {
		calls = append(calls, "base")
		return nil
	}, mark("outer"), mark("inner"))

	require.NoError(t, send(protocol.ReconnectRequired{}))
	assert.Equal(t, []string{"outer", "inner", "base"}, calls)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{SendBuffer: 8}.withDefaults()
	assert.Equal(t, 8, o.SendBuffer)
	assert.Equal(t, 60*time.Second, o.PongWait)
	assert.Equal(t, 54*time.Second, o.PingPeriod())
	assert.EqualValues(t, 1024*1024, o.MaxMessageSize)
}
