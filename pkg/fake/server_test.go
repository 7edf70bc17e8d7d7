package fake

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabchat/tabchat/pkg/chat"
	"github.com/tabchat/tabchat/pkg/protocol"
)

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, frame protocol.Frame) {
	t.Helper()
	data, err := protocol.Encode(frame)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

// readEvents reads until an event of the wanted terminal type arrives.
func readEvents(t *testing.T, ws *websocket.Conn) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		ev, err := protocol.Decode(data)
		require.NoError(t, err)
		events = append(events, ev)
		switch ev.(type) {
		case *protocol.DoneEvent, *protocol.StoppedEvent, *protocol.ErrorEvent, *protocol.HistoryEvent:
			return events
		}
	}
}

func TestServer_ScriptedTurn(t *testing.T) {
	t.Parallel()

	srv := New(WithScript(Script{
		Reply:     "hello world",
		ChunkSize: 5,
		Metadata:  &chat.TurnMetadata{CostUSD: 0.01, OutputTokens: 2},
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ws := dial(t, ts)
	sendFrame(t, ws, protocol.Query("hi", "", "default", ""))

	events := readEvents(t, ws)
	require.GreaterOrEqual(t, len(events), 3)

	start, ok := events[0].(*protocol.StartEvent)
	require.True(t, ok)
	assert.NotEmpty(t, start.SessionID)

	var content string
	for _, ev := range events[1 : len(events)-1] {
		chunk, ok := ev.(*protocol.ChunkEvent)
		require.True(t, ok)
		content += chunk.Content
	}
	assert.Equal(t, "hello world", content)

	done, ok := events[len(events)-1].(*protocol.DoneEvent)
	require.True(t, ok)
	assert.Equal(t, start.SessionID, done.SessionID)
	require.NotNil(t, done.Metadata)
	assert.InDelta(t, 0.01, done.Metadata.CostUSD, 1e-9)
}

func TestServer_ToolRound(t *testing.T) {
	t.Parallel()

	srv := New(WithScript(Script{
		Reply: "ok",
		Tool:  &ToolRound{Name: "search", Input: `{"q":"go"}`, Output: "3 hits"},
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ws := dial(t, ts)
	sendFrame(t, ws, protocol.Query("hi", "", "", ""))

	events := readEvents(t, ws)

	var use *protocol.ToolUseEvent
	var result *protocol.ToolResultEvent
	for _, ev := range events {
		switch e := ev.(type) {
		case *protocol.ToolUseEvent:
			use = e
		case *protocol.ToolResultEvent:
			result = e
		}
	}
	require.NotNil(t, use)
	require.NotNil(t, result)
	assert.Equal(t, "search", use.Name)
	assert.Equal(t, use.ID, result.Key())
	assert.Equal(t, "3 hits", result.Text())
}

func TestServer_StopMidStream(t *testing.T) {
	t.Parallel()

	srv := New(WithScript(Script{
		Reply:     strings.Repeat("x", 1000),
		ChunkSize: 10,
		Delay:     30 * time.Millisecond,
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ws := dial(t, ts)
	sendFrame(t, ws, protocol.Query("hi", "", "", ""))

	// Learn the session id from the start event, then interrupt.
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	ev, err := protocol.Decode(data)
	require.NoError(t, err)
	start, ok := ev.(*protocol.StartEvent)
	require.True(t, ok)

	sendFrame(t, ws, protocol.StopRequest(start.SessionID))

	events := readEvents(t, ws)
	_, ok = events[len(events)-1].(*protocol.StoppedEvent)
	assert.True(t, ok, "stream must end with stopped, got %T", events[len(events)-1])
}

func TestServer_LoadSessionReplaysHistory(t *testing.T) {
	t.Parallel()

	srv := New()
	srv.Seed("s1", "old chat", []chat.Message{
		chat.UserMessage("hello"),
		{Kind: chat.KindAssistant, Content: "hi"},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ws := dial(t, ts)
	sendFrame(t, ws, protocol.LoadSession("s1"))

	events := readEvents(t, ws)
	history, ok := events[len(events)-1].(*protocol.HistoryEvent)
	require.True(t, ok)
	assert.Equal(t, "s1", history.SessionID)
	assert.Len(t, history.Messages, 2)
}

func TestServer_PingKeepalive(t *testing.T) {
	t.Parallel()

	srv := New(WithPingInterval(20 * time.Millisecond))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ws := dial(t, ts)
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	ev, err := protocol.Decode(data)
	require.NoError(t, err)
	_, ok := ev.(*protocol.PingEvent)
	assert.True(t, ok)

	// The server tolerates the pong reply without closing.
	sendFrame(t, ws, protocol.PongReply())
}
