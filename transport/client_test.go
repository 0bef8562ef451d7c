package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/drawchat/wire"
)

// echoServer acks every request with the event name, repeats "shout" as
// "heard" and hangs up on "bye".
func echoServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		defer ws.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			f, err := wire.ParseFrame(raw)
			if err != nil {
				continue
			}
			var out *wire.Frame
			switch {
			case f.Ack != 0:
				out, _ = wire.NewFrame(wire.EventAck, f.Ack, map[string]string{"echo": f.Event})
			case f.Event == "shout":
				out = &wire.Frame{Event: "heard", Data: f.Data}
			case f.Event == "bye":
				return
			}
			if out != nil {
				b, _ := json.Marshal(out)
				if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &conns
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) add(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func TestClient_RequestAndEvents(t *testing.T) {
	ts, _ := echoServer(t)
	c := NewClient(Options{URL: wsURL(ts), ReconnectDelay: 10 * time.Millisecond})
	var states stateLog
	c.OnState(states.add)

	assert.ErrorIs(t, c.Emit("shout", nil), ErrNotConnected)

	heard := make(chan string, 1)
	off := c.On("heard", func(data json.RawMessage) {
		var s string
		_ = json.Unmarshal(data, &s)
		heard <- s
	})
	c.Start()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := c.Request(ctx, "canvas:join", map[string]string{"canvasRoomId": "c1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"canvas:join"}`, string(raw))

	require.NoError(t, c.Emit("shout", "hello"))
	select {
	case s := <-heard:
		assert.Equal(t, "hello", s)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	off()
	require.NoError(t, c.Emit("shout", "again"))
	_, err = c.Request(ctx, "sync", nil)
	require.NoError(t, err, "request after the shout keeps ordering")
	assert.Empty(t, heard, "detached handler is not called")

	require.NoError(t, c.Close())
	assert.Equal(t, []State{StateConnected, StateDisconnected}, states.get())
}

func TestClient_Reconnects(t *testing.T) {
	ts, conns := echoServer(t)
	c := NewClient(Options{URL: wsURL(ts), ReconnectDelay: 10 * time.Millisecond})
	var states stateLog
	c.OnState(states.add)
	c.Start()
	defer c.Close()

	require.Eventually(t, func() bool { return c.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Emit("bye", nil))
	require.Eventually(t, func() bool { return conns.Load() == 2 && c.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	got := states.get()
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, []State{StateConnected, StateDisconnected, StateConnected}, got[:3])
}

func TestClient_RequestFailsOnDisconnect(t *testing.T) {
	block := make(chan struct{})
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// read one frame, then drop without answering
		_, _, _ = ws.ReadMessage()
		_ = ws.Close()
		<-block
	}))
	defer ts.Close()
	defer close(block)

	c := NewClient(Options{URL: wsURL(ts), ReconnectDelay: time.Hour})
	c.Start()
	defer c.Close()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	_, err := c.Request(context.Background(), "canvas:join", nil)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestPipe_RecordsAndResponds(t *testing.T) {
	p := NewPipe()
	p.Respond("canvas:join", func(data json.RawMessage) (interface{}, error) {
		return map[string]bool{"ok": true}, nil
	})
	raw, err := p.Request(context.Background(), "canvas:join", map[string]string{"canvasRoomId": "c1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	_, err = p.Request(context.Background(), "nobody", nil)
	assert.ErrorIs(t, err, ErrNoResponder)

	var got []string
	off := p.On("message", func(data json.RawMessage) { got = append(got, string(data)) })
	require.NoError(t, p.Deliver("message", 1))
	off()
	require.NoError(t, p.Deliver("message", 2))
	assert.Equal(t, []string{"1"}, got)
	assert.Equal(t, 0, p.Listeners())

	require.NoError(t, p.Emit("send", map[string]string{"text": "hi"}))
	assert.Len(t, p.Emitted("send"), 1)
	p.Reset()
	assert.Empty(t, p.Emitted())
}
