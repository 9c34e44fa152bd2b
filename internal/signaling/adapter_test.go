package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/logger"
	"github.com/rudransh-shrivastava/peer-room/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	states   []State
	messages chan protocol.Envelope
	errors   chan error
	stateCh  chan State
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan protocol.Envelope, 16),
		errors:   make(chan error, 16),
		stateCh:  make(chan State, 16),
	}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnState: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
			r.stateCh <- s
		},
		OnMessage: func(env protocol.Envelope) { r.messages <- env },
		OnError:   func(err error) { r.errors <- err },
	}
}

func (r *recorder) waitState(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-r.stateCh:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

// relayStub upgrades every request and hands the server side of the
// connection to the test.
func relayStub(t *testing.T) (*httptest.Server, chan *websocket.Conn, chan string) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	paths := make(chan string, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		paths <- r.URL.Path
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns, paths
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestAdapter(relayURL string, h Handler) *Adapter {
	return NewAdapter(Options{
		RelayURL:     relayURL,
		PingInterval: time.Second,
		WriteTimeout: time.Second,
		Logger:       logger.Discard(),
	}, h)
}

func TestRoomURL(t *testing.T) {
	got, err := RoomURL("http://localhost:3000/", "my room")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/ws/my%20room", got)

	got, err = RoomURL("wss://relay.example", "abc")
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example/ws/abc", got)
}

func TestAdapterOpenSendReceive(t *testing.T) {
	srv, conns, paths := relayStub(t)
	rec := newRecorder()
	a := newTestAdapter(wsURL(srv), rec.handler())

	require.NoError(t, a.Open(context.Background(), "room-1"))
	defer func() { _ = a.Close() }()

	assert.Equal(t, "/ws/room-1", <-paths)
	server := <-conns
	defer func() { _ = server.Close() }()

	rec.waitState(t, StateOpen)
	assert.Equal(t, []State{StateConnecting, StateOpen}, rec.states)

	require.NoError(t, a.Send(protocol.MsgFileMeta, protocol.FileMeta{Name: "a.txt", Size: 1}))
	_, frame, err := server.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"file-meta","data":{"name":"a.txt","size":1,"type":""}}`, string(frame))

	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"answer","data":{"type":"answer","sdp":"v=0"}}`)))
	select {
	case env := <-rec.messages:
		assert.Equal(t, protocol.MsgAnswer, env.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestAdapterSendBeforeOpen(t *testing.T) {
	a := newTestAdapter("ws://127.0.0.1:1", Handler{})

	err := a.Send(protocol.MsgOffer, protocol.SessionDescription{Type: "offer", SDP: "v=0"})
	assert.True(t, errors.Is(err, errs.ErrSendDropped))
}

func TestAdapterMalformedFrameKeepsConnection(t *testing.T) {
	srv, conns, _ := relayStub(t)
	rec := newRecorder()
	a := newTestAdapter(wsURL(srv), rec.handler())

	require.NoError(t, a.Open(context.Background(), "room"))
	defer func() { _ = a.Close() }()
	server := <-conns
	defer func() { _ = server.Close() }()

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	select {
	case err := <-rec.errors:
		assert.True(t, errors.Is(err, errs.ErrSignalMalformed))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for parse error")
	}

	assert.Equal(t, StateOpen, a.State())
}

func TestAdapterDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	rec := newRecorder()
	a := newTestAdapter(wsURL(srv), rec.handler())

	err := a.Open(context.Background(), "room")
	assert.True(t, errors.Is(err, errs.ErrTransportUnavailable))
	assert.Equal(t, StateFailed, a.State())
	assert.Equal(t, []State{StateConnecting, StateFailed}, rec.states)
}

func TestAdapterRelayDropFails(t *testing.T) {
	srv, conns, _ := relayStub(t)
	rec := newRecorder()
	a := newTestAdapter(wsURL(srv), rec.handler())

	require.NoError(t, a.Open(context.Background(), "room"))
	server := <-conns
	require.NoError(t, server.Close())

	rec.waitState(t, StateFailed)
	assert.Equal(t, StateFailed, a.State())
}

func TestAdapterRoomFull(t *testing.T) {
	srv, conns, _ := relayStub(t)
	rec := newRecorder()
	a := newTestAdapter(wsURL(srv), rec.handler())

	require.NoError(t, a.Open(context.Background(), "room"))
	server := <-conns
	defer func() { _ = server.Close() }()

	require.NoError(t, server.WriteJSON(map[string]string{"type": "error", "message": "Room full"}))

	rec.waitState(t, StateFailed)
	err := <-rec.errors
	assert.True(t, errors.Is(err, errs.ErrTransportUnavailable))
	assert.Contains(t, err.Error(), "Room full")
}

func TestAdapterCloseIdempotent(t *testing.T) {
	srv, conns, _ := relayStub(t)
	rec := newRecorder()
	a := newTestAdapter(wsURL(srv), rec.handler())

	require.NoError(t, a.Open(context.Background(), "room"))
	server := <-conns
	defer func() { _ = server.Close() }()

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
	assert.Equal(t, StateClosed, a.State())

	err := a.Send(protocol.MsgOffer, protocol.SessionDescription{Type: "offer", SDP: "v=0"})
	assert.True(t, errors.Is(err, errs.ErrSendDropped))

	// Reading the close frame must not flip the adapter to failed.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateClosed, a.State())
}

func TestAdapterCannotReopen(t *testing.T) {
	a := newTestAdapter("ws://127.0.0.1:1", Handler{})
	_ = a.Close()

	err := a.Open(context.Background(), "room")
	assert.True(t, errors.Is(err, errs.ErrInvalidState))
}
