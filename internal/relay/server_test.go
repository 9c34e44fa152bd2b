package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peer-room/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	cfg.Addr = "127.0.0.1:0"
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func dial(t *testing.T, srv *Server, roomID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws/"+roomID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitPeers(t *testing.T, srv *Server, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.Hub().PeerCount(roomID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestRelayForwardsVerbatim(t *testing.T) {
	srv := startServer(t, Config{})

	a := dial(t, srv, "room1")
	b := dial(t, srv, "room1")
	waitPeers(t, srv, "room1", 2)

	frame := `{"type":"offer","data":{"type":"offer","sdp":"v=0"}}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(frame)))
	assert.Equal(t, frame, readFrame(t, b))

	// Frames the relay does not understand still go through.
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "not json", readFrame(t, a))
}

func TestRelayIsolatesRooms(t *testing.T) {
	srv := startServer(t, Config{})

	a := dial(t, srv, "room1")
	b := dial(t, srv, "room2")
	waitPeers(t, srv, "room1", 1)
	waitPeers(t, srv, "room2", 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"answer"}`)))

	_ = b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := b.ReadMessage()
	assert.Error(t, err)
}

func TestRelayRoomFull(t *testing.T) {
	srv := startServer(t, Config{})

	dial(t, srv, "room1")
	dial(t, srv, "room1")
	waitPeers(t, srv, "room1", 2)

	third := dial(t, srv, "room1")
	var frame struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFrame(t, third)), &frame))
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "Room full", frame.Message)

	_ = third.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := third.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 2, srv.Hub().PeerCount("room1"))
}

func TestRelayFreesSlotOnLeave(t *testing.T) {
	presence := NewMemoryPresence()
	srv := startServer(t, Config{Presence: presence})

	a := dial(t, srv, "room1")
	dial(t, srv, "room1")
	waitPeers(t, srv, "room1", 2)

	n, err := presence.Count(context.Background(), "room1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, a.Close())
	waitPeers(t, srv, "room1", 1)

	dial(t, srv, "room1")
	waitPeers(t, srv, "room1", 2)
}

func TestRelayRemovesEmptyRoom(t *testing.T) {
	srv := startServer(t, Config{})

	a := dial(t, srv, "room1")
	waitPeers(t, srv, "room1", 1)
	assert.Equal(t, 1, srv.Hub().RoomCount())

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return srv.Hub().RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelayHealth(t *testing.T) {
	srv := startServer(t, Config{})

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func getRoom(t *testing.T, srv *Server, roomID string) map[string]any {
	t.Helper()
	resp, err := http.Get("http://" + srv.Addr() + "/rooms/" + roomID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestRelayRoomOccupancy(t *testing.T) {
	srv := startServer(t, Config{})

	body := getRoom(t, srv, "room1")
	assert.Equal(t, "room1", body["room"])
	assert.Equal(t, float64(0), body["peers"])
	assert.Equal(t, false, body["full"])

	dial(t, srv, "room1")
	dial(t, srv, "room1")
	waitPeers(t, srv, "room1", 2)

	body = getRoom(t, srv, "room1")
	assert.Equal(t, float64(2), body["peers"])
	assert.Equal(t, true, body["full"])
}

type brokenPresence struct{ *MemoryPresence }

func (brokenPresence) Count(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRelayRoomOccupancyPresenceDown(t *testing.T) {
	srv := startServer(t, Config{Presence: brokenPresence{NewMemoryPresence()}})

	resp, err := http.Get("http://" + srv.Addr() + "/rooms/room1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRelayMetrics(t *testing.T) {
	srv := startServer(t, Config{})

	a := dial(t, srv, "room1")
	b := dial(t, srv, "room1")
	waitPeers(t, srv, "room1", 2)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	readFrame(t, b)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.True(t, strings.Contains(body, "peer_room_relay_peers 2"), body)
	assert.True(t, strings.Contains(body, "peer_room_relay_frames_forwarded_total 1"), body)
}

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()

	require.NoError(t, p.Join(ctx, "r", "a"))
	require.NoError(t, p.Join(ctx, "r", "b"))
	require.NoError(t, p.Join(ctx, "r", "a"))

	n, err := p.Count(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, p.Leave(ctx, "r", "a"))
	require.NoError(t, p.Leave(ctx, "r", "b"))
	n, err = p.Count(ctx, "r")
	require.NoError(t, err)
	assert.Zero(t, n)
}
