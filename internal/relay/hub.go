// Package relay is a reference signaling relay: it fans each websocket frame
// out to the other participant of the same room, verbatim.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrRoomFull = errors.New("Room full")

type room struct {
	id    string
	peers map[*peer]struct{}
}

// Hub tracks rooms and their participants.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*room
	maxPeers int
	presence Presence
	metrics  *metrics
	logger   *logrus.Logger
}

func NewHub(maxPeers int, presence Presence, m *metrics, logger *logrus.Logger) *Hub {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	return &Hub{
		rooms:    make(map[string]*room),
		maxPeers: maxPeers,
		presence: presence,
		metrics:  m,
		logger:   logger,
	}
}

func (h *Hub) join(ctx context.Context, p *peer) error {
	h.mu.Lock()
	r, exists := h.rooms[p.roomID]
	if !exists {
		r = &room{id: p.roomID, peers: make(map[*peer]struct{})}
		h.rooms[p.roomID] = r
		h.logger.Infof("Created new room: %s", p.roomID)
	}
	if len(r.peers) >= h.maxPeers {
		if len(r.peers) == 0 {
			delete(h.rooms, p.roomID)
		}
		h.mu.Unlock()
		h.metrics.rejected.WithLabelValues("room_full").Inc()
		return ErrRoomFull
	}
	r.peers[p] = struct{}{}
	count := len(r.peers)
	h.metrics.peers.Inc()
	h.metrics.rooms.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	if err := h.presence.Join(ctx, p.roomID, p.id); err != nil {
		h.logger.Warnf("Failed to record presence for %s: %v", p.id, err)
	}
	h.logger.Infof("Peer %s joined room %s (%d/%d)", p.id, p.roomID, count, h.maxPeers)
	return nil
}

func (h *Hub) leave(ctx context.Context, p *peer) {
	h.mu.Lock()
	r, exists := h.rooms[p.roomID]
	if !exists {
		h.mu.Unlock()
		return
	}
	if _, ok := r.peers[p]; !ok {
		h.mu.Unlock()
		return
	}
	delete(r.peers, p)
	remaining := len(r.peers)
	if remaining == 0 {
		delete(h.rooms, p.roomID)
		h.logger.Infof("Removed empty room: %s", p.roomID)
	}
	h.metrics.peers.Dec()
	h.metrics.rooms.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	if err := h.presence.Leave(ctx, p.roomID, p.id); err != nil {
		h.logger.Warnf("Failed to clear presence for %s: %v", p.id, err)
	}
	h.logger.Infof("Peer %s left room %s, remaining: %d", p.id, p.roomID, remaining)
}

// forward queues msg for every other peer in the sender's room and returns
// how many peers it reached.
func (h *Hub) forward(from *peer, msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, exists := h.rooms[from.roomID]
	if !exists {
		return 0
	}

	sent := 0
	for p := range r.peers {
		if p == from {
			continue
		}
		select {
		case p.send <- msg:
			sent++
		default:
			h.logger.Warnf("Failed to relay message to peer %s, buffer full", p.id)
		}
	}
	h.metrics.frames.Add(float64(sent))
	return sent
}

// PeerCount returns the number of participants in roomID.
func (h *Hub) PeerCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.peers)
	}
	return 0
}

// Occupancy reports how many participants the presence store records for a
// room. With redis this covers every relay sharing the store.
func (h *Hub) Occupancy(ctx context.Context, roomID string) (int64, error) {
	return h.presence.Count(ctx, roomID)
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// closeAll drops every connection; their read pumps then leave the rooms.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.rooms {
		for p := range r.peers {
			_ = p.conn.Close()
		}
	}
}
