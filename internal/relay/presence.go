package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 24 * time.Hour

// Presence records which peers are in which room, so that several relay
// instances or external tooling can observe occupancy.
type Presence interface {
	Join(ctx context.Context, roomID, peerID string) error
	Leave(ctx context.Context, roomID, peerID string) error
	Count(ctx context.Context, roomID string) (int64, error)
}

type MemoryPresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: make(map[string]map[string]struct{})}
}

func (m *MemoryPresence) Join(_ context.Context, roomID, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers, ok := m.rooms[roomID]
	if !ok {
		peers = make(map[string]struct{})
		m.rooms[roomID] = peers
	}
	peers[peerID] = struct{}{}
	return nil
}

func (m *MemoryPresence) Leave(_ context.Context, roomID, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if peers, ok := m.rooms[roomID]; ok {
		delete(peers, peerID)
		if len(peers) == 0 {
			delete(m.rooms, roomID)
		}
	}
	return nil
}

func (m *MemoryPresence) Count(_ context.Context, roomID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rooms[roomID])), nil
}

// RedisPresence keeps a set per room under room:<id>:peers.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

// DialRedis connects to addr and verifies the server answers.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func roomKey(roomID string) string {
	return fmt.Sprintf("room:%s:peers", roomID)
}

func (r *RedisPresence) Join(ctx context.Context, roomID, peerID string) error {
	key := roomKey(roomID)
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, peerID)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add peer to room: %w", err)
	}
	return nil
}

func (r *RedisPresence) Leave(ctx context.Context, roomID, peerID string) error {
	if err := r.client.SRem(ctx, roomKey(roomID), peerID).Err(); err != nil {
		return fmt.Errorf("failed to remove peer from room: %w", err)
	}
	return nil
}

func (r *RedisPresence) Count(ctx context.Context, roomID string) (int64, error) {
	n, err := r.client.SCard(ctx, roomKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count room peers: %w", err)
	}
	return n, nil
}
