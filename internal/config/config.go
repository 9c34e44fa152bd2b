package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	DefaultRelayURL   = "ws://localhost:3000"
	DefaultRelayAddr  = ":3000"
	DefaultChunkSize  = 64 * 1024
	maxChunkSize      = 256 * 1024
	defaultPing       = 30 * time.Second
	defaultWriteWait  = 10 * time.Second
	defaultMaxPeers   = 2
	defaultLogLevel   = "info"
	defaultLogFormat  = "pretty"
	defaultDownloadTo = "downloads"
)

type Config struct {
	Relay     RelayConfig
	WebRTC    WebRTCConfig
	Transfer  TransferConfig
	Signaling SignalingConfig
	Log       LogConfig
	HistoryDB string
}

type RelayConfig struct {
	URL           string
	Addr          string
	MaxPeers      int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type WebRTCConfig struct {
	STUNServers []string
}

type TransferConfig struct {
	ChunkSize       int
	SequencedChunks bool
	DownloadDir     string
}

type SignalingConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Relay: RelayConfig{
			URL:           getEnv("PEER_ROOM_RELAY_URL", DefaultRelayURL),
			Addr:          getEnv("RELAY_ADDR", DefaultRelayAddr),
			MaxPeers:      cast.ToInt(getEnv("RELAY_MAX_PEERS", cast.ToString(defaultMaxPeers))),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       cast.ToInt(getEnv("REDIS_DB", "0")),
		},
		WebRTC: WebRTCConfig{
			STUNServers: splitList(getEnv("STUN_SERVERS", strings.Join(defaultSTUNServers, ","))),
		},
		Transfer: TransferConfig{
			ChunkSize:       cast.ToInt(getEnv("CHUNK_SIZE", cast.ToString(DefaultChunkSize))),
			SequencedChunks: cast.ToBool(getEnv("SEQUENCED_CHUNKS", "false")),
			DownloadDir:     getEnv("DOWNLOAD_DIR", defaultDownloadTo),
		},
		Signaling: SignalingConfig{
			PingInterval: cast.ToDuration(getEnv("SIGNALING_PING_INTERVAL", defaultPing.String())),
			WriteTimeout: cast.ToDuration(getEnv("SIGNALING_WRITE_TIMEOUT", defaultWriteWait.String())),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", defaultLogLevel),
			Format: getEnv("LOG_FORMAT", defaultLogFormat),
			File:   getEnv("LOG_FILE", ""),
		},
		HistoryDB: getEnv("HISTORY_DB", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration Load produces with an empty environment.
func Default() *Config {
	return &Config{
		Relay:     RelayConfig{URL: DefaultRelayURL, Addr: DefaultRelayAddr, MaxPeers: defaultMaxPeers},
		WebRTC:    WebRTCConfig{STUNServers: append([]string(nil), defaultSTUNServers...)},
		Transfer:  TransferConfig{ChunkSize: DefaultChunkSize, DownloadDir: defaultDownloadTo},
		Signaling: SignalingConfig{PingInterval: defaultPing, WriteTimeout: defaultWriteWait},
		Log:       LogConfig{Level: defaultLogLevel, Format: defaultLogFormat},
	}
}

func (c *Config) Validate() error {
	if c.Transfer.ChunkSize <= 0 || c.Transfer.ChunkSize > maxChunkSize {
		return fmt.Errorf("chunk size must be between 1 and %d, got %d", maxChunkSize, c.Transfer.ChunkSize)
	}
	if c.Relay.MaxPeers < 2 {
		return fmt.Errorf("relay max peers must be at least 2, got %d", c.Relay.MaxPeers)
	}
	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling ping interval must be positive")
	}
	if c.Signaling.WriteTimeout <= 0 {
		return fmt.Errorf("signaling write timeout must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
