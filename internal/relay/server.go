package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rudransh-shrivastava/peer-room/internal/logger"
	"github.com/sirupsen/logrus"
)

const DefaultMaxPeers = 2

type Config struct {
	Addr     string
	MaxPeers int
	Presence Presence
	Logger   *logrus.Logger
}

type Server struct {
	config   Config
	logger   *logrus.Logger
	hub      *Hub
	registry *prometheus.Registry
	engine   *gin.Engine
	upgrader websocket.Upgrader
	listener net.Listener
	http     *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = DefaultMaxPeers
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	s := &Server{
		config:   cfg,
		logger:   log,
		hub:      NewHub(cfg.MaxPeers, cfg.Presence, newMetrics(registry), log),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		listener: listener,
	}
	s.engine = s.routes()
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/ws/:roomID", s.handleWebSocket)
	r.GET("/health", s.handleHealth)
	r.GET("/rooms/:roomID", s.handleRoom)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("Request handled")
	}
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Relay server started on %s", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down relay server")
	err := s.http.Shutdown(ctx)
	s.hub.closeAll()
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rooms":  s.hub.RoomCount(),
	})
}

func (s *Server) handleRoom(c *gin.Context) {
	roomID := c.Param("roomID")
	n, err := s.hub.Occupancy(c.Request.Context(), roomID)
	if err != nil {
		s.logger.Errorf("Failed to count peers in room %s: %v", roomID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":  roomID,
		"peers": n,
		"full":  n >= int64(s.config.MaxPeers),
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	roomID := c.Param("roomID")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room id is required"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	p := &peer{
		id:     uuid.NewString(),
		roomID: roomID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}

	ctx := c.Request.Context()
	if err := s.hub.join(ctx, p); err != nil {
		s.logger.Warnf("Rejecting peer for room %s: %v", roomID, err)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(gin.H{"type": "error", "message": err.Error()})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}

	go p.writePump()
	p.readPump(ctx, s.hub)
}
