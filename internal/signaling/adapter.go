// Package signaling carries offer, answer, candidate and file-meta messages
// between the two peers of a room over the relay's websocket.
package signaling

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/protocol"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Handler receives everything the adapter observes. Callbacks run on the
// adapter's own goroutines and must not block.
type Handler struct {
	OnState   func(State)
	OnMessage func(protocol.Envelope)
	OnError   func(error)
}

type Options struct {
	RelayURL     string
	PingInterval time.Duration
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
	Logger       *logrus.Logger
}

// Adapter owns one relay connection. Once closed or failed it cannot be
// reopened; create a new one.
type Adapter struct {
	opts    Options
	handler Handler
	codec   *protocol.Codec
	logger  *logrus.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func NewAdapter(opts Options, handler Handler) *Adapter {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Adapter{
		opts:    opts,
		handler: handler,
		codec:   protocol.NewCodec(),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// RoomURL joins the relay base URL and the room id into the websocket
// endpoint.
func RoomURL(base, roomID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(roomID)
	return u.String(), nil
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Open dials the relay for roomID and starts reading frames.
func (a *Adapter) Open(ctx context.Context, roomID string) error {
	a.mu.Lock()
	if a.state != StateIdle {
		state := a.state
		a.mu.Unlock()
		return errs.New(errs.CodeInvalidState, "open called in state %s", state)
	}
	a.mu.Unlock()
	a.setState(StateConnecting)

	target, err := RoomURL(a.opts.RelayURL, roomID)
	if err != nil {
		a.setState(StateFailed)
		return errs.Wrap(errs.CodeTransportUnavailable, err, "invalid relay url %q", a.opts.RelayURL)
	}

	a.logger.Infof("Connecting to relay %s", target)
	conn, resp, err := a.opts.Dialer.DialContext(ctx, target, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		a.logger.Warnf("Failed to connect to relay: %v", err)
		a.setState(StateFailed)
		return errs.Wrap(errs.CodeTransportUnavailable, err, "dialing relay")
	}

	a.mu.Lock()
	if a.state != StateConnecting {
		// Closed while dialing.
		a.mu.Unlock()
		_ = conn.Close()
		return errs.New(errs.CodeTransportUnavailable, "adapter closed while connecting")
	}
	a.conn = conn
	a.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(2 * a.opts.PingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * a.opts.PingInterval))
	})

	a.setState(StateOpen)
	go a.readPump(conn)
	go a.pingLoop(conn)
	return nil
}

// Send transmits one message. While the adapter is not open the message is
// dropped and ErrSendDropped returned.
func (a *Adapter) Send(t protocol.MessageType, payload any) error {
	a.mu.Lock()
	state, conn := a.state, a.conn
	a.mu.Unlock()

	if state != StateOpen {
		a.logger.Warnf("Dropping %s message, relay is %s", t, state)
		return errs.New(errs.CodeSendDropped, "relay is %s", state)
	}

	data, err := a.codec.EncodeToBytes(t, payload)
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		a.logger.Warnf("Failed to write %s message: %v", t, err)
		a.fail(err)
		return errs.Wrap(errs.CodeSendDropped, err, "writing %s", t)
	}
	a.logger.Debugf("Sent %s message (%d bytes)", t, len(data))
	return nil
}

// Close tears down the relay connection. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.state.terminal() {
		a.mu.Unlock()
		return nil
	}
	conn := a.conn
	a.mu.Unlock()

	a.setState(StateClosed)
	if conn == nil {
		return nil
	}

	a.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(a.opts.WriteTimeout))
	a.writeMu.Unlock()
	return conn.Close()
}

func (a *Adapter) readPump(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if a.State() == StateOpen {
				a.logger.Warnf("Relay connection lost: %v", err)
			}
			a.fail(err)
			return
		}
		if kind != websocket.TextMessage {
			a.logger.Debugf("Ignoring non-text relay frame")
			continue
		}

		env, err := a.codec.DecodeFromBytes(data)
		if err != nil {
			a.logger.Warnf("Malformed relay frame: %v", err)
			if a.handler.OnError != nil {
				a.handler.OnError(err)
			}
			continue
		}

		if env.Type == protocol.MsgRelayError {
			a.logger.Errorf("Relay rejected connection: %s", env.Message)
			rejected := errs.New(errs.CodeTransportUnavailable, "relay rejected connection: %s", env.Message)
			if a.handler.OnError != nil {
				a.handler.OnError(rejected)
			}
			a.fail(rejected)
			_ = conn.Close()
			return
		}

		if a.handler.OnMessage != nil {
			a.handler.OnMessage(env)
		}
	}
}

func (a *Adapter) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(a.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(a.opts.WriteTimeout))
			a.writeMu.Unlock()
			if err != nil {
				a.fail(err)
				return
			}
		}
	}
}

// fail moves a live adapter to Failed. Terminal adapters are left alone, so
// read errors caused by Close do not turn into failures.
func (a *Adapter) fail(err error) {
	a.mu.Lock()
	if a.state.terminal() {
		a.mu.Unlock()
		return
	}
	conn := a.conn
	a.mu.Unlock()

	a.logger.Debugf("Relay adapter failed: %v", err)
	a.setState(StateFailed)
	if conn != nil {
		_ = conn.Close()
	}
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	if a.state == s || a.state.terminal() {
		a.mu.Unlock()
		return
	}
	a.state = s
	if s.terminal() {
		close(a.done)
	}
	a.mu.Unlock()

	a.logger.Debugf("Relay adapter state: %s", s)
	if a.handler.OnState != nil {
		a.handler.OnState(s)
	}
}
