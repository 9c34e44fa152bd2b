// Package session composes the relay adapter, the negotiation machine and
// the transfer channel into one observable room session.
//
// Every input (user commands, relay frames, peer connection and data channel
// callbacks) is turned into an event on a single ordered queue and handled by
// one dispatcher goroutine, so the state below needs no locking. Events carry
// the generation of the connection that produced them; events from a released
// connection are ignored.
package session

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-room/internal/config"
	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/logger"
	"github.com/rudransh-shrivastava/peer-room/internal/negotiation"
	"github.com/rudransh-shrivastava/peer-room/internal/signaling"
	"github.com/rudransh-shrivastava/peer-room/internal/status"
	"github.com/rudransh-shrivastava/peer-room/internal/transfer"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errs.New(errs.CodeInvalidState, "session closed")

type Options struct {
	Config *config.Config
	Logger *logrus.Logger
	// API builds peer connections. When nil one is created that routes pion
	// logs through Logger.
	API    *webrtc.API
	Dialer *websocket.Dialer
}

type Session struct {
	cfg    *config.Config
	logger *logrus.Logger
	api    *webrtc.API
	dialer *websocket.Dialer

	queue     *queue
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	statusCh   chan status.Status
	messagesCh chan transfer.ChatEntry
	filesCh    chan transfer.File
	progressCh chan transfer.Progress
	errorsCh   chan error

	// Owned by the dispatcher.
	gen     uint64
	pcGen   uint64
	roomID  string
	log     *logrus.Entry
	adapter *signaling.Adapter
	machine *negotiation.Machine
	channel *transfer.Channel
	pc      *webrtc.PeerConnection
	agg     *status.Aggregator
}

func New(opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewLogger()
	}
	api := opts.API
	if api == nil {
		se := webrtc.SettingEngine{LoggerFactory: logger.NewPionFactory(l)}
		api = webrtc.NewAPI(webrtc.WithSettingEngine(se))
	}

	s := &Session{
		cfg:        cfg,
		logger:     l,
		api:        api,
		dialer:     opts.Dialer,
		queue:      newQueue(),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		statusCh:   make(chan status.Status, 32),
		messagesCh: make(chan transfer.ChatEntry, 256),
		filesCh:    make(chan transfer.File, 16),
		progressCh: make(chan transfer.Progress, 256),
		errorsCh:   make(chan error, 64),
		log:        logrus.NewEntry(l),
	}
	s.agg = status.NewAggregator(func(st status.Status) {
		s.log.Infof("Status: %s", st)
		emit(s, s.statusCh, st, "status")
	})
	emit(s, s.statusCh, s.agg.Current(), "status")

	go s.run()
	return s
}

// Status, Messages, Files, Progress and Errors stay valid across Leave and
// Connect; they are closed only by Close.
func (s *Session) Status() <-chan status.Status { return s.statusCh }
func (s *Session) Messages() <-chan transfer.ChatEntry { return s.messagesCh }
func (s *Session) Files() <-chan transfer.File { return s.filesCh }
func (s *Session) Progress() <-chan transfer.Progress { return s.progressCh }
func (s *Session) Errors() <-chan error { return s.errorsCh }

// Connect joins roomID on the relay, first releasing any previous room.
// It returns once the relay connection is open or has failed.
func (s *Session) Connect(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errs.New(errs.CodeInvalidState, "room id is required")
	}

	var adapter *signaling.Adapter
	err := s.do(func() error {
		adapter = s.startRoom(roomID)
		return nil
	})
	if err != nil {
		return err
	}
	return adapter.Open(ctx, roomID)
}

// Initiate starts negotiation as the offering side.
func (s *Session) Initiate() error {
	return s.do(s.initiate)
}

// SendText sends a chat payload over the direct channel. Strings go as-is,
// other values as JSON.
func (s *Session) SendText(payload any) error {
	return s.do(func() error {
		if err := s.requireConnected(); err != nil {
			return err
		}
		return s.channel.SendText(payload)
	})
}

// SendFile announces the file over the relay and streams it over the direct
// channel.
func (s *Session) SendFile(data []byte, name, mimeType string) error {
	return s.do(func() error {
		if err := s.requireConnected(); err != nil {
			return err
		}
		return s.channel.SendFile(data, name, mimeType)
	})
}

// Leave closes the direct connection and the relay link. The session can
// Connect again afterwards.
func (s *Session) Leave() error {
	return s.do(func() error {
		s.teardown()
		return nil
	})
}

// CurrentStatus returns the latest aggregated status.
func (s *Session) CurrentStatus() status.Status {
	var st status.Status
	if err := s.do(func() error {
		st = s.agg.Current()
		return nil
	}); err != nil {
		return status.Disconnected
	}
	return st
}

// Close leaves the room, stops the dispatcher and closes the output streams.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.Leave()
		close(s.done)
		<-s.stopped
		s.queue.close()

		close(s.statusCh)
		close(s.messagesCh)
		close(s.filesCh)
		close(s.progressCh)
		close(s.errorsCh)
	})
	return nil
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case <-s.queue.notify:
			for _, ev := range s.queue.drain() {
				ev()
			}
		}
	}
}

func (s *Session) post(ev func()) {
	s.queue.push(ev)
}

// do runs fn on the dispatcher and waits for its result.
func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)
	if !s.queue.push(func() { reply <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.stopped:
		return ErrClosed
	}
}

func emit[T any](s *Session, ch chan T, v T, what string) {
	select {
	case ch <- v:
	default:
		s.logger.Warnf("Dropping %s event, consumer is not keeping up", what)
	}
}
