package session

import (
	"errors"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/negotiation"
	"github.com/rudransh-shrivastava/peer-room/internal/protocol"
	"github.com/rudransh-shrivastava/peer-room/internal/signaling"
	"github.com/rudransh-shrivastava/peer-room/internal/status"
	"github.com/rudransh-shrivastava/peer-room/internal/transfer"
)

// startRoom releases the previous room and wires up a fresh adapter,
// machine and channel for roomID. The adapter is returned unopened.
func (s *Session) startRoom(roomID string) *signaling.Adapter {
	s.teardown()

	s.gen++
	gen := s.gen
	s.roomID = roomID
	s.log = s.logger.WithField("room", roomID)
	s.agg.Reset()

	s.adapter = signaling.NewAdapter(signaling.Options{
		RelayURL:     s.cfg.Relay.URL,
		PingInterval: s.cfg.Signaling.PingInterval,
		WriteTimeout: s.cfg.Signaling.WriteTimeout,
		Dialer:       s.dialer,
		Logger:       s.logger,
	}, signaling.Handler{
		OnState: func(st signaling.State) {
			s.post(func() {
				if gen == s.gen {
					s.onRelayState(st)
				}
			})
		},
		OnMessage: func(env protocol.Envelope) {
			s.post(func() {
				if gen == s.gen {
					s.onRelayMessage(env)
				}
			})
		},
		OnError: func(err error) {
			s.post(func() {
				if gen == s.gen {
					s.report(err)
				}
			})
		},
	})

	s.channel = transfer.NewChannel(s.adapter, transfer.Options{
		ChunkSize: s.cfg.Transfer.ChunkSize,
		Sequenced: s.cfg.Transfer.SequencedChunks,
		Logger:    s.logger,
		OnProgress: func(p transfer.Progress) {
			emit(s, s.progressCh, p, "progress")
		},
	})
	s.machine = s.newMachine()
	return s.adapter
}

func (s *Session) newMachine() *negotiation.Machine {
	return negotiation.NewMachine(negotiation.Options{
		NewPeerConnection: s.newPeerConnection,
		Signaler:          s.adapter,
		Logger:            s.logger,
	})
}

// teardown closes the direct connection and the relay link of the current
// room, if any. Callbacks still in flight are invalidated by the generation
// bump.
func (s *Session) teardown() {
	if s.adapter == nil {
		return
	}
	s.log.Infof("Leaving room")

	if err := s.machine.Close(); err != nil {
		s.log.Warnf("Failed to close peer connection: %v", err)
	}
	s.channel.Reset()
	s.channel.Detach()
	if err := s.adapter.Close(); err != nil {
		s.log.Warnf("Failed to close relay connection: %v", err)
	}

	s.agg.SetRelay(signaling.StateClosed)
	s.agg.SessionEnded()

	s.gen++
	s.pc = nil
	s.adapter = nil
	s.machine = nil
	s.channel = nil
}

func (s *Session) initiate() error {
	if s.adapter == nil {
		return errs.New(errs.CodeInvalidState, "not connected to a room")
	}
	s.renewIfPeerGone()

	err := s.machine.Initiate()
	if err != nil && s.machine.State() == negotiation.NoSession && s.pc != nil {
		// The offer never left; forget the connection it was made on.
		s.dropPeer()
	}
	s.checkMachine()
	return err
}

// dropPeer forgets the current peer connection so its late callbacks are
// ignored.
func (s *Session) dropPeer() {
	s.pcGen++
	s.pc = nil
	s.channel.Reset()
	s.channel.Detach()
	s.agg.SessionEnded()
}

func (s *Session) requireConnected() error {
	if s.adapter == nil || s.channel == nil || !s.channel.Attached() {
		return errs.New(errs.CodeSendDropped, "data channel not open")
	}
	if st := s.agg.Current(); st != status.Connected {
		return errs.New(errs.CodeSendDropped, "session is %s", st)
	}
	return nil
}

func (s *Session) onRelayState(st signaling.State) {
	s.agg.SetRelay(st)
	if st == signaling.StateFailed {
		s.report(errs.New(errs.CodeTransportUnavailable, "relay connection failed"))
	}
}

func (s *Session) onRelayMessage(env protocol.Envelope) {
	s.log.Debugf("Relay message: %s", env.Type)

	switch env.Type {
	case protocol.MsgOffer:
		desc, err := protocol.DecodeDescription(env)
		if err != nil {
			s.report(err)
			return
		}
		s.renewIfPeerGone()
		s.reportMachine(s.machine.HandleOffer(desc))

	case protocol.MsgAnswer:
		desc, err := protocol.DecodeDescription(env)
		if err != nil {
			s.report(err)
			return
		}
		s.reportMachine(s.machine.HandleAnswer(desc))

	case protocol.MsgICECandidate:
		c, err := protocol.DecodeCandidate(env)
		if err != nil {
			s.report(err)
			return
		}
		s.reportMachine(s.machine.HandleCandidate(c))

	case protocol.MsgFileMeta:
		meta, err := protocol.DecodeFileMeta(env)
		if err != nil {
			s.report(err)
			return
		}
		file, err := s.channel.HandleMeta(meta)
		if err != nil {
			s.report(err)
			return
		}
		if file != nil {
			s.deliverFile(*file)
		}
	}
}

func (s *Session) onChannelMessage(msg webrtc.DataChannelMessage) {
	if msg.IsString {
		entry := s.channel.HandleText(msg.Data)
		emit(s, s.messagesCh, entry, "message")
		return
	}

	file, err := s.channel.HandleBinary(msg.Data)
	if err != nil {
		s.report(err)
		return
	}
	if file != nil {
		s.deliverFile(*file)
	}
}

// deliverFile hands a completed file to the consumer. A file that does not
// fit is lost, so it is reported as an error rather than only logged.
func (s *Session) deliverFile(f transfer.File) {
	select {
	case s.filesCh <- f:
	default:
		s.report(errs.New(errs.CodeDeliveryDropped, "received %s (%d bytes) but the files channel is full", f.Name, len(f.Data)))
	}
}

// renewIfPeerGone replaces a dead negotiation session so that the peer can
// rejoin the room, or we can call again, without leaving.
func (s *Session) renewIfPeerGone() {
	dead := s.machine.State() == negotiation.Failed
	if s.machine.HasSession() {
		st := s.agg.Current()
		dead = dead || st == status.Disconnected || st == status.Failed
	}
	if !dead {
		return
	}

	s.log.Infof("Previous peer session is gone, starting over")
	_ = s.machine.Close()
	s.dropPeer()
	s.machine = s.newMachine()
}

func (s *Session) reportMachine(err error) {
	s.checkMachine()
	if err == nil {
		return
	}
	if errors.Is(err, errs.ErrInvalidState) {
		s.log.Warnf("Ignoring signaling message: %v", err)
		return
	}
	s.report(err)
}

// checkMachine reflects a failed negotiation in the status.
func (s *Session) checkMachine() {
	if s.machine.State() == negotiation.Failed {
		s.agg.PeerState(webrtc.PeerConnectionStateFailed)
	}
}

func (s *Session) report(err error) {
	switch errs.CodeOf(err) {
	case errs.CodeSignalMalformed:
		s.log.Warnf("Dropping malformed signal: %v", err)
	case errs.CodeProtocolDesync:
		s.log.Errorf("Transfer desync: %v", err)
	default:
		s.log.Errorf("Session error: %v", err)
	}
	emit(s, s.errorsCh, err, "error")
}
