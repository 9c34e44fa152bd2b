package session

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-room/internal/config"
	"github.com/rudransh-shrivastava/peer-room/internal/negotiation"
)

// newPeerConnection is the negotiation machine's factory. It runs on the
// dispatcher, so it may touch session state directly.
func (s *Session) newPeerConnection(role negotiation.Role) (negotiation.PeerConnection, error) {
	pc, err := s.api.NewPeerConnection(s.cfg.WebRTC.Configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	s.pcGen++
	gen, pcGen := s.gen, s.pcGen
	current := func() bool { return gen == s.gen && pcGen == s.pcGen }

	s.pc = pc
	s.channel.Reset()
	s.channel.Detach()
	s.agg.SessionStarted()

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.post(func() {
			if !current() {
				return
			}
			s.log.Infof("Peer connection state has changed: %s", st.String())
			s.agg.PeerState(st)
			if st == webrtc.PeerConnectionStateFailed {
				s.machine.Fail(fmt.Errorf("peer connection failed"))
			}
		})
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		s.post(func() {
			if !current() {
				return
			}
			if err := s.machine.SendLocalCandidate(init); err != nil {
				s.log.Warnf("Failed to send ICE candidate: %v", err)
			}
		})
	})

	setupDataChannel := func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			s.post(func() {
				if !current() {
					return
				}
				s.log.Debugf("Data channel '%s'-'%d' open", dc.Label(), idOf(dc))
				s.channel.Attach(dc)
				s.agg.ChannelOpen()
			})
		})

		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			s.post(func() {
				if current() {
					s.onChannelMessage(msg)
				}
			})
		})

		dc.OnError(func(err error) {
			s.log.Errorf("Data channel error: %v", err)
		})

		dc.OnClose(func() {
			s.post(func() {
				if !current() {
					return
				}
				s.log.Debugf("Data channel '%s'-'%d' closed", dc.Label(), idOf(dc))
				s.channel.Detach()
				s.agg.ChannelClosed()
			})
		})
	}

	if role == negotiation.RoleOfferer {
		s.log.Debug("Creating data channel as we are the offerer")
		dc, err := pc.CreateDataChannel(config.DataChannelLabel, config.DefaultDataChannelConfig())
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("failed to create data channel: %w", err)
		}
		setupDataChannel(dc)
	} else {
		s.log.Debug("Waiting for data channel as the other peer is the offerer")
		pc.OnDataChannel(setupDataChannel)
	}

	return pc, nil
}

func idOf(dc *webrtc.DataChannel) uint16 {
	if id := dc.ID(); id != nil {
		return *id
	}
	return 0
}
