// Package negotiation drives the offer/answer/candidate exchange for one
// peer connection, including simultaneous offers.
package negotiation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/protocol"
	"github.com/sirupsen/logrus"
)

type State int

const (
	NoSession State = iota
	OfferSent
	AnswerSent
	Negotiating
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case OfferSent:
		return "offer-sent"
	case AnswerSent:
		return "answer-sent"
	case Negotiating:
		return "negotiating"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Role int

const (
	RoleNone Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "none"
	}
}

// PeerConnection is the part of *webrtc.PeerConnection the machine drives.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	LocalDescription() *webrtc.SessionDescription
	Close() error
}

// Factory creates the peer connection for a role. For the offerer it is also
// expected to create the data channel before the offer is made.
type Factory func(role Role) (PeerConnection, error)

type Signaler interface {
	Send(t protocol.MessageType, payload any) error
}

type Options struct {
	NewPeerConnection Factory
	Signaler          Signaler
	Logger            *logrus.Logger
	// NewTieBreak overrides the random tie-break token, for tests.
	NewTieBreak func() string
}

// Machine is not safe for concurrent use; the session dispatcher owns it.
type Machine struct {
	opts   Options
	logger *logrus.Logger

	state    State
	role     Role
	pc       PeerConnection
	tieBreak string

	remoteSet bool
	// answered identifies the remote offer the current session answers.
	answered protocol.SessionDescription
	// pending holds remote candidates that arrived before there was a peer
	// connection with a remote description to add them to.
	pending []webrtc.ICECandidateInit
	remote  []webrtc.ICECandidateInit
}

func NewMachine(opts Options) *Machine {
	if opts.NewTieBreak == nil {
		opts.NewTieBreak = func() string { return uuid.NewString() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Machine{opts: opts, logger: logger}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Role() Role { return m.role }

func (m *Machine) TieBreak() string { return m.tieBreak }

// HasSession reports whether a peer connection currently exists.
func (m *Machine) HasSession() bool { return m.pc != nil }

// RemoteCandidates returns the candidates applied to the current session.
func (m *Machine) RemoteCandidates() []webrtc.ICECandidateInit {
	return append([]webrtc.ICECandidateInit(nil), m.remote...)
}

// Initiate starts a session as offerer and sends the offer.
func (m *Machine) Initiate() error {
	if m.state != NoSession {
		return errs.New(errs.CodeInvalidState, "initiate in state %s", m.state)
	}

	if err := m.newSession(RoleOfferer); err != nil {
		return m.fail(err)
	}

	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return m.fail(fmt.Errorf("failed to create offer: %w", err))
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return m.fail(fmt.Errorf("failed to set local description: %w", err))
	}

	payload := protocol.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP, TieBreak: m.tieBreak}
	if err := m.opts.Signaler.Send(protocol.MsgOffer, payload); err != nil {
		// Nobody saw the offer, so go back to where we were.
		m.release()
		m.state = NoSession
		return err
	}

	m.state = OfferSent
	m.logger.Infof("Offer sent, waiting for answer")
	return nil
}

// HandleOffer answers a remote offer. While our own offer is outstanding the
// lower tie-break token yields and becomes the answerer; the higher one sends
// its offer again, since the first copy may have reached nobody. Once a
// session is under way a repeat of the answered offer is ignored and any
// other offer means the peer started over, so the session is replaced.
func (m *Machine) HandleOffer(desc protocol.SessionDescription) error {
	switch m.state {
	case NoSession:
		if err := m.newSession(RoleAnswerer); err != nil {
			return m.fail(err)
		}
	case OfferSent:
		glare := m.logger.WithError(errs.New(errs.CodeNegotiationGlare, "ours %s, theirs %s", m.tieBreak, desc.TieBreak))
		if !m.yields(desc.TieBreak) {
			glare.Info("Glare: keeping our offer and sending it again")
			return m.resendOffer()
		}
		glare.Info("Glare: yielding to remote offer")
		if err := m.pc.Close(); err != nil {
			m.logger.Warnf("Failed to close discarded peer connection: %v", err)
		}
		m.pc = nil
		if err := m.newSession(RoleAnswerer); err != nil {
			return m.fail(err)
		}
	case AnswerSent, Negotiating:
		if m.repeatsAnswered(desc) {
			m.logger.Debugf("Ignoring repeated offer (tie-break %s)", desc.TieBreak)
			return nil
		}
		m.logger.Infof("New offer in state %s, peer started over; replacing the session", m.state)
		if err := m.release(); err != nil {
			m.logger.Warnf("Failed to close replaced peer connection: %v", err)
		}
		if err := m.newSession(RoleAnswerer); err != nil {
			return m.fail(err)
		}
	default:
		return errs.New(errs.CodeInvalidState, "offer in state %s", m.state)
	}

	m.answered = desc
	if err := m.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}); err != nil {
		return m.fail(err)
	}

	answer, err := m.pc.CreateAnswer(nil)
	if err != nil {
		return m.fail(fmt.Errorf("failed to create answer: %w", err))
	}
	if err := m.pc.SetLocalDescription(answer); err != nil {
		return m.fail(fmt.Errorf("failed to set local description: %w", err))
	}
	if err := m.opts.Signaler.Send(protocol.MsgAnswer, protocol.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}); err != nil {
		return m.fail(fmt.Errorf("failed to send answer: %w", err))
	}

	m.state = AnswerSent
	m.logger.Infof("Answer sent")
	return nil
}

// HandleAnswer completes an offer we sent. Connectivity is reported by the
// peer connection, not by this transition.
func (m *Machine) HandleAnswer(desc protocol.SessionDescription) error {
	if m.state != OfferSent {
		return errs.New(errs.CodeInvalidState, "answer in state %s", m.state)
	}
	if err := m.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: desc.SDP}); err != nil {
		return m.fail(err)
	}
	m.state = Negotiating
	m.logger.Infof("Answer applied, negotiating")
	return nil
}

// HandleCandidate applies a remote candidate, or holds it until a session
// with a remote description exists.
func (m *Machine) HandleCandidate(c protocol.ICECandidate) error {
	if m.state == Closed || m.state == Failed {
		return errs.New(errs.CodeInvalidState, "candidate in state %s", m.state)
	}

	init := ToICECandidateInit(c)
	if m.pc == nil || !m.remoteSet {
		m.pending = append(m.pending, init)
		m.logger.Debugf("Buffered remote candidate (%d pending)", len(m.pending))
		return nil
	}
	return m.addCandidate(init)
}

// SendLocalCandidate forwards a locally gathered candidate to the peer.
func (m *Machine) SendLocalCandidate(c webrtc.ICECandidateInit) error {
	if m.pc == nil {
		return errs.New(errs.CodeInvalidState, "local candidate in state %s", m.state)
	}
	return m.opts.Signaler.Send(protocol.MsgICECandidate, FromICECandidateInit(c))
}

// Close ends the session for good.
func (m *Machine) Close() error {
	if m.state == Closed {
		return nil
	}
	err := m.release()
	m.state = Closed
	return err
}

// Fail records a transport failure and releases the session.
func (m *Machine) Fail(cause error) {
	if m.state == Closed || m.state == Failed {
		return
	}
	_ = m.fail(cause)
}

func (m *Machine) newSession(role Role) error {
	pc, err := m.opts.NewPeerConnection(role)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	m.pc = pc
	m.role = role
	m.remoteSet = false
	m.remote = nil
	m.answered = protocol.SessionDescription{}
	m.tieBreak = m.opts.NewTieBreak()
	m.logger.Debugf("New %s session (tie-break %s)", role, m.tieBreak)
	return nil
}

func (m *Machine) setRemote(desc webrtc.SessionDescription) error {
	if err := m.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	m.remoteSet = true

	pending := m.pending
	m.pending = nil
	for _, c := range pending {
		if err := m.addCandidate(c); err != nil {
			m.logger.Warnf("Failed to apply buffered candidate: %v", err)
		}
	}
	return nil
}

func (m *Machine) addCandidate(c webrtc.ICECandidateInit) error {
	if err := m.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	m.remote = append(m.remote, c)
	return nil
}

// yields reports whether we give up our own offer. A peer that sent no token
// cannot resolve glare itself, so we always yield to it.
func (m *Machine) yields(remote string) bool {
	if remote == "" {
		return true
	}
	return m.tieBreak < remote
}

// resendOffer repeats our current offer, with the candidates gathered so far.
func (m *Machine) resendOffer() error {
	local := m.pc.LocalDescription()
	if local == nil {
		return errs.New(errs.CodeInvalidState, "no local offer to repeat")
	}
	payload := protocol.SessionDescription{Type: local.Type.String(), SDP: local.SDP, TieBreak: m.tieBreak}
	return m.opts.Signaler.Send(protocol.MsgOffer, payload)
}

// repeatsAnswered reports whether desc is the offer this session already
// answered. Peers without tie-break tokens never repeat an offer with a new
// body, so those are compared by SDP.
func (m *Machine) repeatsAnswered(desc protocol.SessionDescription) bool {
	if m.role != RoleAnswerer {
		return false
	}
	if desc.TieBreak != "" {
		return desc.TieBreak == m.answered.TieBreak
	}
	return desc.SDP == m.answered.SDP
}

func (m *Machine) fail(cause error) error {
	m.logger.Errorf("Negotiation failed: %v", cause)
	_ = m.release()
	m.state = Failed
	return cause
}

func (m *Machine) release() error {
	m.pending = nil
	m.remote = nil
	m.remoteSet = false
	m.role = RoleNone
	if m.pc == nil {
		return nil
	}
	pc := m.pc
	m.pc = nil
	return pc.Close()
}

func ToICECandidateInit(c protocol.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func FromICECandidateInit(c webrtc.ICECandidateInit) protocol.ICECandidate {
	return protocol.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
