// Package status folds relay and peer connection events into the single
// connectivity value a user sees.
package status

import (
	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-room/internal/signaling"
)

type Status int

const (
	Initializing Status = iota
	ConnectingToRelay
	WaitingForPeer
	Negotiating
	Connected
	Disconnected
	Failed
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case ConnectingToRelay:
		return "Connecting to relay"
	case WaitingForPeer:
		return "Waiting for peer"
	case Negotiating:
		return "Negotiating"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Aggregator is owned by the session dispatcher and is not safe for
// concurrent use.
type Aggregator struct {
	relay       signaling.State
	hasSession  bool
	channelOpen bool
	everOpen    bool
	// latched holds Disconnected or Failed once the peer link drops, until
	// the next negotiation session starts.
	latched  *Status
	current  Status
	onChange func(Status)
}

func NewAggregator(onChange func(Status)) *Aggregator {
	return &Aggregator{current: Initializing, onChange: onChange}
}

func (a *Aggregator) Current() Status {
	return a.current
}

// Reset returns to Initializing for a new room connection.
func (a *Aggregator) Reset() {
	a.relay = signaling.StateIdle
	a.hasSession = false
	a.channelOpen = false
	a.everOpen = false
	a.latched = nil
	a.update()
}

func (a *Aggregator) SetRelay(s signaling.State) {
	a.relay = s
	a.update()
}

// SessionStarted marks a fresh negotiation session and clears any latch from
// the previous one.
func (a *Aggregator) SessionStarted() {
	a.hasSession = true
	a.channelOpen = false
	a.everOpen = false
	a.latched = nil
	a.update()
}

func (a *Aggregator) SessionEnded() {
	a.hasSession = false
	a.channelOpen = false
	a.everOpen = false
	a.latched = nil
	a.update()
}

func (a *Aggregator) PeerState(s webrtc.PeerConnectionState) {
	if !a.hasSession {
		return
	}
	switch s {
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		a.latch(Disconnected)
	case webrtc.PeerConnectionStateFailed:
		a.latch(Failed)
	}
	a.update()
}

func (a *Aggregator) ChannelOpen() {
	if !a.hasSession {
		return
	}
	a.channelOpen = true
	a.everOpen = true
	a.update()
}

func (a *Aggregator) ChannelClosed() {
	if a.everOpen {
		a.latch(Disconnected)
	}
	a.channelOpen = false
	a.update()
}

// latch keeps the first drop reason; a later Disconnected does not hide a
// Failed.
func (a *Aggregator) latch(s Status) {
	if a.latched != nil && *a.latched == Failed {
		return
	}
	a.latched = &s
}

func (a *Aggregator) compute() Status {
	if a.latched != nil {
		return *a.latched
	}
	if a.hasSession {
		if a.channelOpen {
			return Connected
		}
		return Negotiating
	}
	switch a.relay {
	case signaling.StateConnecting:
		return ConnectingToRelay
	case signaling.StateOpen:
		return WaitingForPeer
	case signaling.StateFailed:
		return Failed
	case signaling.StateClosed:
		return Disconnected
	default:
		return Initializing
	}
}

func (a *Aggregator) update() {
	next := a.compute()
	if next == a.current {
		return
	}
	a.current = next
	if a.onChange != nil {
		a.onChange(next)
	}
}
