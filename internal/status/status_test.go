package status

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-room/internal/signaling"
	"github.com/stretchr/testify/assert"
)

func newRecorded() (*Aggregator, *[]Status) {
	var seen []Status
	return NewAggregator(func(s Status) { seen = append(seen, s) }), &seen
}

func TestHappyPathProgression(t *testing.T) {
	a, seen := newRecorded()
	assert.Equal(t, Initializing, a.Current())

	a.SetRelay(signaling.StateConnecting)
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()
	a.PeerState(webrtc.PeerConnectionStateConnecting)
	a.PeerState(webrtc.PeerConnectionStateConnected)
	a.ChannelOpen()

	assert.Equal(t, []Status{ConnectingToRelay, WaitingForPeer, Negotiating, Connected}, *seen)
}

func TestConnectedSurvivesRelayLoss(t *testing.T) {
	a, _ := newRecorded()
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()
	a.ChannelOpen()

	a.SetRelay(signaling.StateFailed)

	assert.Equal(t, Connected, a.Current())
}

func TestNoRegressionToWaitingAfterConnected(t *testing.T) {
	a, seen := newRecorded()
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()
	a.ChannelOpen()

	a.ChannelClosed()
	a.SetRelay(signaling.StateOpen)
	a.ChannelOpen()
	a.PeerState(webrtc.PeerConnectionStateConnected)

	assert.Equal(t, Disconnected, a.Current())
	for i, s := range *seen {
		if s == Connected {
			assert.NotContains(t, (*seen)[i:], WaitingForPeer)
		}
	}
}

func TestFailedOverridesStaleConnected(t *testing.T) {
	a, _ := newRecorded()
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()

	a.PeerState(webrtc.PeerConnectionStateFailed)
	a.ChannelOpen()
	a.PeerState(webrtc.PeerConnectionStateDisconnected)

	assert.Equal(t, Failed, a.Current())
}

func TestPeerDisconnectLatches(t *testing.T) {
	a, _ := newRecorded()
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()
	a.ChannelOpen()

	a.PeerState(webrtc.PeerConnectionStateDisconnected)
	a.PeerState(webrtc.PeerConnectionStateConnected)

	assert.Equal(t, Disconnected, a.Current())
}

func TestNewSessionClearsLatch(t *testing.T) {
	a, _ := newRecorded()
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()
	a.PeerState(webrtc.PeerConnectionStateClosed)
	assert.Equal(t, Disconnected, a.Current())

	a.SessionStarted()
	assert.Equal(t, Negotiating, a.Current())
}

func TestChannelCloseBeforeOpenIsIgnored(t *testing.T) {
	a, _ := newRecorded()
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()

	a.ChannelClosed()

	assert.Equal(t, Negotiating, a.Current())
}

func TestRelayOnlyStates(t *testing.T) {
	tests := []struct {
		relay    signaling.State
		expected Status
	}{
		{signaling.StateIdle, Initializing},
		{signaling.StateConnecting, ConnectingToRelay},
		{signaling.StateOpen, WaitingForPeer},
		{signaling.StateFailed, Failed},
		{signaling.StateClosed, Disconnected},
	}

	for _, tt := range tests {
		a := NewAggregator(nil)
		a.SetRelay(tt.relay)
		if a.Current() != tt.expected {
			t.Errorf("relay %s: expected %s, got %s", tt.relay, tt.expected, a.Current())
		}
	}
}

func TestOnlyChangesReported(t *testing.T) {
	a, seen := newRecorded()

	a.SetRelay(signaling.StateOpen)
	a.SetRelay(signaling.StateOpen)
	a.PeerState(webrtc.PeerConnectionStateConnected)

	assert.Equal(t, []Status{WaitingForPeer}, *seen)
}

func TestResetAfterLeave(t *testing.T) {
	a, _ := newRecorded()
	a.SetRelay(signaling.StateOpen)
	a.SessionStarted()
	a.ChannelOpen()

	a.SessionEnded()
	a.SetRelay(signaling.StateClosed)
	assert.Equal(t, Disconnected, a.Current())

	a.Reset()
	assert.Equal(t, Initializing, a.Current())
}
