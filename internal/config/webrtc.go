package config

import "github.com/pion/webrtc/v3"

const (
	DataChannelLabel    = "data"
	DataChannelProtocol = "file-transfer"
)

var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

func DefaultSTUNConfig() webrtc.Configuration {
	return WebRTCConfig{STUNServers: defaultSTUNServers}.Configuration()
}

// Configuration builds the peer connection configuration. No servers means
// host candidates only, which is enough on a LAN or loopback.
func (c WebRTCConfig) Configuration() webrtc.Configuration {
	cfg := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
	if len(c.STUNServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{
			{URLs: append([]string(nil), c.STUNServers...)},
		}
	}
	return cfg
}

func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := DataChannelProtocol
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
