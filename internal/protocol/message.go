package protocol

import "encoding/json"

// Envelope is a relay frame. Data is carried verbatim.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// SessionDescription is the payload of offer and answer messages.
// TieBreak is only set on offers.
type SessionDescription struct {
	Type     string `json:"type"`
	SDP      string `json:"sdp"`
	TieBreak string `json:"tiebreak,omitempty"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type FileMeta struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"type"`
	Sequenced bool   `json:"sequenced,omitempty"`
}
