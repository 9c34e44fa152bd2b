package protocol

const (
	ChunkSize = 64 * 1024

	// Binary chunk frame fields when sequencing is enabled.
	fieldChunkIndex   = 1
	fieldChunkPayload = 2
)

type MessageType string

const (
	MsgOffer        MessageType = "offer"
	MsgAnswer       MessageType = "answer"
	MsgICECandidate MessageType = "ice-candidate"
	MsgFileMeta     MessageType = "file-meta"

	// MsgRelayError is only ever sent by the relay, never by a peer.
	MsgRelayError MessageType = "error"
)

func (t MessageType) String() string {
	return string(t)
}

// Peer reports whether t is one of the four peer-to-peer signaling types.
func (t MessageType) Peer() bool {
	switch t {
	case MsgOffer, MsgAnswer, MsgICECandidate, MsgFileMeta:
		return true
	default:
		return false
	}
}
