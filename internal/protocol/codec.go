package protocol

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rudransh-shrivastava/peer-room/internal/errs"
)

// Codec encodes and strictly decodes relay frames.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(w io.Writer, t MessageType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(Envelope{Type: t, Data: data})
}

func (c *Codec) Decode(r io.Reader) (Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Envelope{}, errs.Wrap(errs.CodeSignalMalformed, err, "decoding frame")
	}
	if env.Type == MsgRelayError {
		return env, nil
	}
	if !env.Type.Peer() {
		return Envelope{}, errs.New(errs.CodeSignalMalformed, "unknown message type %q", env.Type)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return Envelope{}, errs.New(errs.CodeSignalMalformed, "%s message has no data", env.Type)
	}
	return env, nil
}

func (c *Codec) EncodeToBytes(t MessageType, payload any) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, t, payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (c *Codec) DecodeFromBytes(data []byte) (Envelope, error) {
	return c.Decode(bytes.NewReader(data))
}

// DecodeDescription reads an offer or answer payload. A bare JSON string is
// accepted as raw SDP.
func DecodeDescription(env Envelope) (SessionDescription, error) {
	var desc SessionDescription
	if err := json.Unmarshal(env.Data, &desc); err != nil {
		var raw string
		if json.Unmarshal(env.Data, &raw) != nil {
			return SessionDescription{}, errs.Wrap(errs.CodeSignalMalformed, err, "decoding %s", env.Type)
		}
		desc = SessionDescription{SDP: raw}
	}
	if desc.Type == "" {
		desc.Type = string(env.Type)
	}
	if desc.Type != string(env.Type) {
		return SessionDescription{}, errs.New(errs.CodeSignalMalformed, "%s message carries a %q description", env.Type, desc.Type)
	}
	if desc.SDP == "" {
		return SessionDescription{}, errs.New(errs.CodeSignalMalformed, "%s message has empty sdp", env.Type)
	}
	return desc, nil
}

func DecodeCandidate(env Envelope) (ICECandidate, error) {
	var c ICECandidate
	if err := json.Unmarshal(env.Data, &c); err != nil {
		return ICECandidate{}, errs.Wrap(errs.CodeSignalMalformed, err, "decoding ice candidate")
	}
	return c, nil
}

func DecodeFileMeta(env Envelope) (FileMeta, error) {
	var m FileMeta
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return FileMeta{}, errs.Wrap(errs.CodeSignalMalformed, err, "decoding file meta")
	}
	if m.Size < 0 {
		return FileMeta{}, errs.New(errs.CodeSignalMalformed, "file meta declares negative size %d", m.Size)
	}
	return m, nil
}
