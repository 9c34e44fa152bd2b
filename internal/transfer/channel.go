// Package transfer frames chat text and files onto the peer data channel
// and reassembles what arrives from the other side.
package transfer

import (
	"bytes"
	"encoding/json"

	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/protocol"
	"github.com/sirupsen/logrus"
)

// DataChannel is the subset of *webrtc.DataChannel the channel writes to.
type DataChannel interface {
	Send(data []byte) error
	SendText(s string) error
}

// MetaSender delivers file-meta messages out of band, over signaling.
type MetaSender interface {
	Send(t protocol.MessageType, payload any) error
}

type Sender int

const (
	Local Sender = iota
	Remote
)

func (s Sender) String() string {
	if s == Local {
		return "local"
	}
	return "remote"
}

type ChatEntry struct {
	Sender Sender
	Text   string
	// Raw holds the JSON payload when the frame was structured.
	Raw json.RawMessage
}

type File struct {
	Name     string
	MimeType string
	Data     []byte
}

type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

type Progress struct {
	Direction Direction
	Name      string
	Done      int64
	Total     int64
}

type Options struct {
	ChunkSize  int
	Sequenced  bool
	OnProgress func(Progress)
	Logger     *logrus.Logger
}

// Channel is not safe for concurrent use; the session dispatcher owns it.
type Channel struct {
	opts    Options
	logger  *logrus.Logger
	dc      DataChannel
	meta    MetaSender
	pending *descriptor
}

func NewChannel(meta MetaSender, opts Options) *Channel {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = protocol.ChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Channel{opts: opts, logger: logger, meta: meta}
}

// Attach binds the open data channel. Inbound transfer state survives
// re-attachment.
func (c *Channel) Attach(dc DataChannel) {
	c.dc = dc
}

func (c *Channel) Detach() {
	c.dc = nil
}

func (c *Channel) Attached() bool {
	return c.dc != nil
}

// Reset drops any partially received file.
func (c *Channel) Reset() {
	if c.pending != nil {
		c.logger.Infof("Discarding incomplete transfer of %s (%d/%d bytes)", c.pending.meta.Name, c.pending.received, c.pending.meta.Size)
	}
	c.pending = nil
}

// SendText sends a string as-is and any other value as JSON, in one frame.
func (c *Channel) SendText(payload any) error {
	if c.dc == nil {
		return errs.New(errs.CodeSendDropped, "data channel not open")
	}

	text, ok := payload.(string)
	if !ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		text = string(data)
	}
	return c.dc.SendText(text)
}

// SendFile announces the file over signaling and then streams it as binary
// chunks. A zero byte file sends the announcement only.
func (c *Channel) SendFile(data []byte, name, mimeType string) error {
	if c.dc == nil {
		return errs.New(errs.CodeSendDropped, "data channel not open")
	}

	meta := protocol.FileMeta{
		Name:      name,
		Size:      int64(len(data)),
		MimeType:  mimeType,
		Sequenced: c.opts.Sequenced,
	}
	if err := c.meta.Send(protocol.MsgFileMeta, meta); err != nil {
		return err
	}

	total := int64(len(data))
	var sent int64
	for i, chunk := range protocol.SplitChunks(data, c.opts.ChunkSize) {
		frame := chunk
		if c.opts.Sequenced {
			frame = protocol.EncodeSequencedChunk(uint64(i), chunk)
		}
		if err := c.dc.Send(frame); err != nil {
			c.logger.Warnf("Failed to send chunk %d of %s: %v", i, name, err)
			return errs.Wrap(errs.CodeSendDropped, err, "sending chunk %d of %s", i, name)
		}
		sent += int64(len(chunk))
		c.progress(Progress{Direction: Outbound, Name: name, Done: sent, Total: total})
	}

	c.logger.Infof("Sent %s (%d bytes)", name, total)
	return nil
}

// HandleText turns an inbound text frame into a chat entry. JSON strings and
// objects with a "text" field give their text; anything that is not JSON is
// shown literally.
func (c *Channel) HandleText(data []byte) ChatEntry {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return ChatEntry{Sender: Remote, Text: string(data)}
	}

	entry := ChatEntry{Sender: Remote, Text: string(data), Raw: json.RawMessage(bytes.Clone(data))}
	switch v := decoded.(type) {
	case string:
		entry.Text = v
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			entry.Text = text
		}
	}
	return entry
}
