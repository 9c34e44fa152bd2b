package transfer

import (
	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/protocol"
)

type descriptor struct {
	meta      protocol.FileMeta
	received  int64
	chunks    [][]byte
	nextIndex uint64
}

// Pending returns the announced but incomplete inbound file, if any.
func (c *Channel) Pending() (protocol.FileMeta, int64, bool) {
	if c.pending == nil {
		return protocol.FileMeta{}, 0, false
	}
	return c.pending.meta, c.pending.received, true
}

// HandleMeta registers an inbound file announcement. A zero byte file
// completes at once and is returned.
func (c *Channel) HandleMeta(meta protocol.FileMeta) (*File, error) {
	if c.pending != nil {
		return nil, errs.New(errs.CodeProtocolDesync,
			"file-meta for %s while %s is incomplete (%d/%d bytes)",
			meta.Name, c.pending.meta.Name, c.pending.received, c.pending.meta.Size)
	}

	c.logger.Infof("Incoming file %s (%d bytes, %s)", meta.Name, meta.Size, meta.MimeType)
	if meta.Size == 0 {
		return &File{Name: meta.Name, MimeType: meta.MimeType, Data: []byte{}}, nil
	}

	c.pending = &descriptor{
		meta:   meta,
		chunks: make([][]byte, 0, protocol.CalculateTotalChunks(meta.Size, int64(c.opts.ChunkSize))),
	}
	return nil, nil
}

// HandleBinary appends one chunk to the pending file and returns the file
// once exactly the declared number of bytes has arrived.
func (c *Channel) HandleBinary(data []byte) (*File, error) {
	d := c.pending
	if d == nil {
		return nil, errs.New(errs.CodeProtocolDesync, "binary frame of %d bytes with no file announced", len(data))
	}

	chunk := data
	if d.meta.Sequenced {
		index, payload, err := protocol.DecodeSequencedChunk(data)
		if err != nil {
			c.pending = nil
			return nil, errs.Wrap(errs.CodeProtocolDesync, err, "aborting %s", d.meta.Name)
		}
		if index != d.nextIndex {
			c.pending = nil
			return nil, errs.New(errs.CodeProtocolDesync, "aborting %s: expected chunk %d, got %d", d.meta.Name, d.nextIndex, index)
		}
		d.nextIndex++
		chunk = payload
	}

	if d.received+int64(len(chunk)) > d.meta.Size {
		c.pending = nil
		return nil, errs.New(errs.CodeProtocolDesync, "aborting %s: chunk of %d bytes overflows %d/%d",
			d.meta.Name, len(chunk), d.received, d.meta.Size)
	}

	d.chunks = append(d.chunks, append([]byte(nil), chunk...))
	d.received += int64(len(chunk))
	c.progress(Progress{Direction: Inbound, Name: d.meta.Name, Done: d.received, Total: d.meta.Size})

	if d.received != d.meta.Size {
		return nil, nil
	}

	blob := make([]byte, 0, d.meta.Size)
	for _, ch := range d.chunks {
		blob = append(blob, ch...)
	}
	c.pending = nil
	c.logger.Infof("Received %s (%d bytes)", d.meta.Name, d.meta.Size)
	return &File{Name: d.meta.Name, MimeType: d.meta.MimeType, Data: blob}, nil
}

func (c *Channel) progress(p Progress) {
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(p)
	}
}
