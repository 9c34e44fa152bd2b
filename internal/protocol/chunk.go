package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

func CalculateTotalChunks(fileSize, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	return int((fileSize + chunkSize - 1) / chunkSize)
}

// SplitChunks slices data into chunkSize pieces without copying. The last
// piece may be shorter; empty data yields no chunks.
func SplitChunks(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 || len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, CalculateTotalChunks(int64(len(data)), int64(chunkSize)))
	for offset := 0; offset < len(data); offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		chunks = append(chunks, data[offset:end:end])
	}
	return chunks
}

// EncodeSequencedChunk wraps payload as {1: index, 2: payload} in protobuf
// wire format.
func EncodeSequencedChunk(index uint64, payload []byte) []byte {
	b := make([]byte, 0, len(payload)+16)
	b = protowire.AppendTag(b, fieldChunkIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, index)
	b = protowire.AppendTag(b, fieldChunkPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b
}

func DecodeSequencedChunk(b []byte) (uint64, []byte, error) {
	var (
		index      uint64
		payload    []byte
		hasIndex   bool
		hasPayload bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("reading chunk tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldChunkIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("reading chunk index: %w", protowire.ParseError(n))
			}
			index, hasIndex = v, true
			b = b[n:]
		case num == fieldChunkPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("reading chunk payload: %w", protowire.ParseError(n))
			}
			payload, hasPayload = v, true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("skipping field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !hasIndex || !hasPayload {
		return 0, nil, fmt.Errorf("chunk frame missing index or payload")
	}
	return index, payload, nil
}
