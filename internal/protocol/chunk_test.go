package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestCalculateTotalChunks(t *testing.T) {
	tests := []struct {
		fileSize  int64
		chunkSize int64
		expected  int
	}{
		{1024, 256, 4},
		{1000, 256, 4},
		{256, 256, 1},
		{0, 256, 0},
		{1, 256, 1},
		{257, 256, 2},
		{100, 0, 0},
	}

	for _, tt := range tests {
		result := CalculateTotalChunks(tt.fileSize, tt.chunkSize)
		if result != tt.expected {
			t.Errorf("CalculateTotalChunks(%d, %d): expected %d, got %d", tt.fileSize, tt.chunkSize, tt.expected, result)
		}
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		size      int
		lastChunk int
		count     int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{ChunkSize - 1, ChunkSize - 1, 1},
		{ChunkSize, ChunkSize, 1},
		{ChunkSize + 1, 1, 2},
		{3 * ChunkSize, ChunkSize, 3},
	}

	for _, tt := range tests {
		data := bytes.Repeat([]byte{0xab}, tt.size)
		chunks := SplitChunks(data, ChunkSize)
		if len(chunks) != tt.count {
			t.Errorf("size %d: expected %d chunks, got %d", tt.size, tt.count, len(chunks))
			continue
		}
		if tt.count > 0 && len(chunks[len(chunks)-1]) != tt.lastChunk {
			t.Errorf("size %d: expected last chunk %d bytes, got %d", tt.size, tt.lastChunk, len(chunks[len(chunks)-1]))
		}
		if got := bytes.Join(chunks, nil); !bytes.Equal(got, data) {
			t.Errorf("size %d: joined chunks differ from input", tt.size)
		}
	}
}

func TestSequencedChunkFrame(t *testing.T) {
	payload := []byte("chunk payload")
	frame := EncodeSequencedChunk(7, payload)

	index, got, err := DecodeSequencedChunk(frame)
	if err != nil {
		t.Fatalf("DecodeSequencedChunk failed: %v", err)
	}
	if index != 7 {
		t.Errorf("expected index 7, got %d", index)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}
}

func TestSequencedChunkEmptyPayload(t *testing.T) {
	index, got, err := DecodeSequencedChunk(EncodeSequencedChunk(0, nil))
	if err != nil {
		t.Fatalf("DecodeSequencedChunk failed: %v", err)
	}
	if index != 0 || len(got) != 0 {
		t.Errorf("expected empty chunk 0, got index %d len %d", index, len(got))
	}
}

func TestSequencedChunkTruncated(t *testing.T) {
	frame := EncodeSequencedChunk(1, []byte("abcdef"))

	if _, _, err := DecodeSequencedChunk(frame[:len(frame)-2]); err == nil {
		t.Error("expected error for truncated frame")
	}
	if _, _, err := DecodeSequencedChunk([]byte("raw bytes")); err == nil {
		t.Error("expected error for unframed bytes")
	}
}

func TestHashFile(t *testing.T) {
	hash, err := HashFile(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// SHA256 of "hello world"
	expected := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if hash != expected {
		t.Errorf("expected %s, got %s", expected, hash)
	}
}

func TestExtractFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"report.pdf", "report.pdf"},
		{"/path/to/file.txt", "file.txt"},
		{"../../etc/passwd", "passwd"},
		{"", "unnamed"},
		{"/", "unnamed"},
	}

	for _, tt := range tests {
		result := ExtractFileName(tt.input)
		if result != tt.expected {
			t.Errorf("ExtractFileName(%q): expected %q, got %q", tt.input, tt.expected, result)
		}
	}
}

func TestBuildDownloadPath(t *testing.T) {
	got := BuildDownloadPath("downloads", "room-1", "../secret.txt")
	expected := "downloads/room-1/secret.txt"
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
