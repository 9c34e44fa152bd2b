package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeProtocolDesync, "chunk overflows %s", "a.txt")

	assert.True(t, errors.Is(err, ErrProtocolDesync))
	assert.False(t, errors.Is(err, ErrSendDropped))
}

func TestErrorIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handling frame: %w", New(CodeSignalMalformed, "bad json"))

	assert.True(t, errors.Is(err, ErrSignalMalformed))
	assert.Equal(t, CodeSignalMalformed, CodeOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(CodeTransportUnavailable, io.EOF, "dial relay")

	assert.True(t, errors.Is(err, io.EOF))
	assert.Contains(t, err.Error(), "caused by: EOF")
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(io.EOF))
}
