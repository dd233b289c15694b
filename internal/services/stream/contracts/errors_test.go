package contracts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamErrorMessages(t *testing.T) {
	err := NewTerminatedError("req", errors.New("module graph_out: panic in wasm"))
	assert.Equal(t, "stream terminated with error: module graph_out: panic in wasm", err.Error())
	assert.False(t, IsExpectedError(err))

	cancelled := fmt.Errorf("consume: %w", NewCancelledError("req", context.Canceled))
	assert.True(t, IsCancelled(cancelled))
	assert.True(t, IsExpectedError(cancelled))
	assert.ErrorIs(t, cancelled, context.Canceled)
}

func TestIsConnectionClosed(t *testing.T) {
	assert.True(t, IsConnectionClosed(errors.New("http2: server sent GOAWAY and closed the connection")))
	assert.True(t, IsConnectionClosed(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsConnectionClosed(errors.New("permission denied")))
	assert.False(t, IsConnectionClosed(nil))
}
