package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"
)

func TestRender(t *testing.T) {
	out, err := Render(func(buf *bytebufferpool.ByteBuffer) error {
		_, _ = buf.WriteString("block ")
		_, _ = buf.WriteString("12")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "block 12", out)

	// a reused buffer starts empty
	out, err = Render(func(buf *bytebufferpool.ByteBuffer) error {
		_, _ = buf.WriteString("x")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestRenderError(t *testing.T) {
	_, err := Render(func(*bytebufferpool.ByteBuffer) error {
		return errors.New("encode failed")
	})
	require.EqualError(t, err, "encode failed")
}
