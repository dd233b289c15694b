// Package utils holds helpers shared by the output renderers.
package utils

import (
	"github.com/valyala/bytebufferpool"
)

// Rendered outputs get their own pool so its size classes calibrate to them
// rather than to unrelated buffers in the process.
var renderPool bytebufferpool.Pool

// Get retrieves a buffer from the render pool
func Get() *bytebufferpool.ByteBuffer {
	return renderPool.Get()
}

// Put returns a buffer to the render pool
func Put(buf *bytebufferpool.ByteBuffer) {
	renderPool.Put(buf)
}

// Render runs fn against a pooled buffer and returns a copy of what it wrote
func Render(fn func(buf *bytebufferpool.ByteBuffer) error) (string, error) {
	buf := Get()
	defer Put(buf)

	if err := fn(buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
