// Package abi owns every buffer that crosses the C boundary.
//
// Text buffers are NUL-terminated and allocated with malloc. Byte-array
// collections are a malloc'ed array of sb_bytes, each pointing at its own
// malloc'ed payload. Both are released only through this package, exactly once
// per allocation. Releasing the same raw pointer twice is undefined; the Text
// and ByteArrays wrappers guard against it for Go callers only.
package abi

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	uint8_t *data;
	size_t len;
} sb_bytes;
*/
import "C"

import (
	"strings"
	"sync/atomic"
	"unsafe"
)

// NullPointerText is returned by text entry points given a nil required input
const NullPointerText = "Null pointer passed"

var outstanding atomic.Int64

// Outstanding returns the number of buffers handed out and not yet released
func Outstanding() int64 {
	return outstanding.Load()
}

// CopyText copies s into a fresh C string owned by the caller
func CopyText(s string) unsafe.Pointer {
	p := unsafe.Pointer(C.CString(s))
	outstanding.Add(1)
	return p
}

// ReleaseText frees a buffer from CopyText. nil is a no-op.
func ReleaseText(p unsafe.Pointer) {
	if p == nil {
		return
	}
	C.free(p)
	outstanding.Add(-1)
}

// GoText copies a C string into Go memory. Invalid UTF-8 sequences are
// replaced as a whole, so no input is ever converted partially. ok is false
// for nil.
func GoText(p unsafe.Pointer) (s string, ok bool) {
	if p == nil {
		return "", false
	}
	return strings.ToValidUTF8(C.GoString((*C.char)(p)), "�"), true
}

// CopyByteArrays copies items into a C array of sb_bytes owned by the caller.
// The array is allocated even for zero items so success is never nil.
func CopyByteArrays(items [][]byte) (unsafe.Pointer, int) {
	n := len(items)
	size := C.size_t(unsafe.Sizeof(C.sb_bytes{}))
	slots := C.size_t(max(n, 1))

	arr := (*C.sb_bytes)(C.calloc(slots, size))
	view := unsafe.Slice(arr, n)
	for i, item := range items {
		view[i].len = C.size_t(len(item))
		if len(item) > 0 {
			view[i].data = (*C.uint8_t)(C.CBytes(item))
		}
	}

	outstanding.Add(1)
	return unsafe.Pointer(arr), n
}

// ReleaseByteArrays frees a collection from CopyByteArrays along with every
// payload it points at. nil is a no-op.
func ReleaseByteArrays(p unsafe.Pointer, count int) {
	if p == nil {
		return
	}
	for _, item := range unsafe.Slice((*C.sb_bytes)(p), count) {
		if item.data != nil {
			C.free(unsafe.Pointer(item.data))
		}
	}
	C.free(p)
	outstanding.Add(-1)
}

// GoByteArrays copies a collection back into Go memory
func GoByteArrays(p unsafe.Pointer, count int) [][]byte {
	if p == nil {
		return nil
	}
	out := make([][]byte, count)
	for i, item := range unsafe.Slice((*C.sb_bytes)(p), count) {
		out[i] = C.GoBytes(unsafe.Pointer(item.data), C.int(item.len))
	}
	return out
}

// Text is a single-owner handle on a C string
type Text struct {
	ptr unsafe.Pointer
}

func NewText(s string) *Text {
	return &Text{ptr: CopyText(s)}
}

// Ptr returns the raw buffer, nil after Release
func (t *Text) Ptr() unsafe.Pointer {
	return t.ptr
}

// Detach hands ownership of the buffer to the caller
func (t *Text) Detach() unsafe.Pointer {
	p := t.ptr
	t.ptr = nil
	return p
}

// Release frees the buffer once. Later calls are no-ops.
func (t *Text) Release() {
	ReleaseText(t.ptr)
	t.ptr = nil
}

// ByteArrays is a single-owner handle on an sb_bytes collection
type ByteArrays struct {
	ptr   unsafe.Pointer
	count int
}

func NewByteArrays(items [][]byte) *ByteArrays {
	p, n := CopyByteArrays(items)
	return &ByteArrays{ptr: p, count: n}
}

func (b *ByteArrays) Ptr() unsafe.Pointer {
	return b.ptr
}

func (b *ByteArrays) Count() int {
	return b.count
}

// Detach hands ownership of the collection to the caller
func (b *ByteArrays) Detach() (unsafe.Pointer, int) {
	p, n := b.ptr, b.count
	b.ptr, b.count = nil, 0
	return p, n
}

// Release frees the collection once. Later calls are no-ops.
func (b *ByteArrays) Release() {
	ReleaseByteArrays(b.ptr, b.count)
	b.ptr, b.count = nil, 0
}
