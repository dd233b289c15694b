package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import "unsafe"

// The helpers below build and read C values for the entry point tests.
// _test.go files cannot use cgo.

type cText = *C.char

func newCString(s string) *C.char {
	return C.CString(s)
}

func freeCString(p *C.char) {
	C.free(unsafe.Pointer(p))
}

func newCount(v uint64) *C.size_t {
	p := (*C.size_t)(C.malloc(C.size_t(unsafe.Sizeof(C.size_t(0)))))
	*p = C.size_t(v)
	return p
}

func countValue(p *C.size_t) uint64 {
	return uint64(*p)
}

func freeCount(p *C.size_t) {
	C.free(unsafe.Pointer(p))
}
