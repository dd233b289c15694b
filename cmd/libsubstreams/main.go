// Command libsubstreams is built as a C shared library:
//
//	go build -buildmode=c-shared -o libsubstreams.so ./cmd/libsubstreams
//
// Every text result must be released with free_string and every byte-array
// result with free_byte_arrays, exactly once. Both accept NULL. Releasing the
// same pointer twice is undefined behavior.
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	uint8_t *data;
	size_t len;
} sb_bytes;
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/Egham-7/substreams-bridge/internal/abi"
	"github.com/Egham-7/substreams-bridge/internal/bridge"
	"github.com/Egham-7/substreams-bridge/internal/config"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

var (
	processBridge *bridge.Bridge
	bridgeErr     error
	bridgeOnce    sync.Once
)

// instance builds the process bridge on first use. It lives until process exit.
func instance() (*bridge.Bridge, error) {
	bridgeOnce.Do(func() {
		config.LoadEnvFiles([]string{".env.local", ".env"})

		cfg, err := config.Load()
		if err != nil {
			bridgeErr = err
			return
		}
		config.SetupLogLevel(cfg)

		processBridge, bridgeErr = bridge.NewFromConfig(cfg)
		if bridgeErr != nil {
			fiberlog.Errorf("Failed to initialize bridge: %v", bridgeErr)
		}
	})
	return processBridge, bridgeErr
}

func goString(p *C.char) *string {
	s, ok := abi.GoText(unsafe.Pointer(p))
	if !ok {
		return nil
	}
	return &s
}

func text(s string) *C.char {
	return (*C.char)(abi.CopyText(s))
}

//export rpc_call_ffi
func rpc_call_ffi(url, method, params *C.char, id C.int32_t) *C.char {
	if url == nil || method == nil || params == nil {
		return text(abi.NullPointerText)
	}
	b, err := instance()
	if err != nil {
		return text(bridge.FormatError(err))
	}
	return text(b.RPCCall(goString(url), goString(method), goString(params), int32(id)))
}

//export api_call_ffi
func api_call_ffi(url, headers *C.char) *C.char {
	if url == nil {
		return text(abi.NullPointerText)
	}
	b, err := instance()
	if err != nil {
		return text(bridge.FormatError(err))
	}
	return text(b.APICall(goString(url), goString(headers)))
}

// run_substream_ffi returns the outputs as a JSON array. block_range may be NULL.
//
//export run_substream_ffi
func run_substream_ffi(endpoint, pkg, module, blockRange *C.char) *C.char {
	if endpoint == nil || pkg == nil || module == nil {
		return text(abi.NullPointerText)
	}
	b, err := instance()
	if err != nil {
		return text(bridge.FormatError(err))
	}
	return text(b.StreamCall(goString(endpoint), goString(pkg), goString(module), goString(blockRange)))
}

// run_substream_bytes_ffi returns one sb_bytes per output and writes the count
// to out_count. On failure it returns NULL and leaves out_count untouched.
//
//export run_substream_bytes_ffi
func run_substream_bytes_ffi(endpoint, pkg, module, blockRange *C.char, outCount *C.size_t) *C.sb_bytes {
	if endpoint == nil || pkg == nil || module == nil || outCount == nil {
		return nil
	}
	b, err := instance()
	if err != nil {
		return nil
	}
	payloads, err := b.StreamCallBytes(goString(endpoint), goString(pkg), goString(module), goString(blockRange))
	if err != nil {
		return nil
	}
	p, n := abi.CopyByteArrays(payloads)
	*outCount = C.size_t(n)
	return (*C.sb_bytes)(p)
}

//export free_string
func free_string(s *C.char) {
	abi.ReleaseText(unsafe.Pointer(s))
}

//export free_byte_arrays
func free_byte_arrays(arrays *C.sb_bytes, count C.size_t) {
	abi.ReleaseByteArrays(unsafe.Pointer(arrays), int(count))
}

func main() {}
