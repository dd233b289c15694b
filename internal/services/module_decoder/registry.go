// Package module_decoder maps stream module names to the decoders for their
// output payloads.
package module_decoder

import (
	"sort"

	"github.com/Egham-7/substreams-bridge/internal/models"
)

// Schema names of the outputs this bridge knows how to read
const (
	PoolsSchema  = "uniswap.types.v1.Pools"
	EventsSchema = "uniswap.types.v1.Events"
)

// Decoder turns a module output payload into a typed value
type Decoder interface {
	Schema() string
	Decode(payload []byte) (*Decoded, error)
}

// Registry looks decoders up by module name
type Registry interface {
	Lookup(module string) (Decoder, error)
}

// MapRegistry is an immutable name to decoder table. It is safe for
// concurrent use once built.
type MapRegistry struct {
	decoders map[string]Decoder
}

// NewRegistry builds a registry from the given entries
func NewRegistry(entries map[string]Decoder) *MapRegistry {
	decoders := make(map[string]Decoder, len(entries))
	for name, d := range entries {
		decoders[name] = d
	}
	return &MapRegistry{decoders: decoders}
}

var defaultRegistry = func() *MapRegistry {
	pools := SchemaDecoder(PoolsSchema)
	events := SchemaDecoder(EventsSchema)
	return NewRegistry(map[string]Decoder{
		"map_pools_created":            pools,
		"uni_v0_2_9:map_pools_created": pools,
		"graph_out":                    events,
		"uni_v0_2_9:graph_out":         events,
	})
}()

// Default returns the built-in registry
func Default() *MapRegistry {
	return defaultRegistry
}

// Lookup returns the decoder registered for module
func (r *MapRegistry) Lookup(module string) (Decoder, error) {
	d, ok := r.decoders[module]
	if !ok {
		return nil, models.NewUnknownModuleError(module)
	}
	return d, nil
}

// Names lists the registered module names in sorted order
func (r *MapRegistry) Names() []string {
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
