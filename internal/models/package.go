package models

// Module is a named unit of output within a package
type Module struct {
	Name         string `json:"name"`
	InitialBlock uint64 `json:"initial_block"`
	OutputType   string `json:"output_type,omitzero"`
}

// Package is a decoded package definition. RawModules keeps the encoded
// modules message so it can be forwarded verbatim in stream requests.
type Package struct {
	Version    uint64   `json:"version,omitzero"`
	Modules    []Module `json:"modules"`
	RawModules []byte   `json:"-"`
}

// FindModule returns the module with the given name
func (p *Package) FindModule(name string) (Module, bool) {
	for _, m := range p.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// BlockRange is the [Start, Stop) window to stream. Stop == 0 means unbounded.
type BlockRange struct {
	Start int64  `json:"start"`
	Stop  uint64 `json:"stop"`
}

// Unbounded reports whether the range runs until the stream ends
func (r BlockRange) Unbounded() bool {
	return r.Stop == 0
}
