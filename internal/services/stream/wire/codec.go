package wire

import "fmt"

type marshaler interface {
	Marshal() []byte
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

// Codec is a grpc encoding.Codec for the hand-mapped messages of this package.
// It reports itself as "proto" so servers see the standard content subtype.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(marshaler)
	if !ok {
		return nil, fmt.Errorf("wire codec: cannot marshal %T", v)
	}
	return m.Marshal(), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	u, ok := v.(unmarshaler)
	if !ok {
		return fmt.Errorf("wire codec: cannot unmarshal into %T", v)
	}
	return u.Unmarshal(data)
}

func (Codec) Name() string {
	return "proto"
}
