package module_decoder

import (
	"encoding/json"
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/wire"
)

// Decoded is a payload read against a named schema. The schema itself is an
// opaque contract, so the value is kept as its wire field tree.
type Decoded struct {
	Schema string
	Fields []wire.Field
}

func (d *Decoded) String() string {
	body := wire.FormatRaw(d.Fields)
	if body == "" {
		return d.Schema + " {}"
	}
	return fmt.Sprintf("%s {\n%s\n}", d.Schema, indent(body))
}

func (d *Decoded) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Schema string         `json:"@type"`
		Fields map[string]any `json:"fields"`
	}{d.Schema, wire.FieldsJSON(d.Fields)})
}

func indent(s string) string {
	out := make([]byte, 0, len(s)+16)
	out = append(out, "  "...)
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if s[i] == '\n' {
			out = append(out, "  "...)
		}
	}
	return string(out)
}

// SchemaDecoder decodes payloads of the named schema into their field tree
type SchemaDecoder string

func (s SchemaDecoder) Schema() string {
	return string(s)
}

func (s SchemaDecoder) Decode(payload []byte) (*Decoded, error) {
	fields, err := wire.DecodeRaw(payload)
	if err != nil {
		return nil, models.NewDecodeError(string(s), err)
	}
	return &Decoded{Schema: string(s), Fields: fields}, nil
}
