package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Egham-7/substreams-bridge/internal/utils"

	"github.com/valyala/bytebufferpool"
	"google.golang.org/protobuf/encoding/protowire"
)

// FieldKind tells how a raw field value was interpreted
type FieldKind string

const (
	KindVarint  FieldKind = "varint"
	KindFixed32 FieldKind = "fixed32"
	KindFixed64 FieldKind = "fixed64"
	KindString  FieldKind = "string"
	KindBytes   FieldKind = "bytes"
	KindMessage FieldKind = "message"
)

// Field is one field of a message decoded without its schema. Length-delimited
// values are read as a nested message when they parse as one, as text when
// they are printable UTF-8, and as bytes otherwise.
type Field struct {
	Number  int32
	Kind    FieldKind
	Uint    uint64
	Bytes   []byte
	Message []Field
}

// DecodeRaw decodes b into its field tree
func DecodeRaw(b []byte) ([]Field, error) {
	return decodeRaw(b, 0)
}

const maxRawDepth = 64

func decodeRaw(b []byte, depth int) ([]Field, error) {
	if depth > maxRawDepth {
		return nil, fmt.Errorf("message nested deeper than %d levels", maxRawDepth)
	}

	fields := []Field{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		f := Field{Number: int32(num)}
		switch typ {
		case protowire.VarintType:
			f.Kind = KindVarint
			f.Uint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			f.Kind = KindFixed32
			v, n = protowire.ConsumeFixed32(b)
			f.Uint = uint64(v)
		case protowire.Fixed64Type:
			f.Kind = KindFixed64
			f.Uint, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				classify(&f, depth)
			}
		default:
			return nil, fmt.Errorf("field %d: unsupported wire type %d", num, typ)
		}
		if n < 0 {
			return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

func classify(f *Field, depth int) {
	if len(f.Bytes) > 0 {
		if nested, err := decodeRaw(f.Bytes, depth+1); err == nil && !looksLikeText(f.Bytes) {
			f.Kind = KindMessage
			f.Message = nested
			f.Bytes = nil
			return
		}
	}
	if looksLikeText(f.Bytes) {
		f.Kind = KindString
		return
	}
	f.Kind = KindBytes
}

func looksLikeText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}

// FormatRaw renders fields in the indented "number: value" layout used by
// protoc --decode_raw.
func FormatRaw(fields []Field) string {
	out, _ := utils.Render(func(buf *bytebufferpool.ByteBuffer) error {
		writeRaw(buf, fields, 0)
		return nil
	})
	return strings.TrimSuffix(out, "\n")
}

func writeRaw(buf *bytebufferpool.ByteBuffer, fields []Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		_, _ = buf.WriteString(indent)
		_, _ = buf.WriteString(strconv.Itoa(int(f.Number)))
		switch f.Kind {
		case KindMessage:
			_, _ = buf.WriteString(" {\n")
			writeRaw(buf, f.Message, depth+1)
			_, _ = buf.WriteString(indent)
			_, _ = buf.WriteString("}\n")
			continue
		case KindVarint:
			_, _ = buf.WriteString(": ")
			_, _ = buf.WriteString(strconv.FormatUint(f.Uint, 10))
		case KindFixed32:
			_, _ = buf.WriteString(": 0x")
			_, _ = buf.WriteString(fmt.Sprintf("%08x", f.Uint))
		case KindFixed64:
			_, _ = buf.WriteString(": 0x")
			_, _ = buf.WriteString(fmt.Sprintf("%016x", f.Uint))
		case KindString:
			_, _ = buf.WriteString(": ")
			_, _ = buf.WriteString(strconv.Quote(string(f.Bytes)))
		case KindBytes:
			_, _ = buf.WriteString(": 0x")
			_, _ = buf.WriteString(hex.EncodeToString(f.Bytes))
		}
		_, _ = buf.WriteString("\n")
	}
}

// MarshalJSON renders the value of a field. Repeated numbers are grouped by
// the enclosing message.
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.jsonValue())
}

func (f Field) jsonValue() any {
	switch f.Kind {
	case KindMessage:
		return FieldsJSON(f.Message)
	case KindString:
		return string(f.Bytes)
	case KindBytes:
		return "0x" + hex.EncodeToString(f.Bytes)
	case KindFixed32:
		v := map[string]any{"fixed32": f.Uint}
		if fl := float64(math.Float32frombits(uint32(f.Uint))); isFinite(fl) {
			v["float"] = fl
		}
		return v
	case KindFixed64:
		v := map[string]any{"fixed64": strconv.FormatUint(f.Uint, 10)}
		if fl := math.Float64frombits(f.Uint); isFinite(fl) {
			v["double"] = fl
		}
		return v
	default:
		// Keep 64-bit values exact for JSON consumers
		if f.Uint > 1<<53 {
			return strconv.FormatUint(f.Uint, 10)
		}
		return f.Uint
	}
}

// JSON has no NaN or infinities
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FieldsJSON groups fields by number. Fields seen once map to their value,
// repeated fields map to a list.
func FieldsJSON(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		key := strconv.Itoa(int(f.Number))
		v := f.jsonValue()
		switch prev := out[key].(type) {
		case nil:
			out[key] = v
		case repeated:
			out[key] = append(prev, v)
		default:
			out[key] = repeated{prev, v}
		}
	}
	return out
}

type repeated []any
