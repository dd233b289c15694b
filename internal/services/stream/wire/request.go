package wire

import (
	"github.com/Egham-7/substreams-bridge/internal/models"

	"google.golang.org/protobuf/encoding/protowire"
)

// sf.substreams.rpc.v2.Request field numbers
const (
	requestStartBlock      protowire.Number = 1
	requestStartCursor     protowire.Number = 2
	requestStopBlock       protowire.Number = 3
	requestFinalBlocksOnly protowire.Number = 4
	requestProductionMode  protowire.Number = 5
	requestOutputModule    protowire.Number = 6
	requestModules         protowire.Number = 7
)

// Request is the body of a Blocks call
type Request struct {
	StartBlock      int64
	StartCursor     string
	StopBlock       uint64
	FinalBlocksOnly bool
	ProductionMode  bool
	OutputModule    string
	Modules         []byte
}

// NewRequest builds the wire request for a stream call
func NewRequest(req *models.StreamRequest) *Request {
	out := &Request{
		StartBlock:      req.Range.Start,
		StartCursor:     req.Cursor.String(),
		StopBlock:       req.Range.Stop,
		FinalBlocksOnly: req.FinalBlocksOnly,
		ProductionMode:  true,
		OutputModule:    req.Module,
	}
	if req.Package != nil {
		out.Modules = req.Package.RawModules
		if out.Modules == nil {
			out.Modules = EncodeModules(req.Package.Modules)
		}
	}
	return out
}

// Marshal encodes the request
func (r *Request) Marshal() []byte {
	var b []byte
	// int64 varints use two's complement, so negative starts take ten bytes
	b = appendVarint(b, requestStartBlock, uint64(r.StartBlock))
	b = appendString(b, requestStartCursor, r.StartCursor)
	b = appendVarint(b, requestStopBlock, r.StopBlock)
	b = appendBool(b, requestFinalBlocksOnly, r.FinalBlocksOnly)
	b = appendBool(b, requestProductionMode, r.ProductionMode)
	b = appendString(b, requestOutputModule, r.OutputModule)
	if r.Modules != nil {
		b = protowire.AppendTag(b, requestModules, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Modules)
	}
	return b
}

// Unmarshal decodes a request. Used by test servers.
func (r *Request) Unmarshal(b []byte) error {
	*r = Request{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case requestStartBlock:
			v, n, err := varintValue(typ, b)
			r.StartBlock = int64(v)
			return n, err
		case requestStartCursor:
			s, n, err := stringValue(typ, b)
			r.StartCursor = s
			return n, err
		case requestStopBlock:
			v, n, err := varintValue(typ, b)
			r.StopBlock = v
			return n, err
		case requestFinalBlocksOnly:
			v, n, err := varintValue(typ, b)
			r.FinalBlocksOnly = v != 0
			return n, err
		case requestProductionMode:
			v, n, err := varintValue(typ, b)
			r.ProductionMode = v != 0
			return n, err
		case requestOutputModule:
			s, n, err := stringValue(typ, b)
			r.OutputModule = s
			return n, err
		case requestModules:
			v, n, err := bytesValue(typ, b)
			r.Modules = append([]byte(nil), v...)
			return n, err
		}
		return 0, nil
	})
}
