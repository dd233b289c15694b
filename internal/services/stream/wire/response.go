package wire

import (
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"

	"google.golang.org/protobuf/encoding/protowire"
)

// sf.substreams.rpc.v2.Response oneof field numbers
const (
	responseSession    protowire.Number = 1
	responseProgress   protowire.Number = 2
	responseData       protowire.Number = 3
	responseUndo       protowire.Number = 4
	responseFatalError protowire.Number = 5

	dataOutput      protowire.Number = 1
	dataClock       protowire.Number = 2
	dataCursor      protowire.Number = 3
	dataFinalHeight protowire.Number = 4

	outputName  protowire.Number = 1
	outputValue protowire.Number = 2

	anyTypeURL protowire.Number = 1
	anyValue   protowire.Number = 2

	refID     protowire.Number = 1
	refNumber protowire.Number = 2

	undoLastValidBlock  protowire.Number = 1
	undoLastValidCursor protowire.Number = 2

	errorModule protowire.Number = 1
	errorReason protowire.Number = 2

	sessionTraceID       protowire.Number = 1
	sessionResolvedStart protowire.Number = 2
)

// Session is the first message of every stream
type Session struct {
	TraceID            string
	ResolvedStartBlock uint64
}

// FatalError terminates the stream
type FatalError struct {
	Module string
	Reason string
}

func (e *FatalError) Error() string {
	if e.Module == "" {
		return e.Reason
	}
	return fmt.Sprintf("module %s: %s", e.Module, e.Reason)
}

// Response holds exactly one of its fields once decoded. A progress message
// leaves every field nil.
type Response struct {
	Session *Session
	Data    *models.BlockScopedData
	Undo    *models.UndoSignal
	Fatal   *FatalError
}

// Unmarshal decodes a stream response
func (r *Response) Unmarshal(b []byte) error {
	*r = Response{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case responseSession, responseData, responseUndo, responseFatalError:
		default:
			// progress and debug snapshots
			return 0, nil
		}

		raw, n, err := bytesValue(typ, b)
		if err != nil {
			return 0, err
		}

		switch num {
		case responseSession:
			r.Session, err = decodeSession(raw)
		case responseData:
			r.Data, err = decodeBlockScopedData(raw)
		case responseUndo:
			r.Undo, err = decodeUndo(raw)
		case responseFatalError:
			r.Fatal, err = decodeFatal(raw)
		}
		return n, err
	})
}

// Marshal encodes a response. Used by test servers.
func (r *Response) Marshal() []byte {
	var b []byte
	switch {
	case r.Session != nil:
		var s []byte
		s = appendString(s, sessionTraceID, r.Session.TraceID)
		s = appendVarint(s, sessionResolvedStart, r.Session.ResolvedStartBlock)
		b = appendMessage(b, responseSession, s)
	case r.Data != nil:
		b = appendMessage(b, responseData, encodeBlockScopedData(r.Data))
	case r.Undo != nil:
		var u []byte
		u = appendMessage(u, undoLastValidBlock, encodeRef(r.Undo.LastValidBlock))
		u = appendString(u, undoLastValidCursor, r.Undo.LastValidCursor.String())
		b = appendMessage(b, responseUndo, u)
	case r.Fatal != nil:
		var e []byte
		e = appendString(e, errorModule, r.Fatal.Module)
		e = appendString(e, errorReason, r.Fatal.Reason)
		b = appendMessage(b, responseFatalError, e)
	default:
		b = appendMessage(b, responseProgress, nil)
	}
	return b
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func decodeSession(b []byte) (*Session, error) {
	s := &Session{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case sessionTraceID:
			v, n, err := stringValue(typ, b)
			s.TraceID = v
			return n, err
		case sessionResolvedStart:
			v, n, err := varintValue(typ, b)
			s.ResolvedStartBlock = v
			return n, err
		}
		return 0, nil
	})
	return s, err
}

func decodeBlockScopedData(b []byte) (*models.BlockScopedData, error) {
	d := &models.BlockScopedData{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case dataOutput:
			raw, n, err := bytesValue(typ, b)
			if err != nil {
				return 0, err
			}
			return n, decodeMapOutput(raw, d)
		case dataClock:
			raw, n, err := bytesValue(typ, b)
			if err != nil {
				return 0, err
			}
			d.Block, err = decodeRef(raw)
			return n, err
		case dataCursor:
			s, n, err := stringValue(typ, b)
			d.Cursor = models.Cursor(s)
			return n, err
		case dataFinalHeight:
			v, n, err := varintValue(typ, b)
			d.FinalRef = v
			return n, err
		}
		return 0, nil
	})
	return d, err
}

func decodeMapOutput(b []byte, d *models.BlockScopedData) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case outputName:
			s, n, err := stringValue(typ, b)
			d.Module = s
			return n, err
		case outputValue:
			raw, n, err := bytesValue(typ, b)
			if err != nil {
				return 0, err
			}
			return n, walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case anyTypeURL:
					s, n, err := stringValue(typ, b)
					d.TypeURL = s
					return n, err
				case anyValue:
					v, n, err := bytesValue(typ, b)
					d.Payload = append([]byte(nil), v...)
					return n, err
				}
				return 0, nil
			})
		}
		return 0, nil
	})
}

func encodeBlockScopedData(d *models.BlockScopedData) []byte {
	var anyMsg []byte
	anyMsg = appendString(anyMsg, anyTypeURL, d.TypeURL)
	anyMsg = appendBytes(anyMsg, anyValue, d.Payload)

	var out []byte
	out = appendString(out, outputName, d.Module)
	out = appendMessage(out, outputValue, anyMsg)

	var b []byte
	b = appendMessage(b, dataOutput, out)
	b = appendMessage(b, dataClock, encodeRef(d.Block))
	b = appendString(b, dataCursor, d.Cursor.String())
	b = appendVarint(b, dataFinalHeight, d.FinalRef)
	return b
}

// Clock and BlockRef share the id and number field numbers
func decodeRef(b []byte) (models.BlockRef, error) {
	var ref models.BlockRef
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case refID:
			s, n, err := stringValue(typ, b)
			ref.ID = s
			return n, err
		case refNumber:
			v, n, err := varintValue(typ, b)
			ref.Number = v
			return n, err
		}
		return 0, nil
	})
	return ref, err
}

func encodeRef(ref models.BlockRef) []byte {
	var b []byte
	b = appendString(b, refID, ref.ID)
	b = appendVarint(b, refNumber, ref.Number)
	return b
}

func decodeUndo(b []byte) (*models.UndoSignal, error) {
	u := &models.UndoSignal{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case undoLastValidBlock:
			raw, n, err := bytesValue(typ, b)
			if err != nil {
				return 0, err
			}
			u.LastValidBlock, err = decodeRef(raw)
			return n, err
		case undoLastValidCursor:
			s, n, err := stringValue(typ, b)
			u.LastValidCursor = models.Cursor(s)
			return n, err
		}
		return 0, nil
	})
	return u, err
}

func decodeFatal(b []byte) (*FatalError, error) {
	e := &FatalError{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case errorModule:
			s, n, err := stringValue(typ, b)
			e.Module = s
			return n, err
		case errorReason:
			s, n, err := stringValue(typ, b)
			e.Reason = s
			return n, err
		}
		return 0, nil
	})
	return e, err
}
