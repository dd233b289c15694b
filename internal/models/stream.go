package models

import "fmt"

// Cursor is an opaque resumption token issued by the stream transport
type Cursor string

// IsStart reports whether the cursor designates the beginning of the stream
func (c Cursor) IsStart() bool {
	return c == ""
}

func (c Cursor) String() string {
	return string(c)
}

// BlockRef identifies a block by number and hash
type BlockRef struct {
	ID     string `json:"id,omitzero"`
	Number uint64 `json:"number"`
}

// BlockScopedData is one unit of data delivered for a block
type BlockScopedData struct {
	Block    BlockRef `json:"block"`
	Cursor   Cursor   `json:"cursor"`
	Module   string   `json:"module"`
	TypeURL  string   `json:"type_url,omitzero"`
	Payload  []byte   `json:"-"`
	FinalRef uint64   `json:"final_block_height,omitzero"`
}

// UndoSignal invalidates every unit delivered after LastValidBlock
type UndoSignal struct {
	LastValidBlock  BlockRef `json:"last_valid_block"`
	LastValidCursor Cursor   `json:"last_valid_cursor"`
}

// EventKind discriminates stream events
type EventKind int

const (
	EventNewData EventKind = iota
	EventUndo
)

func (k EventKind) String() string {
	switch k {
	case EventNewData:
		return "NewData"
	case EventUndo:
		return "UndoSignal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// StreamEvent is one event yielded by the transport. Errors and end-of-stream
// are reported by the reader's error return instead.
type StreamEvent struct {
	Kind EventKind
	Data *BlockScopedData
	Undo *UndoSignal
}

// DecodedOutput is the typed result of one stream unit
type DecodedOutput struct {
	Module string   `json:"module"`
	Block  BlockRef `json:"block"`
	Cursor Cursor   `json:"cursor"`
	Value  any      `json:"value"`
	Raw    []byte   `json:"-"`
}

// StreamRequest carries everything needed to open a block stream
type StreamRequest struct {
	Endpoint        string
	Token           string
	Module          string
	Range           BlockRange
	Cursor          Cursor
	Package         *Package
	FinalBlocksOnly bool
}
