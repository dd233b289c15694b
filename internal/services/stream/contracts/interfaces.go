package contracts

import (
	"context"

	"github.com/Egham-7/substreams-bridge/internal/models"
)

// EventReader yields stream events in order and io.EOF once the stream ends
type EventReader interface {
	Next(ctx context.Context) (models.StreamEvent, error)
	Close() error
}

// Transport opens a block stream
type Transport interface {
	Open(ctx context.Context, req *models.StreamRequest) (EventReader, error)
}

// UnitProcessor turns one block-scoped unit into an output. A nil output
// with a nil error means the unit carries nothing and is skipped.
type UnitProcessor interface {
	Process(ctx context.Context, data *models.BlockScopedData) (*models.DecodedOutput, error)
	Module() string
}

// OutputWriter receives every emitted output
type OutputWriter interface {
	Write(ctx context.Context, out *models.DecodedOutput) error
	Close() error
}

// UndoHandler discards whatever was recorded past the last valid block of
// an undo signal. Handlers must be idempotent: a resumed stream can replay
// the same signal.
type UndoHandler interface {
	Undo(ctx context.Context, signal *models.UndoSignal) error
}

// UndoFunc adapts a function to UndoHandler
type UndoFunc func(ctx context.Context, signal *models.UndoSignal) error

func (f UndoFunc) Undo(ctx context.Context, signal *models.UndoSignal) error {
	return f(ctx, signal)
}
