package writers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/database"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// DatabaseSink records outputs in the block_outputs table and deletes them
// again when an undo signal invalidates their block
type DatabaseSink struct {
	db        *database.DB
	streamKey string
	requestID string
	written   int64
}

func NewDatabaseSink(db *database.DB, streamKey, requestID string) *DatabaseSink {
	return &DatabaseSink{
		db:        db,
		streamKey: streamKey,
		requestID: requestID,
	}
}

func (s *DatabaseSink) Write(ctx context.Context, out *models.DecodedOutput) error {
	value, err := json.Marshal(out.Value)
	if err != nil {
		return fmt.Errorf("encode output of block %d: %w", out.Block.Number, err)
	}

	record := models.OutputRecord{
		StreamKey: s.streamKey,
		BlockNum:  out.Block.Number,
		BlockID:   out.Block.ID,
		Module:    out.Module,
		Cursor:    out.Cursor.String(),
		Payload:   out.Raw,
		Value:     string(value),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("store output of block %d: %w", out.Block.Number, err)
	}
	s.written++
	return nil
}

// Undo deletes every record of this stream above the last valid block.
// Deleting is idempotent, so replayed signals are harmless.
func (s *DatabaseSink) Undo(ctx context.Context, signal *models.UndoSignal) error {
	result := s.db.WithContext(ctx).
		Where("stream_key = ? AND block_num > ?", s.streamKey, signal.LastValidBlock.Number).
		Delete(&models.OutputRecord{})
	if result.Error != nil {
		return fmt.Errorf("roll back outputs above block %d: %w", signal.LastValidBlock.Number, result.Error)
	}
	fiberlog.Infof("[%s] Rolled back %d stored outputs above block %d",
		s.requestID, result.RowsAffected, signal.LastValidBlock.Number)
	return nil
}

func (s *DatabaseSink) Close() error {
	fiberlog.Debugf("[%s] Database sink stored %d outputs", s.requestID, s.written)
	return nil
}
