package cursor

import (
	"context"
	"fmt"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/database"

	"gorm.io/gorm/clause"
)

// GormStore keeps cursors in the cursors table of the configured database
type GormStore struct {
	db *database.DB
}

func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Load(ctx context.Context, key string) (models.Cursor, bool, error) {
	var records []models.CursorRecord
	err := s.db.WithContext(ctx).
		Where("stream_key = ?", key).
		Order("updated_at DESC").
		Limit(1).
		Find(&records).Error
	if err != nil {
		return "", false, fmt.Errorf("load cursor %s: %w", key, err)
	}
	if len(records) == 0 {
		return "", false, nil
	}
	return models.Cursor(records[0].Cursor), true, nil
}

func (s *GormStore) Persist(ctx context.Context, key string, cursor models.Cursor) error {
	record := models.CursorRecord{
		Key:       key,
		Cursor:    cursor.String(),
		UpdatedAt: time.Now().UTC(),
	}

	tx := s.db.WithContext(ctx)
	if s.db.SupportsUpsert() {
		tx = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stream_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at"}),
		})
	}

	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("persist cursor %s: %w", key, err)
	}
	return nil
}

// Close leaves the shared database open; its owner closes it.
func (s *GormStore) Close() error {
	return nil
}
