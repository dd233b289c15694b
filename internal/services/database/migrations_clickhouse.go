package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunClickHouseMigrations creates the bridge tables directly; GORM's
// AutoMigrate does not handle ClickHouse engines.
func RunClickHouseMigrations(db *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cursors (
			stream_key String,
			cursor String,
			updated_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY stream_key`,

		`CREATE TABLE IF NOT EXISTS block_outputs (
			id UInt64,
			stream_key String,
			block_num UInt64,
			block_id String,
			module String,
			cursor String,
			payload String,
			value String,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (stream_key, block_num)
		SETTINGS index_granularity = 8192`,
	}

	for _, query := range queries {
		if err := db.Exec(query).Error; err != nil {
			return fmt.Errorf("failed to run ClickHouse migration: %w", err)
		}
	}

	return nil
}
