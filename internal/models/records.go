package models

import "time"

// CursorRecord is the durable row behind a persisted stream cursor
type CursorRecord struct {
	Key       string    `gorm:"column:stream_key;primaryKey;size:255" json:"key"`
	Cursor    string    `gorm:"type:text;not null" json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CursorRecord) TableName() string {
	return "cursors"
}

// OutputRecord is one decoded module output written by the database sink
type OutputRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	StreamKey string    `gorm:"size:255;index:idx_block_outputs_stream_block,priority:1;not null" json:"stream_key"`
	BlockNum  uint64    `gorm:"index:idx_block_outputs_stream_block,priority:2;not null" json:"block_num"`
	BlockID   string    `gorm:"size:128" json:"block_id"`
	Module    string    `gorm:"size:255;not null" json:"module"`
	Cursor    string    `gorm:"type:text" json:"cursor"`
	Payload   []byte    `json:"-"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

func (OutputRecord) TableName() string {
	return "block_outputs"
}
