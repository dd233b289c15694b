package models

// CursorBackendType represents where stream cursors are persisted
type CursorBackendType string

const (
	// CursorBackendNone keeps the no-op hooks; every stream starts from its range start
	CursorBackendNone     CursorBackendType = "none"
	CursorBackendMemory   CursorBackendType = "memory"
	CursorBackendDatabase CursorBackendType = "database"
	CursorBackendRedis    CursorBackendType = "redis"
	CursorBackendLevelDB  CursorBackendType = "leveldb"
)

// CursorConfig holds configuration for cursor persistence (optional)
type CursorConfig struct {
	Backend   CursorBackendType `json:"backend,omitzero" yaml:"backend"`
	RedisURL  string            `json:"redis_url,omitzero" yaml:"redis_url"`   // Required if backend is "redis"
	Path      string            `json:"path,omitzero" yaml:"path"`             // Required if backend is "leveldb"
	KeyPrefix string            `json:"key_prefix,omitzero" yaml:"key_prefix"` // Namespaces keys in shared stores
}

// SinkConfig enables durable output records in the configured database.
// When enabled, undo signals delete every record above the last valid block.
type SinkConfig struct {
	Enabled bool `json:"enabled,omitzero" yaml:"enabled"`
}
