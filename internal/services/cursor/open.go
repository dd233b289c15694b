package cursor

import (
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/database"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Open builds the store selected by cfg.Backend. db and rdb are only required
// by the backends that use them.
func Open(cfg models.CursorConfig, db *database.DB, rdb *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "", models.CursorBackendNone:
		fiberlog.Info("Cursor persistence disabled - stream calls start from their range")
		return Nop{}, nil
	case models.CursorBackendMemory:
		return NewMemory(), nil
	case models.CursorBackendDatabase:
		if db == nil {
			return nil, fmt.Errorf("cursor backend %s requires a database", cfg.Backend)
		}
		return NewGormStore(db), nil
	case models.CursorBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("cursor backend %s requires a redis client", cfg.Backend)
		}
		return NewRedisStore(rdb, cfg.KeyPrefix), nil
	case models.CursorBackendLevelDB:
		return OpenLevelDB(cfg.Path, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported cursor backend: %s", cfg.Backend)
	}
}
