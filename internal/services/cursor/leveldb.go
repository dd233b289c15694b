package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore keeps cursors in a local LevelDB directory
type LevelDBStore struct {
	db     *leveldb.DB
	prefix []byte
}

// OpenLevelDB opens or creates the database at path
func OpenLevelDB(path, prefix string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity:     1 * opt.MiB,
		WriteBuffer:            1 * opt.MiB,
		OpenFilesCacheCapacity: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("open cursor database %s: %w", path, err)
	}
	return &LevelDBStore{db: db, prefix: []byte(prefix)}, nil
}

func (s *LevelDBStore) key(key string) []byte {
	return append(append([]byte{}, s.prefix...), key...)
}

func (s *LevelDBStore) Load(_ context.Context, key string) (models.Cursor, bool, error) {
	val, err := s.db.Get(s.key(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load cursor %s: %w", key, err)
	}
	return models.Cursor(val), true, nil
}

// Persist syncs every write.
func (s *LevelDBStore) Persist(_ context.Context, key string, cursor models.Cursor) error {
	if err := s.db.Put(s.key(key), []byte(cursor), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("persist cursor %s: %w", key, err)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
