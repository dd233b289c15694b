// Package cursor persists stream cursors so an interrupted stream call can
// resume where the last one stopped.
package cursor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/Egham-7/substreams-bridge/internal/models"
)

// Store saves and restores the cursor of one stream, identified by key.
// Persist is called after every delivered unit, so implementations must be
// cheap and safe for concurrent use by independent calls.
type Store interface {
	Load(ctx context.Context, key string) (models.Cursor, bool, error)
	Persist(ctx context.Context, key string, cursor models.Cursor) error
	Close() error
}

// Key derives the storage key of a stream from what identifies it
func Key(endpoint, locator, module, blockRange string) string {
	h := sha256.New()
	for _, part := range []string{endpoint, locator, module, blockRange} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return module + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Nop never remembers anything, so every call starts from its range start.
// It is the zero-config default; hosts that need resumption configure a
// real backend.
type Nop struct{}

func (Nop) Load(context.Context, string) (models.Cursor, bool, error) {
	return "", false, nil
}

func (Nop) Persist(context.Context, string, models.Cursor) error {
	return nil
}

func (Nop) Close() error {
	return nil
}

// Memory keeps cursors for the life of the process
type Memory struct {
	mu      sync.RWMutex
	cursors map[string]models.Cursor
}

func NewMemory() *Memory {
	return &Memory{cursors: make(map[string]models.Cursor)}
}

func (m *Memory) Load(_ context.Context, key string) (models.Cursor, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cursors[key]
	return c, ok, nil
}

func (m *Memory) Persist(_ context.Context, key string, cursor models.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[key] = cursor
	return nil
}

func (m *Memory) Close() error {
	return nil
}
