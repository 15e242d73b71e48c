package store

import (
	"context"
	"slices"

	"github.com/nsepulse/pulse/log"
	"github.com/puzpuzpuz/xsync/v3"
)

type memoryStore struct {
	entries *xsync.MapOf[string, []byte]
	log     log.Logger
}

func newMemoryStore(log log.Logger) *memoryStore {
	log.Reportf("using memory for snapshot storage")
	return &memoryStore{entries: xsync.NewMapOf[string, []byte](), log: log}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.entries.Load(key); ok {
		return slices.Clone(v), nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte) error {
	m.entries.Store(key, slices.Clone(value))
	return nil
}

func (m *memoryStore) Shutdown() {}
