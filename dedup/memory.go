package dedup

import (
	"context"
	"sync"
)

var _ Cache = (*memory)(nil)

type memory struct {
	mux        sync.RWMutex
	seen       map[string]struct{}
	maxEntries int
}

func (m *memory) Seen(_ context.Context, key string) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()

	_, ok := m.seen[key]

	return ok
}

func (m *memory) Mark(_ context.Context, key string) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if len(m.seen) >= m.maxEntries {
		m.seen = make(map[string]struct{})
	}

	m.seen[key] = struct{}{}
}
