// Package dedup provides the processed-event caches the webhook router
// consults before the authoritative status column. The caches are
// approximate: a miss only means the router falls through to storage.
package dedup

import "context"

type Cache interface {
	// Seen reports whether key was marked earlier. A false answer is
	// not a guarantee; storage remains the source of truth.
	Seen(ctx context.Context, key string) bool
	// Mark records key as processed.
	Mark(ctx context.Context, key string)
}

const defaultMaxEntries = 10_000

func NewMemory(opts ...MemoryOption) Cache {
	m := &memory{
		seen:       make(map[string]struct{}),
		maxEntries: defaultMaxEntries,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

type MemoryOption func(*memory)

// WithMaxEntries caps the in-memory set. When a Mark would push the set
// past the cap the whole set is dropped rather than evicted piecemeal.
func WithMaxEntries(n int) MemoryOption {
	return func(m *memory) {
		m.maxEntries = n
	}
}
