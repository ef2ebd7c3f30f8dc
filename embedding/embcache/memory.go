package embcache

import (
	"context"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"
)

// Compile-time check to ensure Memory satisfies the cache interface.
var _ Cache = (*Memory)(nil)

type memoryEntry struct {
	vec  []float32
	meta EntryMeta
}

// Memory is an in-process cache. Entries never expire; Clear drops them.
// Useful for tests and short-lived pipelines.
type Memory struct {
	cache  *gocache.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemory creates an in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get returns the cached vector for key.
func (m *Memory) Get(ctx context.Context, key string) ([]float32, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	item, ok := m.cache.Get(key)
	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}

	entry := item.(memoryEntry)

	m.hits.Add(1)

	out := make([]float32, len(entry.vec))
	copy(out, entry.vec)

	return out, true, nil
}

// Put stores a vector under key.
func (m *Memory) Put(ctx context.Context, key string, vec []float32, meta EntryMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)

	m.cache.Set(key, memoryEntry{vec: stored, meta: meta}, gocache.NoExpiration)

	return nil
}

// Meta returns the metadata for key, if present.
func (m *Memory) Meta(ctx context.Context, key string) (EntryMeta, bool, error) {
	if err := ctx.Err(); err != nil {
		return EntryMeta{}, false, err
	}

	item, ok := m.cache.Get(key)
	if !ok {
		return EntryMeta{}, false, nil
	}

	return item.(memoryEntry).meta, true, nil
}

// Stats reports entry count and hit/miss counters.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var size int64
	for _, item := range m.cache.Items() {
		entry := item.Object.(memoryEntry)
		size += int64(len(entry.vec)) * 4
	}

	return Stats{
		Entries:   m.cache.ItemCount(),
		SizeBytes: size,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
	}, nil
}

// Clear removes all entries.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.cache.Flush()

	return nil
}

// Close is a no-op for the memory backend.
func (m *Memory) Close() error { return nil }
