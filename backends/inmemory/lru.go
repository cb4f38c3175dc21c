package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/botirk38/llmtopics/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// lruEntry is an object plus its expiry (zero when the backend has no TTL).
type lruEntry struct {
	obj       types.Object
	expiresAt time.Time
}

// LRUBackend implements CacheBackend using LRU eviction policy
type LRUBackend struct {
	mu    *sync.RWMutex
	cache *lru.Cache[string, lruEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewLRUBackend creates a new LRU backend
func NewLRUBackend(config types.BackendConfig) (*LRUBackend, error) {
	if config.Capacity <= 0 {
		return nil, errors.New("LRU capacity must be positive")
	}
	lruCache, err := lru.New[string, lruEntry](config.Capacity)
	if err != nil {
		return nil, err
	}

	return &LRUBackend{
		mu:    &sync.RWMutex{},
		cache: lruCache,
		ttl:   config.TTL,
		now:   time.Now,
	}, nil
}

// Set stores an object in the LRU cache
func (b *LRUBackend) Set(ctx context.Context, key string, obj types.Object) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := lruEntry{obj: obj}
	if b.ttl > 0 {
		entry.expiresAt = b.now().Add(b.ttl)
	}
	b.cache.Add(key, entry)
	return nil
}

// Get retrieves an object from the LRU cache. Expired entries are removed
// and reported as missing.
func (b *LRUBackend) Get(ctx context.Context, key string) (types.Object, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if b.expired(entry) {
		b.cache.Remove(key)
		return nil, false, nil
	}
	return entry.obj, true, nil
}

func (b *LRUBackend) expired(entry lruEntry) bool {
	return !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt)
}

// Delete removes an object from the LRU cache
func (b *LRUBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Remove(key)
	return nil
}

// Contains checks if a live key exists in the LRU cache
func (b *LRUBackend) Contains(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.cache.Peek(key)
	return ok && !b.expired(entry), nil
}

// Flush clears all entries from the LRU cache
func (b *LRUBackend) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Purge()
	return nil
}

// Len returns the number of entries in the LRU cache
func (b *LRUBackend) Len(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.cache.Len(), nil
}

// Close closes the LRU backend (no-op for in-memory)
func (b *LRUBackend) Close() error {
	return nil
}
