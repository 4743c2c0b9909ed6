package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache кеш внутри процесса с TTL; используется, когда Redis не настроен.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	config  CacheConfig
	now     func() time.Time
	stats   tracker
}

// NewMemoryCache создаёт пустой кеш
func NewMemoryCache(config CacheConfig) *MemoryCache {
	config.applyDefaults()
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		config:  config,
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	defer m.stats.recordLatency(time.Now())

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(entry.expires) {
		m.stats.miss()
		return nil, ErrCacheMiss
	}
	m.stats.hit()
	return append([]byte(nil), entry.value...), nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	defer m.stats.recordLatency(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		value:   append([]byte(nil), value...),
		expires: m.now().Add(m.config.clampTTL(ttl)),
	}
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Len число записей, включая истёкшие
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

func (m *MemoryCache) GetMetrics() CacheMetrics {
	return m.stats.snapshot()
}
