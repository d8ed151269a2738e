package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores opaque values for a limited time. A miss is not an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type item struct {
	data       []byte
	expiration time.Time
}

// Memory is a process-local Cache used when no redis is configured.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]item), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	it, found := m.items[key]
	m.mu.RUnlock()

	if !found || !m.now().Before(it.expiration) {
		return nil, false
	}
	return it.data, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	// drop expired entries while we hold the lock anyway
	for k, it := range m.items {
		if !now.Before(it.expiration) {
			delete(m.items, k)
		}
	}
	m.items[key] = item{data: value, expiration: now.Add(ttl)}
}
