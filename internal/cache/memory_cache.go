package cache

import (
	"context"
	"sync"
	"time"

	"bakkal/backoffice/internal/domain"
)

type memoryEntry struct {
	value   []domain.CategoryDiscount
	expires time.Time
}

// MemoryDiscountCache is an in-process DiscountCache used when Redis is not configured.
type MemoryDiscountCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryDiscountCache() *MemoryDiscountCache {
	return &MemoryDiscountCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryDiscountCache) Get(_ context.Context, partition string) ([]domain.CategoryDiscount, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[partition]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, partition)
		return nil, false, nil
	}
	return append([]domain.CategoryDiscount(nil), e.value...), true, nil
}

func (c *MemoryDiscountCache) Set(_ context.Context, partition string, value []domain.CategoryDiscount, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: append([]domain.CategoryDiscount(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[partition] = e
	return nil
}

func (c *MemoryDiscountCache) Invalidate(_ context.Context, partition string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, partition)
	return nil
}
