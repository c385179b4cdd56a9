package extract

import (
	"context"
	"sync"
)

// MemoryCache is an in-memory Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]ParsedDocument
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]ParsedDocument)}
}

// Get returns the cached parse for a content hash, if present.
func (c *MemoryCache) Get(ctx context.Context, contentHash string) (ParsedDocument, bool, error) {
	if err := ctx.Err(); err != nil {
		return ParsedDocument{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.data[contentHash]
	return doc, ok, nil
}

// Put upserts a parse result.
func (c *MemoryCache) Put(ctx context.Context, contentHash string, doc ParsedDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[contentHash] = doc
	return nil
}
