package storage

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/gitvault/gitvault/plumbing"
)

const defaultCacheEntries = 512

// ObjectCache is a per-call read-through cache over a backend's loose
// object reads. Read operations within one high-level call share a
// handle; nothing is invalidated because objects are immutable.
type ObjectCache struct {
	mu      sync.Mutex
	backend Backend
	cache   *lru.Cache
}

// NewObjectCache returns a cache handle over b.
func NewObjectCache(b Backend) *ObjectCache {
	return &ObjectCache{
		backend: b,
		cache:   lru.New(defaultCacheEntries),
	}
}

// ReadLoose returns the deflated bytes for oid, consulting the cache
// first.
func (c *ObjectCache) ReadLoose(ctx context.Context, oid plumbing.ObjectID) ([]byte, error) {
	key := oid.String()

	c.mu.Lock()
	if v, ok := c.cache.Get(lru.Key(key)); ok {
		c.mu.Unlock()
		return v.([]byte), nil
	}
	c.mu.Unlock()

	data, err := c.backend.ReadLoose(ctx, oid)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(lru.Key(key), data)
	c.mu.Unlock()
	return data, nil
}
