package palette

import (
	"sync/atomic"

	"github.com/golang/groupcache/singleflight"
	"github.com/patrickmn/go-cache"
)

// indexCache holds built Indexes by the name they were requested as. Entries
// never expire; they're only dropped by flush.
//
// It can safely be used by multiple goroutines.
type indexCache struct {
	entries *cache.Cache
	group   singleflight.Group

	// generation is bumped by every flush, so a build that started before
	// a flush doesn't store a stale Index after it.
	generation atomic.Uint64
}

func newIndexCache() *indexCache {
	return &indexCache{
		entries: cache.New(cache.NoExpiration, 0),
	}
}

// get returns the cached Index for name, calling build to create it if
// there isn't one. Concurrent calls for the same name share one build.
// Failed builds aren't cached.
func (c *indexCache) get(name string, build func() (*Index, error)) (*Index, error) {
	if cached, ok := c.entries.Get(name); ok {
		if idx, ok := cached.(*Index); ok {
			return idx, nil
		}
	}
	gen := c.generation.Load()
	res, err := c.group.Do(name, func() (interface{}, error) {
		idx, err := build()
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.entries.Set(name, idx, cache.NoExpiration)
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Index), nil
}

func (c *indexCache) flush() {
	c.generation.Add(1)
	c.entries.Flush()
}

func (c *indexCache) len() int {
	return c.entries.ItemCount()
}
