package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Result is what a result lookup produced. Found is false both for unknown
// tasks and for tasks that have not succeeded yet.
type Result struct {
	Payload []byte
	Found   bool
}

type LoadFunc func(ctx context.Context) (Result, error)

// ResultCache memoizes found results by task id. Absent results always go
// back to the store.
type ResultCache struct {
	lru   *expirable.LRU[string, Result]
	group singleflight.Group

	// version is bumped by Invalidate; a load that straddles a bump does not
	// store its result.
	mu      sync.Mutex
	version uint64
}

func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		size = 128
	}
	return &ResultCache{
		lru: expirable.NewLRU[string, Result](size, nil, ttl),
	}
}

func (c *ResultCache) Get(id string) (Result, bool) {
	return c.lru.Get(id)
}

func (c *ResultCache) Put(id string, r Result) {
	c.lru.Add(id, r)
}

func (c *ResultCache) Invalidate(id string) {
	c.mu.Lock()
	c.version++
	c.lru.Remove(id)
	c.mu.Unlock()

	c.group.Forget(id)
}

func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// Load returns the cached entry for id or calls load once for all concurrent
// callers asking for the same id. Only found results are cached, and only when
// no Invalidate ran while load was in flight.
func (c *ResultCache) Load(ctx context.Context, id string, load LoadFunc) (Result, error) {
	if r, ok := c.lru.Get(id); ok {
		return r, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.Lock()
		version := c.version
		c.mu.Unlock()

		r, err := load(ctx)
		if err != nil {
			return Result{}, err
		}
		if r.Found {
			c.mu.Lock()
			if c.version == version {
				c.lru.Add(id, r)
			}
			c.mu.Unlock()
		}
		return r, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}
