// Package query caches read results by logical query key and tracks how
// stale they are. Staleness is advisory: Fetch refetches stale entries, Get
// returns whatever is stored.
package query

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"policy-console/internal/logging"
)

// Key identifies a query, e.g. Key{"policy", 7}.
type Key []interface{}

func (k Key) String() string {
	b, _ := json.Marshal([]interface{}(k))
	return string(b)
}

// HasPrefix reports whether k starts with every element of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if (Key{k[i]}).String() != (Key{prefix[i]}).String() {
			return false
		}
	}
	return true
}

// NeverStale keeps an entry fresh until it is invalidated.
const NeverStale time.Duration = -1

type entry struct {
	key         Key
	data        interface{}
	updatedAt   time.Time
	invalidated bool
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
	now     func() time.Time
}

func New() *Cache {
	return &Cache{entries: make(map[string]*entry), now: time.Now}
}

// WithClock swaps the time source; tests use it to age entries.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) Get(key Key) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false
	}
	return e.data, true
}

func (c *Cache) SetData(key Key, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = &entry{key: key, data: data, updatedAt: c.now()}
}

// Update replaces the data under key with fn(old) if an entry exists.
func (c *Cache) Update(key Key, fn func(old interface{}) interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return false
	}
	e.data = fn(e.data)
	e.updatedAt = c.now()
	e.invalidated = false
	return true
}

// Invalidate marks every entry under prefix stale and returns how many
// entries matched. Data stays readable through Get.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.invalidated = true
			n++
		}
	}
	return n
}

// Remove drops every entry under prefix.
func (c *Cache) Remove(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, s)
		}
	}
}

// IsStale reports whether key is missing, invalidated or older than
// staleTime. A zero staleTime makes every entry stale.
func (c *Cache) IsStale(key Key, staleTime time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return true
	}
	return c.isStale(e, staleTime)
}

func (c *Cache) isStale(e *entry, staleTime time.Duration) bool {
	if e.invalidated {
		return true
	}
	if staleTime == NeverStale {
		return false
	}
	return c.now().Sub(e.updatedAt) >= staleTime
}

// Fetch returns the cached value for key while it is fresh, otherwise runs
// fn and stores the result. Concurrent fetches of one key share a single
// call to fn, which runs detached from the cancellation of the caller that
// started it. Errors are not cached.
func Fetch[T any](ctx context.Context, c *Cache, key Key, staleTime time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	id := key.String()

	c.mu.RLock()
	e, ok := c.entries[id]
	if ok && !c.isStale(e, staleTime) {
		if v, typed := e.data.(T); typed {
			c.mu.RUnlock()
			return v, nil
		}
	}
	c.mu.RUnlock()

	// The shared call outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	ch := c.group.DoChan(id, func() (interface{}, error) {
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.SetData(key, v)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		logging.Ctx(ctx).Debug().Str("key", id).Bool("shared", res.Shared).Msg("Query fetched")
		return res.Val.(T), nil
	}
}
