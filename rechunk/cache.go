package rechunk

import (
	"context"
	"sync"
)

// sourceCache holds decoded source chunks shared read-only between
// workers, evicting in FIFO order once more than max chunks are resident.
// Entries are filled under a sync.Once so each source chunk is decoded at
// most once while it stays in the window.
type sourceCache struct {
	fetch func(ctx context.Context, ordinal int) ([]byte, error)
	max   int

	mu      sync.Mutex
	entries map[int]*cacheEntry
	order   []int
}

type cacheEntry struct {
	once sync.Once
	data []byte
	err  error
}

func newSourceCache(max int, fetch func(ctx context.Context, ordinal int) ([]byte, error)) *sourceCache {
	if max < 1 {
		max = 1
	}
	return &sourceCache{
		fetch:   fetch,
		max:     max,
		entries: make(map[int]*cacheEntry),
	}
}

// get returns the decoded chunk for ordinal. The buffer is immutable and
// must not be modified by the caller.
func (c *sourceCache) get(ctx context.Context, ordinal int) ([]byte, error) {
	c.mu.Lock()
	e, ok := c.entries[ordinal]
	if !ok {
		e = &cacheEntry{}
		c.entries[ordinal] = e
		c.order = append(c.order, ordinal)
		for len(c.order) > c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			if oldest != ordinal {
				delete(c.entries, oldest)
			}
		}
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.data, e.err = c.fetch(ctx, ordinal)
	})
	return e.data, e.err
}
