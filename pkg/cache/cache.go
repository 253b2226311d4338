// Package cache holds a small bounded memo used to skip re-extracting pages
// whose markup has not changed since the last run.
package cache

import "sync"

// FIFO is a fixed-size map that evicts the oldest inserted key when full.
// It is safe for concurrent use.
type FIFO[K comparable, V any] struct {
	mu    sync.Mutex
	size  int
	order []K
	items map[K]V
}

// New returns a FIFO holding at most size entries. A size below one
// disables caching.
func New[K comparable, V any](size int) *FIFO[K, V] {
	return &FIFO[K, V]{size: size, items: make(map[K]V)}
}

func (c *FIFO[K, V]) Get(k K) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[k]
	return v, ok
}

func (c *FIFO[K, V]) Put(k K, v V) {
	if c == nil || c.size < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[k]; ok {
		c.items[k] = v
		return
	}
	for len(c.order) >= c.size {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
	c.order = append(c.order, k)
	c.items[k] = v
}

func (c *FIFO[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
