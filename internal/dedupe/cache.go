// ABOUTME: TTL cache of recently seen message IDs
// ABOUTME: Guards against broker redelivery around reconnect and resubscribe

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers which server-assigned message IDs have already been
// dispatched. Resubscribing after a reconnect can replay frames the
// session already holds; checking the cache keeps those replays out of
// the message list.
//
// Entries expire after a TTL and the cache is size-bounded, evicting
// the oldest ID first.
type Cache struct {
	mu      sync.Mutex
	seen    map[int64]*entry
	order   *list.List // IDs in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine sweeps expired entries until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[int64]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen atomically checks whether the message ID was dispatched within
// the TTL and records it if not. Returns true for a duplicate.
func (c *Cache) Seen(messageID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[messageID]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.markLocked(messageID)
	return false
}

func (c *Cache) markLocked(messageID int64) {
	now := time.Now()

	if e, ok := c.seen[messageID]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[messageID] = &entry{
		seenAt:  now,
		element: c.order.PushBack(messageID),
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(int64)
	c.order.Remove(front)
	delete(c.seen, id)
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.seen {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, id)
		}
	}
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
