// Package history keeps the recent messages of every room in memory.
// It is a cache only; the durable message store stays authoritative.
package history

import (
	"sync"

	"github.com/webitel/im-chat-hub/internal/domain/model"
)

const DefaultCapacity = 50

// Cache is a set of bounded per-room FIFO buckets.
type Cache struct {
	capacity int

	mu      sync.Mutex
	buckets map[string]*bucket
}

// bucket is a fixed-size ring. head points at the oldest entry.
type bucket struct {
	items []model.ChatMessage
	head  int
	size  int
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		buckets:  make(map[string]*bucket),
	}
}

func (c *Cache) Capacity() int { return c.capacity }

// Ensure creates an empty bucket for room if none exists yet.
func (c *Cache) Ensure(room string) {
	c.mu.Lock()
	c.bucketLocked(room)
	c.mu.Unlock()
}

// Append stores msg in its room bucket, evicting the oldest entry when full.
func (c *Cache) Append(msg model.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketLocked(msg.Room)
	if b.size < c.capacity {
		b.items[(b.head+b.size)%c.capacity] = msg
		b.size++
		return
	}
	// [FIFO_EVICTION] overwrite the oldest slot and advance.
	b.items[b.head] = msg
	b.head = (b.head + 1) % c.capacity
}

// Snapshot returns a copy of the room's entries, oldest first.
func (c *Cache) Snapshot(room string) []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[room]
	if !ok {
		return []model.ChatMessage{}
	}
	out := make([]model.ChatMessage, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%c.capacity]
	}
	return out
}

func (c *Cache) Len(room string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.buckets[room]; ok {
		return b.size
	}
	return 0
}

func (c *Cache) bucketLocked(room string) *bucket {
	b, ok := c.buckets[room]
	if !ok {
		b = &bucket{items: make([]model.ChatMessage, c.capacity)}
		c.buckets[room] = b
	}
	return b
}
