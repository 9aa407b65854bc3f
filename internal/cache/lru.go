package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache bounds the number of cached reports across all users. The least
// recently used entry is evicted first and entries older than ttl read as
// absent. A per-user index keeps InvalidateUser proportional to that user's
// entries.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	byUser  map[string]map[string]*list.Element
	gens    map[string]uint64
	now     func() time.Time

	hits, misses, evictions, expired, stale int64
}

var _ Cache[int] = (*LRUCache[int])(nil)

type entry[T any] struct {
	userID    string
	key       string
	data      T
	expiresAt time.Time
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		byUser:  make(map[string]map[string]*list.Element),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

func (c *LRUCache[T]) Get(userID, key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.byUser[userID][key]
	if !ok {
		c.misses++
		return zero, false
	}

	e := elem.Value.(*entry[T])
	if c.now().After(e.expiresAt) {
		c.remove(elem)
		c.expired++
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.data, true
}

func (c *LRUCache[T]) Set(userID, key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(userID, key, data)
}

func (c *LRUCache[T]) Generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID]
}

func (c *LRUCache[T]) SetIfGeneration(userID, key string, data T, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		c.stale++
		return false
	}
	c.set(userID, key, data)
	return true
}

func (c *LRUCache[T]) set(userID, key string, data T) {
	e := &entry[T]{
		userID:    userID,
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, ok := c.byUser[userID][key]; ok {
		elem.Value = e
		c.order.MoveToFront(elem)
		return
	}

	part, ok := c.byUser[userID]
	if !ok {
		part = make(map[string]*list.Element)
		c.byUser[userID] = part
	}
	part[key] = c.order.PushFront(e)

	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
		c.evictions++
	}
}

func (c *LRUCache[T]) InvalidateUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[userID]++
	part := c.byUser[userID]
	n := len(part)
	for _, elem := range part {
		c.order.Remove(elem)
	}
	delete(c.byUser, userID)
	return n
}

func (c *LRUCache[T]) remove(elem *list.Element) {
	e := elem.Value.(*entry[T])
	part := c.byUser[e.userID]
	delete(part, e.key)
	if len(part) == 0 {
		delete(c.byUser, e.userID)
	}
	c.order.Remove(elem)
}

// CleanExpired removes all expired entries and returns how many went away.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*entry[T]).expiresAt) {
			c.remove(elem)
			removed++
		}
		elem = prev
	}
	c.expired += int64(removed)
	return removed
}

func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.order.Len(),
		Users:     len(c.byUser),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Stale:     c.stale,
	}
}
