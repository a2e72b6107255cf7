package audio

import (
	"container/list"
	"sync"
)

const DefaultCacheSize = 50

// CacheKey identifies synthesized speech by its text and synthesis voice.
type CacheKey struct {
	Text  string
	Voice string
}

type cacheEntry struct {
	key  CacheKey
	clip *Clip
}

// Cache is a bounded clip cache with insertion-order (FIFO) eviction.
// Reads never refresh an entry's position.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[CacheKey]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
	onEvict   func(CacheKey)
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[CacheKey]*list.Element, capacity),
	}
}

// SetEvictHook registers a callback invoked after an entry is evicted for capacity.
func (c *Cache) SetEvictHook(hook func(CacheKey)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = hook
}

func (c *Cache) Get(key CacheKey) (*Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return el.Value.(*cacheEntry).clip, true
}

// Put stores clip under key and takes ownership of one reference.
// Re-putting a key replaces the clip but keeps the original insertion position.
func (c *Cache) Put(key CacheKey, clip *Clip) {
	if clip == nil {
		return
	}

	var (
		released []*Clip
		evicted  []CacheKey
	)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		if entry.clip != clip {
			released = append(released, entry.clip)
			entry.clip = clip
		}
	} else {
		c.entries[key] = c.order.PushBack(&cacheEntry{key: key, clip: clip})
		for c.order.Len() > c.capacity {
			oldest := c.order.Front()
			entry := oldest.Value.(*cacheEntry)
			c.order.Remove(oldest)
			delete(c.entries, entry.key)
			released = append(released, entry.clip)
			evicted = append(evicted, entry.key)
			c.evictions++
		}
	}
	hook := c.onEvict
	c.mu.Unlock()

	for _, clip := range released {
		clip.Release()
	}
	if hook != nil {
		for _, key := range evicted {
			hook(key)
		}
	}
}

// Clear releases every cached clip and empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	clips := make([]*Clip, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		clips = append(clips, el.Value.(*cacheEntry).clip)
	}
	c.order.Init()
	c.entries = make(map[CacheKey]*list.Element, c.capacity)
	c.mu.Unlock()

	for _, clip := range clips {
		clip.Release()
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CacheStats is a snapshot of lookup counters.
type CacheStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.order.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
