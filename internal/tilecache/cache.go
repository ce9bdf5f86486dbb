// Package tilecache implements the byte-quota-bound tile cache. It keeps
// an in-memory LRU index over a durable store and evicts oldest-accessed
// tiles synchronously whenever the quota would be exceeded.
package tilecache

import (
	"container/list"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidecharts/tilecache/internal/geo"
	"github.com/tidecharts/tilecache/internal/repository/store"
	"github.com/tidecharts/tilecache/pkg/logger"
	"github.com/tidecharts/tilecache/pkg/metrics"
)

// Key identifies a cached tile image.
type Key struct {
	Provider string
	Z        int
	X        int
	Y        int
}

// NewKey builds a canonical key, wrapping x around the antimeridian.
// The flag is false when the tile cannot exist at this zoom.
func NewKey(provider string, z, x, y int) (Key, bool) {
	nx, ny, ok := geo.Normalize(z, x, y)
	if !ok {
		return Key{}, false
	}
	return Key{Provider: provider, Z: z, X: nx, Y: ny}, true
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Provider, k.Z, k.X, k.Y)
}

// Entry is a cached tile as returned to readers.
type Entry struct {
	Key         Key
	Data        []byte
	ContentType string
	Size        int64
	LastAccess  time.Time
}

// Stats is a point-in-time snapshot of cache accounting.
type Stats struct {
	TotalBytes int64  `json:"total_bytes"`
	Entries    int    `json:"entries"`
	MaxBytes   int64  `json:"max_bytes"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

type lruItem struct {
	key    Key
	size   int64
	access time.Time
}

// Cache is safe for concurrent use; every mutation is applied under one
// mutex so a concurrent Get never observes a partial entry.
type Cache struct {
	mu         sync.Mutex
	store      store.Store
	logger     logger.Logger
	maxBytes   int64
	totalBytes int64
	lru        *list.List // front = most recently used
	index      map[string]*list.Element
	hits       uint64
	misses     uint64
	evictions  uint64
	now        func() time.Time
}

// New builds a cache over the given store and rebuilds the LRU index
// from whatever the store already holds, oldest access first.
func New(st store.Store, maxBytes int64, l logger.Logger) (*Cache, error) {
	c := &Cache{
		store:    st,
		logger:   l,
		maxBytes: maxBytes,
		lru:      list.New(),
		index:    make(map[string]*list.Element),
		now:      time.Now,
	}

	entries, err := st.Entries()
	if err != nil {
		return nil, fmt.Errorf("rebuild cache index: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	for _, e := range entries {
		key, ok := parseKey(e.Key)
		if !ok {
			l.Warn("dropping unparseable cache key", "key", e.Key)
			continue
		}
		el := c.lru.PushFront(&lruItem{key: key, size: e.Size, access: e.LastAccess})
		c.index[e.Key] = el
		c.totalBytes += e.Size
	}

	c.evictLocked()
	metrics.CacheBytes.Set(float64(c.totalBytes))

	l.Info("tile cache initialized", "entries", c.lru.Len(), "total_bytes", c.totalBytes, "max_bytes", maxBytes)

	return c, nil
}

// Get returns the cached tile for key. Storage errors degrade to a miss.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.index[key.String()]
	if !exists {
		c.miss()
		return Entry{}, false
	}

	data, ok, err := c.store.Get(key.String())
	if err != nil || !ok {
		if err != nil {
			c.logger.Error("cache read failed, treating as miss", "key", key.String(), "error", err)
		}
		// Index out of sync with the store: drop the stale item.
		c.removeElementLocked(el, false)
		c.miss()
		return Entry{}, false
	}

	item := el.Value.(*lruItem)
	item.access = c.now()
	c.lru.MoveToFront(el)
	if err := c.store.Touch(key.String(), item.access); err != nil {
		c.logger.Warn("cache touch failed", "key", key.String(), "error", err)
	}

	c.hits++
	metrics.CacheHits.Inc()

	return Entry{
		Key:         key,
		Data:        data,
		ContentType: http.DetectContentType(data),
		Size:        item.size,
		LastAccess:  item.access,
	}, true
}

// Put stores or overwrites a tile, then evicts oldest-accessed entries
// until the quota is satisfied. The new entry is always admitted, even
// when it alone exceeds the quota.
func (c *Cache) Put(key Key, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	access := c.now()
	if err := c.store.Set(key.String(), data, access); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}

	size := int64(len(data))
	if el, exists := c.index[key.String()]; exists {
		item := el.Value.(*lruItem)
		c.totalBytes += size - item.size
		item.size = size
		item.access = access
		c.lru.MoveToFront(el)
	} else {
		el := c.lru.PushFront(&lruItem{key: key, size: size, access: access})
		c.index[key.String()] = el
		c.totalBytes += size
	}

	c.evictLocked()
	metrics.CacheBytes.Set(float64(c.totalBytes))

	return nil
}

// Remove deletes a tile. Removing an absent key is a no-op.
func (c *Cache) Remove(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.index[key.String()]
	if !exists {
		return nil
	}
	c.removeElementLocked(el, false)
	metrics.CacheBytes.Set(float64(c.totalBytes))
	return c.store.Delete(key.String())
}

// Clear drops every entry and resets the hit/miss counters.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	c.lru.Init()
	c.index = make(map[string]*list.Element)
	c.totalBytes = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	metrics.CacheBytes.Set(0)
	return nil
}

// SetMaxBytes updates the quota and evicts immediately if now over budget.
func (c *Cache) SetMaxBytes(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxBytes = n
	c.evictLocked()
	metrics.CacheBytes.Set(float64(c.totalBytes))
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		TotalBytes: c.totalBytes,
		Entries:    c.lru.Len(),
		MaxBytes:   c.maxBytes,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

func (c *Cache) miss() {
	c.misses++
	metrics.CacheMisses.Inc()
}

// evictLocked drops oldest-accessed entries until totalBytes fits the
// quota or a single entry remains. Callers must hold c.mu.
func (c *Cache) evictLocked() {
	for c.totalBytes > c.maxBytes && c.lru.Len() > 1 {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		item := oldest.Value.(*lruItem)
		c.logger.Debug("evicting tile", "key", item.key.String(), "size", item.size)
		if err := c.store.Delete(item.key.String()); err != nil {
			c.logger.Error("evict delete failed", "key", item.key.String(), "error", err)
		}
		c.removeElementLocked(oldest, true)
	}
}

func (c *Cache) removeElementLocked(el *list.Element, evicted bool) {
	item := c.lru.Remove(el).(*lruItem)
	delete(c.index, item.key.String())
	c.totalBytes -= item.size
	if evicted {
		c.evictions++
		metrics.CacheEvictions.Inc()
	}
}

// parseKey reverses Key.String. The provider segment may itself contain
// slashes, so the coordinates are taken from the right.
func parseKey(s string) (Key, bool) {
	parts := strings.Split(s, "/")
	if len(parts) < 4 {
		return Key{}, false
	}
	z, errZ := strconv.Atoi(parts[len(parts)-3])
	x, errX := strconv.Atoi(parts[len(parts)-2])
	y, errY := strconv.Atoi(parts[len(parts)-1])
	if errZ != nil || errX != nil || errY != nil {
		return Key{}, false
	}
	provider := strings.Join(parts[:len(parts)-3], "/")
	if provider == "" {
		return Key{}, false
	}
	return Key{Provider: provider, Z: z, X: x, Y: y}, true
}
