package detector

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultCacheCapacity = 10_000

// Cache is a bounded in-memory set for fast duplicate rejection. It is a
// latency optimization only; the database unique constraint stays
// authoritative. On overflow the whole cache is cleared; correctness
// survives because a miss just falls through to the datastore.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]struct{}
	capacity int
	logger   *logrus.Logger
}

func NewCache(capacity int, logger *logrus.Logger) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		entries:  make(map[string]struct{}),
		capacity: capacity,
		logger:   logger,
	}
}

// cacheKey keys on symbol plus millisecond timestamp so a legitimately
// re-listed symbol with a distinct listing time is not a false duplicate.
func cacheKey(symbol string, listedAt time.Time) string {
	return fmt.Sprintf("%s:%d", symbol, listedAt.UnixMilli())
}

func (c *Cache) Contains(symbol string, listedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[cacheKey(symbol, listedAt)]
	return ok
}

func (c *Cache) Insert(symbol string, listedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		c.logger.WithField("capacity", c.capacity).Warn("Listing cache full, clearing")
		c.entries = make(map[string]struct{})
	}
	c.entries[cacheKey(symbol, listedAt)] = struct{}{}
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
