// Package cache is a two-tier TTL cache: an in-process map in front of an
// optional persistent Store. Persistent-tier failures never reach callers.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/insights/models"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Store is the persistent tier. Values are opaque JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Entry is a cached payload together with the time it was written.
type Entry[T any] struct {
	Key      string    `json:"key"`
	Payload  T         `json:"payload"`
	StoredAt time.Time `json:"storedAt"`
}

// Options configures a Cache. TTL is required; a nil Store disables tier 2.
type Options struct {
	Name       string
	TTL        time.Duration
	Clock      Clock
	Store      Store
	Logger     logrus.FieldLogger
	MaxEntries int
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Name          string        `json:"name"`
	Entries       int           `json:"entries"`
	TTL           time.Duration `json:"ttl"`
	Hits          uint64        `json:"hits"`
	Tier2Hits     uint64        `json:"tier2Hits"`
	Misses        uint64        `json:"misses"`
	StorageErrors uint64        `json:"storageErrors"`
}

// Cache holds payloads of type T keyed by normalized cache keys.
type Cache[T any] struct {
	name       string
	ttl        time.Duration
	now        Clock
	store      Store
	log        logrus.FieldLogger
	maxEntries int

	mu      sync.RWMutex
	entries map[string]Entry[T]

	hits          atomic.Uint64
	tier2Hits     atomic.Uint64
	misses        atomic.Uint64
	storageErrors atomic.Uint64
}

// New builds a Cache. Defaults: wall clock, standard logrus logger, 1000 tier-1 entries.
func New[T any](opts Options) *Cache[T] {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	return &Cache[T]{
		name:       opts.Name,
		ttl:        opts.TTL,
		now:        opts.Clock,
		store:      opts.Store,
		log:        opts.Logger.WithField("cache", opts.Name),
		maxEntries: opts.MaxEntries,
		entries:    make(map[string]Entry[T]),
	}
}

// TTL returns the configured time-to-live.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

func (c *Cache[T]) fresh(e Entry[T], now time.Time) bool {
	return now.Sub(e.StoredAt) < c.ttl
}

// Get returns the entry for key when one exists in either tier and is younger
// than the TTL. A tier-2 hit is promoted into tier 1.
func (c *Cache[T]) Get(ctx context.Context, key string) (Entry[T], bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.fresh(e, now) {
		c.hits.Add(1)
		return e, true
	}

	if e, ok := c.loadTier2(ctx, key, now); ok {
		c.mu.Lock()
		// A Put may have landed while tier 2 was read; keep the newer entry.
		if cur, ok := c.entries[key]; ok && !cur.StoredAt.Before(e.StoredAt) {
			e = cur
		} else {
			c.entries[key] = e
		}
		c.mu.Unlock()
		c.hits.Add(1)
		c.tier2Hits.Add(1)
		return e, true
	}

	c.misses.Add(1)
	return Entry[T]{}, false
}

func (c *Cache[T]) loadTier2(ctx context.Context, key string, now time.Time) (Entry[T], bool) {
	if c.store == nil {
		return Entry[T]{}, false
	}
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.storageFailed(&models.StorageError{Op: "get", Key: key, Err: err})
		return Entry[T]{}, false
	}
	if !found {
		return Entry[T]{}, false
	}
	var e Entry[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		c.storageFailed(&models.StorageError{Op: "decode", Key: key, Err: err})
		return Entry[T]{}, false
	}
	if !c.fresh(e, now) {
		return Entry[T]{}, false
	}
	return e, true
}

// Put writes payload to both tiers, replacing any existing entry.
func (c *Cache[T]) Put(ctx context.Context, key string, payload T) Entry[T] {
	e := Entry[T]{Key: key, Payload: payload, StoredAt: c.now()}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	if c.store != nil {
		raw, err := json.Marshal(e)
		if err != nil {
			c.storageFailed(&models.StorageError{Op: "encode", Key: key, Err: err})
			return e
		}
		if err := c.store.Put(ctx, key, raw); err != nil {
			c.storageFailed(&models.StorageError{Op: "put", Key: key, Err: err})
		}
	}
	return e
}

// Clear removes every key starting with prefix from both tiers.
// An empty prefix clears everything.
func (c *Cache[T]) Clear(ctx context.Context, prefix string) int {
	removed := 0
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeletePrefix(ctx, prefix); err != nil {
			c.storageFailed(&models.StorageError{Op: "clear", Key: prefix, Err: err})
		}
	}
	c.log.WithFields(logrus.Fields{"prefix": prefix, "removed": removed}).Info("cache cleared")
	return removed
}

// Len returns the number of tier-1 entries, expired ones included.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops expired tier-1 entries, then the oldest ones while the map is
// over its size limit. Tier 2 is left to expire lazily.
func (c *Cache[T]) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !c.fresh(e, now) {
			delete(c.entries, key)
			removed++
		}
	}

	if len(c.entries) > c.maxEntries {
		type aged struct {
			key      string
			storedAt time.Time
		}
		oldest := make([]aged, 0, len(c.entries))
		for key, e := range c.entries {
			oldest = append(oldest, aged{key, e.StoredAt})
		}
		sort.Slice(oldest, func(i, j int) bool {
			return oldest[i].storedAt.Before(oldest[j].storedAt)
		})
		for i := 0; i < len(oldest)-c.maxEntries; i++ {
			delete(c.entries, oldest[i].key)
			removed++
		}
	}
	return removed
}

// RunCleanup purges on every tick until ctx is done.
func (c *Cache[T]) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				c.log.WithField("removed", n).Debug("cache purge")
			}
		}
	}
}

func (c *Cache[T]) Stats() Stats {
	return Stats{
		Name:          c.name,
		Entries:       c.Len(),
		TTL:           c.ttl,
		Hits:          c.hits.Load(),
		Tier2Hits:     c.tier2Hits.Load(),
		Misses:        c.misses.Load(),
		StorageErrors: c.storageErrors.Load(),
	}
}

func (c *Cache[T]) storageFailed(err *models.StorageError) {
	c.storageErrors.Add(1)
	c.log.WithError(err).Warn("persistent cache tier unavailable, continuing with memory tier")
}
