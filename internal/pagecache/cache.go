// Package pagecache maps request paths to rendered pages with a TTL and a
// maximum key count.
package pagecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/developingchet/pagesmith/internal/storage"
	"github.com/rs/zerolog"
)

// ErrWriteFailed is returned by Set when the page could not be stored. Callers
// treat it as best-effort and still serve the page.
var ErrWriteFailed = errors.New("page cache write failed")

// Options configures a Cache.
type Options struct {
	TTL     time.Duration
	MaxKeys int
	Now     func() time.Time // defaults to time.Now
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Keys      int
	MaxKeys   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Full reports whether a new key would require eviction.
func (s Stats) Full() bool {
	return s.Keys >= s.MaxKeys
}

// Cache is a TTL page cache over a storage.PageStore.
type Cache struct {
	store   storage.PageStore
	ttl     time.Duration
	maxKeys int
	now     func() time.Time
	log     zerolog.Logger

	mu sync.Mutex // serializes the count-evict-put sequence in Set

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New builds a Cache. MaxKeys below 1 is treated as 1.
func New(store storage.PageStore, opts Options, log zerolog.Logger) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxKeys < 1 {
		opts.MaxKeys = 1
	}
	return &Cache{
		store:   store,
		ttl:     opts.TTL,
		maxKeys: opts.MaxKeys,
		now:     opts.Now,
		log:     log,
	}
}

func (c *Cache) expired(e *storage.PageEntry) bool {
	return c.now().Sub(e.CreatedAt) > c.ttl
}

// Get returns live content for path. An expired entry is deleted and reported
// as a miss. Reads never refresh the entry.
func (c *Cache) Get(ctx context.Context, path string) (string, bool) {
	entry, err := c.store.GetPage(ctx, path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("cache: read failed, treating as miss")
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.misses.Add(1)
		return "", false
	}
	if entry == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		c.misses.Add(1)
		return "", false
	}
	if c.expired(entry) {
		c.dropExpired(ctx, path, entry.CreatedAt)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		c.misses.Add(1)
		return "", false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	c.hits.Add(1)
	return entry.Content, true
}

// dropExpired deletes path if it still holds the expired entry created at
// createdAt. A Set that landed after the read keeps its fresh entry.
func (c *Cache) dropExpired(ctx context.Context, path string, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.store.GetPage(ctx, path)
	if err != nil || current == nil {
		return
	}
	if !current.CreatedAt.Equal(createdAt) || !c.expired(current) {
		return
	}
	if err := c.store.DeletePage(ctx, path); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("cache: delete expired entry failed")
	}
}

// Contains reports whether path holds a live entry, without side effects.
func (c *Cache) Contains(ctx context.Context, path string) bool {
	entry, err := c.store.GetPage(ctx, path)
	if err != nil || entry == nil {
		return false
	}
	return !c.expired(entry)
}

// Set upserts content under path. Writing a new key while the cache is at
// MaxKeys first evicts the oldest-created entries.
func (c *Cache) Set(ctx context.Context, path, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.store.GetPage(ctx, path)
	if err != nil {
		// Unknown; assume new so the bound still holds.
		c.log.Debug().Err(err).Str("path", path).Msg("cache: existence check failed")
	}
	if existing == nil {
		if err := c.makeRoom(ctx); err != nil {
			c.log.Error().Err(err).Str("path", path).Msg("cache: eviction failed")
			metrics.CacheWrites.WithLabelValues("error").Inc()
			return ErrWriteFailed
		}
	}

	entry := storage.PageEntry{Path: path, Content: content, CreatedAt: c.now()}
	if err := c.store.PutPage(ctx, entry); err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("cache: write failed")
		metrics.CacheWrites.WithLabelValues("error").Inc()
		return ErrWriteFailed
	}
	metrics.CacheWrites.WithLabelValues("ok").Inc()
	if n, err := c.store.CountPages(ctx); err == nil {
		metrics.CacheKeys.Set(float64(n))
	}
	return nil
}

// makeRoom evicts until one more key fits. Caller holds c.mu.
func (c *Cache) makeRoom(ctx context.Context) error {
	n, err := c.store.CountPages(ctx)
	if err != nil {
		return err
	}
	for ; n >= c.maxKeys; n-- {
		evicted, err := c.store.EvictOldest(ctx)
		if err != nil {
			return err
		}
		if evicted == "" {
			return nil
		}
		c.evictions.Add(1)
		metrics.CacheEvictions.Inc()
		c.log.Debug().Str("path", evicted).Msg("cache: evicted oldest entry")
	}
	return nil
}

// Delete removes path. Missing paths are not an error.
func (c *Cache) Delete(ctx context.Context, path string) error {
	return c.store.DeletePage(ctx, path)
}

// Stats returns the key count and counters. A count error is returned as-is.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		MaxKeys:   c.maxKeys,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	n, err := c.store.CountPages(ctx)
	if err != nil {
		return s, err
	}
	s.Keys = n
	return s, nil
}

// PurgeExpired deletes every entry older than the TTL.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	return c.store.PruneExpiredPages(ctx, c.now().Add(-c.ttl))
}
