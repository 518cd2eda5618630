package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketPages   = "pages"
	bucketWindows = "crawler_windows"
)

// BoltStore is the embedded page and crawler-window store.
type BoltStore struct {
	db *bolt.DB
	mu sync.Mutex // guards crawler window read-modify-write
}

// NewBboltStore opens (or creates) a bbolt database at dataDir/pagesmith.db.
func NewBboltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "pagesmith.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketPages, bucketWindows} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// ---- Pages -----------------------------------------------------------------

func (s *BoltStore) GetPage(_ context.Context, path string) (*PageEntry, error) {
	var entry PageEntry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketPages)).Get([]byte(path))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal PageEntry for %s: %w", path, err)
	}
	if !found {
		return nil, nil
	}
	return &entry, nil
}

func (s *BoltStore) PutPage(_ context.Context, entry PageEntry) error {
	entry.CreatedAt = entry.CreatedAt.UTC()
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal PageEntry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPages)).Put([]byte(entry.Path), data)
	})
}

func (s *BoltStore) DeletePage(_ context.Context, path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPages)).Delete([]byte(path))
	})
}

func (s *BoltStore) CountPages(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketPages)).Stats().KeyN
		return nil
	})
	return n, err
}

// pageStamp decodes only the creation time of a stored PageEntry; the
// content field is skipped without being copied out.
type pageStamp struct {
	CreatedAt time.Time
}

func (s *BoltStore) EvictOldest(_ context.Context) (string, error) {
	var evicted string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPages))
		var oldestKey []byte
		var oldest time.Time
		if err := b.ForEach(func(k, v []byte) error {
			var entry pageStamp
			// corrupt entries keep a zero CreatedAt and go first
			_ = msgpack.Unmarshal(v, &entry)
			if oldestKey == nil || entry.CreatedAt.Before(oldest) {
				oldestKey = append([]byte(nil), k...)
				oldest = entry.CreatedAt
			}
			return nil
		}); err != nil {
			return err
		}
		if oldestKey == nil {
			return nil
		}
		evicted = string(oldestKey)
		return b.Delete(oldestKey)
	})
	return evicted, err
}

func (s *BoltStore) PruneExpiredPages(_ context.Context, cutoff time.Time) (int, error) {
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPages))
		var toDelete [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var entry pageStamp
			if err := msgpack.Unmarshal(v, &entry); err != nil {
				return nil // skip corrupt entries
			}
			if entry.CreatedAt.Before(cutoff) {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}

// ---- Crawler windows -------------------------------------------------------

// RateGate implements a sliding-window rate limit backed by bbolt.
// The windows bucket stores a []int64 of Unix nanosecond timestamps per key.
func (s *BoltStore) RateGate(key string, now time.Time, window time.Duration, max int) (bool, error) {
	if max <= 0 {
		return true, nil // unlimited
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var allowed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWindows))
		k := []byte(key)

		var timestamps []int64
		if raw := b.Get(k); raw != nil {
			if err := msgpack.Unmarshal(raw, &timestamps); err != nil {
				return fmt.Errorf("unmarshal window timestamps: %w", err)
			}
		}

		pruned := pruneWindow(timestamps, now.Add(-window).UnixNano())
		if len(pruned) >= max {
			allowed = false
			// Still save pruned slice to keep bucket tidy
			data, err := msgpack.Marshal(pruned)
			if err != nil {
				return err
			}
			return b.Put(k, data)
		}

		allowed = true
		pruned = append(pruned, now.UnixNano())
		data, err := msgpack.Marshal(pruned)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
	return allowed, err
}

func (s *BoltStore) PruneRateWindows(now time.Time, window time.Duration) (int, error) {
	cutoff := now.Add(-window).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWindows))
		var empty [][]byte
		updates := make(map[string][]int64)
		if err := b.ForEach(func(k, v []byte) error {
			var timestamps []int64
			if err := msgpack.Unmarshal(v, &timestamps); err != nil {
				empty = append(empty, append([]byte(nil), k...))
				return nil
			}
			filtered := pruneWindow(timestamps, cutoff)
			switch {
			case len(filtered) == 0:
				empty = append(empty, append([]byte(nil), k...))
			case len(filtered) < len(timestamps):
				updates[string(k)] = filtered
			}
			return nil
		}); err != nil {
			return err
		}
		for k, ts := range updates {
			data, err := msgpack.Marshal(ts)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(k), data); err != nil {
				return err
			}
		}
		for _, k := range empty {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *BoltStore) CountRateWindows() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketWindows)).Stats().KeyN
		return nil
	})
	return n, err
}

// pruneWindow keeps timestamps at or after cutoff, reusing the backing array.
func pruneWindow(timestamps []int64, cutoff int64) []int64 {
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

// ---- Utility ---------------------------------------------------------------

func (s *BoltStore) SizeBytes() (int64, error) {
	info, err := os.Stat(s.db.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
