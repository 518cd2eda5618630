package admission

import (
	"sync"
	"time"
)

// MemoryWindows is the default in-process crawler window store. It satisfies
// storage.WindowStore and never returns an error.
type MemoryWindows struct {
	mu   sync.Mutex
	keys map[string][]int64 // key -> Unix-nano timestamps, oldest first
}

// NewMemoryWindows returns an empty store.
func NewMemoryWindows() *MemoryWindows {
	return &MemoryWindows{keys: make(map[string][]int64)}
}

// RateGate purges stale timestamps for key and admits when fewer than max
// remain. Denied attempts are not recorded.
func (m *MemoryWindows) RateGate(key string, now time.Time, window time.Duration, max int) (bool, error) {
	if max <= 0 {
		return true, nil // unlimited
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := prune(m.keys[key], now.Add(-window).UnixNano())
	if len(kept) >= max {
		m.keys[key] = kept
		return false, nil
	}
	m.keys[key] = append(kept, now.UnixNano())
	return true, nil
}

// PruneRateWindows drops stale timestamps and deletes keys left empty.
func (m *MemoryWindows) PruneRateWindows(now time.Time, window time.Duration) (int, error) {
	cutoff := now.Add(-window).UnixNano()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, ts := range m.keys {
		kept := prune(ts, cutoff)
		if len(kept) == 0 {
			delete(m.keys, key)
			removed++
			continue
		}
		m.keys[key] = kept
	}
	return removed, nil
}

func (m *MemoryWindows) CountRateWindows() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys), nil
}

func prune(ts []int64, cutoff int64) []int64 {
	kept := ts[:0]
	for _, t := range ts {
		if t >= cutoff {
			kept = append(kept, t)
		}
	}
	return kept
}
