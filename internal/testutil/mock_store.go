package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/developingchet/pagesmith/internal/storage"
)

// MockStore implements storage.PageStore, storage.WindowStore and
// storage.VisitStore with in-memory maps for testing.
// All methods are safe for concurrent use.
type MockStore struct {
	mu     sync.Mutex
	pages  map[string]storage.PageEntry
	rate   map[string][]int64 // key -> Unix-nano timestamps
	visits []storage.Visit

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error
	calls  map[string]int
}

// NewMockStore returns a zero-state MockStore ready for use.
func NewMockStore() *MockStore {
	return &MockStore{
		pages:  make(map[string]storage.PageEntry),
		rate:   make(map[string][]int64),
		errors: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// SetError injects an error to be returned on the next call to the named method.
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// Calls returns how many times the named method was invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockStore) popError(method string) error {
	m.calls[method]++
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

// --- Pages ------------------------------------------------------------------

func (m *MockStore) GetPage(_ context.Context, path string) (*storage.PageEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("GetPage"); err != nil {
		return nil, err
	}
	entry, ok := m.pages[path]
	if !ok {
		return nil, nil
	}
	cp := entry
	return &cp, nil
}

func (m *MockStore) PutPage(_ context.Context, entry storage.PageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("PutPage"); err != nil {
		return err
	}
	m.pages[entry.Path] = entry
	return nil
}

func (m *MockStore) DeletePage(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("DeletePage"); err != nil {
		return err
	}
	delete(m.pages, path)
	return nil
}

func (m *MockStore) CountPages(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("CountPages"); err != nil {
		return 0, err
	}
	return len(m.pages), nil
}

func (m *MockStore) EvictOldest(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("EvictOldest"); err != nil {
		return "", err
	}
	var oldest string
	var oldestAt time.Time
	for p, e := range m.pages {
		if oldest == "" || e.CreatedAt.Before(oldestAt) {
			oldest, oldestAt = p, e.CreatedAt
		}
	}
	if oldest != "" {
		delete(m.pages, oldest)
	}
	return oldest, nil
}

func (m *MockStore) PruneExpiredPages(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("PruneExpiredPages"); err != nil {
		return 0, err
	}
	pruned := 0
	for p, e := range m.pages {
		if e.CreatedAt.Before(cutoff) {
			delete(m.pages, p)
			pruned++
		}
	}
	return pruned, nil
}

// Paths returns the cached paths in sorted order.
func (m *MockStore) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pages))
	for p := range m.pages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// --- Crawler windows --------------------------------------------------------

func (m *MockStore) RateGate(key string, now time.Time, window time.Duration, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("RateGate"); err != nil {
		return false, err
	}
	if max <= 0 {
		return true, nil
	}
	cutoff := now.Add(-window).UnixNano()
	ts := m.rate[key]

	// Prune old
	pruned := ts[:0]
	for _, t := range ts {
		if t >= cutoff {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= max {
		m.rate[key] = pruned
		return false, nil
	}
	m.rate[key] = append(pruned, now.UnixNano())
	return true, nil
}

func (m *MockStore) PruneRateWindows(now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("PruneRateWindows"); err != nil {
		return 0, err
	}
	cutoff := now.Add(-window).UnixNano()
	removed := 0
	for key, ts := range m.rate {
		pruned := ts[:0]
		for _, t := range ts {
			if t >= cutoff {
				pruned = append(pruned, t)
			}
		}
		if len(pruned) == 0 {
			delete(m.rate, key)
			removed++
		} else {
			m.rate[key] = pruned
		}
	}
	return removed, nil
}

func (m *MockStore) CountRateWindows() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("CountRateWindows"); err != nil {
		return 0, err
	}
	return len(m.rate), nil
}

// --- Visits -----------------------------------------------------------------

func (m *MockStore) RecordVisit(_ context.Context, v storage.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("RecordVisit"); err != nil {
		return err
	}
	m.visits = append(m.visits, v)
	return nil
}

func (m *MockStore) SummarizeVisits(_ context.Context, since time.Time, limit int) (storage.VisitSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := storage.VisitSummary{PageViews: make(map[string]int)}
	if err := m.popError("SummarizeVisits"); err != nil {
		return summary, err
	}
	referrers := make(map[string]int)
	terms := make(map[string]int)
	for _, v := range m.visits {
		if v.VisitedAt.Before(since) {
			continue
		}
		summary.TotalViews++
		summary.PageViews[v.Path]++
		if v.Referrer != "" {
			referrers[v.Referrer]++
		}
		if v.SearchTerm != "" {
			terms[v.SearchTerm]++
		}
	}
	summary.TopReferrers = topCounts(referrers, limit)
	summary.TopSearchTerms = topCounts(terms, limit)
	return summary, nil
}

// Visits returns a copy of every recorded visit.
func (m *MockStore) Visits() []storage.Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Visit(nil), m.visits...)
}

func topCounts(counts map[string]int, limit int) []storage.Count {
	out := make([]storage.Count, 0, len(counts))
	for v, n := range counts {
		out = append(out, storage.Count{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MockStore) Close() error {
	return nil
}
