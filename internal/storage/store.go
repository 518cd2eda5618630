package storage

import (
	"context"
	"time"
)

// PageEntry is a rendered page cached under its exact request path.
type PageEntry struct {
	Path      string
	Content   string
	CreatedAt time.Time
}

// PageStore persists cached pages. Get returns (nil, nil) when the path is absent.
type PageStore interface {
	GetPage(ctx context.Context, path string) (*PageEntry, error)
	PutPage(ctx context.Context, entry PageEntry) error
	DeletePage(ctx context.Context, path string) error
	CountPages(ctx context.Context) (int, error)

	// EvictOldest deletes the entry with the earliest CreatedAt and returns its
	// path, or "" when the store is empty.
	EvictOldest(ctx context.Context) (string, error)

	// PruneExpiredPages deletes entries created before cutoff.
	PruneExpiredPages(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// WindowStore keeps per-key sliding windows of request timestamps.
type WindowStore interface {
	// RateGate purges timestamps older than now-window, then admits and records
	// now when fewer than max remain. Denied attempts are not recorded.
	RateGate(key string, now time.Time, window time.Duration, max int) (bool, error)

	// PruneRateWindows purges stale timestamps and deletes keys whose window
	// became empty. Returns the number of keys removed.
	PruneRateWindows(now time.Time, window time.Duration) (int, error)

	// CountRateWindows returns the number of keys with a stored window.
	CountRateWindows() (int, error)
}

// Visit is one analytics page-view record.
type Visit struct {
	ID         string
	Path       string
	Referrer   string
	SearchTerm string
	UserAgent  string
	IPAddress  string
	VisitedAt  time.Time
}

// Count pairs a value (referrer, search term) with its number of visits.
type Count struct {
	Value string
	Count int
}

// VisitSummary aggregates visits since a point in time.
type VisitSummary struct {
	TotalViews     int
	PageViews      map[string]int
	TopReferrers   []Count
	TopSearchTerms []Count
}

// VisitStore persists analytics records.
type VisitStore interface {
	RecordVisit(ctx context.Context, v Visit) error
	SummarizeVisits(ctx context.Context, since time.Time, limit int) (VisitSummary, error)
	Close() error
}
