// Package analytics counts page views in memory and hands durable visit
// records to the worker pool.
package analytics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/developingchet/pagesmith/internal/admission"
	"github.com/developingchet/pagesmith/internal/pool"
	"github.com/developingchet/pagesmith/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopLimit bounds the referrer and search-term lists of a summary.
const TopLimit = 10

// searchParams are the referrer query keys that carry a search term, in
// lookup order (Google/Bing, Yahoo, Yandex, Baidu).
var searchParams = []string{"q", "query", "p", "text", "wd"}

// Snapshot is the JSON shape of /api/stats.
type Snapshot struct {
	TotalVisits int            `json:"totalVisits"`
	PageVisits  map[string]int `json:"pageVisits"`
}

// Counter is the process-lifetime visit counter.
type Counter struct {
	mu    sync.Mutex
	total int
	pages map[string]int
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{pages: make(map[string]int)}
}

// Record counts one view of path.
func (c *Counter) Record(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.pages[path]++
}

// Get returns a copy of the current counters.
func (c *Counter) Get() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	pages := make(map[string]int, len(c.pages))
	for k, v := range c.pages {
		pages[k] = v
	}
	return Snapshot{TotalVisits: c.total, PageVisits: pages}
}

// Enqueuer accepts background jobs without blocking.
type Enqueuer interface {
	Enqueue(job pool.Job) bool
}

// Recorder counts every served page and, when a visit store is configured,
// queues a durable visit record.
type Recorder struct {
	counter *Counter
	queue   Enqueuer
	store   storage.VisitStore
	now     func() time.Time
	log     zerolog.Logger
}

// NewRecorder wires a recorder. queue and store may both be nil, in which
// case only the in-memory counter is kept.
func NewRecorder(counter *Counter, queue Enqueuer, store storage.VisitStore, log zerolog.Logger) *Recorder {
	return &Recorder{counter: counter, queue: queue, store: store, now: time.Now, log: log}
}

// Counter exposes the in-memory counter.
func (r *Recorder) Counter() *Counter { return r.counter }

// Record counts a successful page serve for req.
func (r *Recorder) Record(req *http.Request) {
	r.counter.Record(req.URL.Path)
	if r.queue == nil {
		return
	}
	v := BuildVisit(req, r.now())
	if !r.queue.Enqueue(pool.Job{Kind: pool.KindVisit, Visit: v}) {
		r.log.Debug().Str("path", v.Path).Msg("analytics: visit not queued")
	}
}

// Summary aggregates the last days of traffic. Without a visit store it is
// built from the in-memory counter.
func (r *Recorder) Summary(ctx context.Context, days int) (storage.VisitSummary, error) {
	if days < 1 {
		days = 30
	}
	if r.store == nil {
		snap := r.counter.Get()
		return storage.VisitSummary{TotalViews: snap.TotalVisits, PageViews: snap.PageVisits}, nil
	}
	since := r.now().Add(-time.Duration(days) * 24 * time.Hour)
	s, err := r.store.SummarizeVisits(ctx, since, TopLimit)
	if err != nil {
		return storage.VisitSummary{}, fmt.Errorf("summarize visits: %w", err)
	}
	return s, nil
}

// BuildVisit extracts the analytics record for req.
func BuildVisit(req *http.Request, now time.Time) storage.Visit {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	ip, _ := admission.ClientIP(req.RemoteAddr)
	ref := req.Referer()
	return storage.Visit{
		ID:         id.String(),
		Path:       req.URL.Path,
		Referrer:   ref,
		SearchTerm: SearchTerm(ref),
		UserAgent:  req.UserAgent(),
		IPAddress:  ip,
		VisitedAt:  now.UTC(),
	}
}

// SearchTerm returns the search query carried by a search-engine referrer.
func SearchTerm(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, key := range searchParams {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
