package site

import (
	"context"
	"time"

	"github.com/developingchet/pagesmith/internal/admission"
	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/developingchet/pagesmith/internal/pagecache"
	"github.com/developingchet/pagesmith/internal/pool"
	"github.com/rs/zerolog"
)

// SweepResult reports what one janitor pass removed.
type SweepResult struct {
	PagesPurged   int
	WindowsPruned int
}

// Janitor performs periodic housekeeping: purging expired pages, pruning
// crawler windows, updating gauges.
type Janitor struct {
	cache      *pagecache.Cache
	admission  *admission.Controller
	sizer      Sizer
	workerPool *pool.Pool
	interval   time.Duration
	log        zerolog.Logger
}

// NewJanitor creates a Janitor. admission, sizer and workerPool may be nil.
func NewJanitor(cache *pagecache.Cache, adm *admission.Controller, sizer Sizer,
	workerPool *pool.Pool, interval time.Duration, log zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{
		cache:      cache,
		admission:  adm,
		sizer:      sizer,
		workerPool: workerPool,
		interval:   interval,
		log:        log,
	}
}

// Run executes the janitor loop until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs a single housekeeping pass.
func (j *Janitor) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	purged, err := j.cache.PurgeExpired(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: purge expired pages failed")
	} else if purged > 0 {
		res.PagesPurged = purged
		j.log.Info().Int("count", purged).Msg("janitor: purged expired pages")
	}

	var st pagecache.Stats
	if cur, err := j.cache.Stats(ctx); err == nil {
		st = cur
		metrics.CacheKeys.Set(float64(st.Keys))
	}

	if j.admission != nil {
		pruned, err := j.admission.Prune()
		if err != nil {
			j.log.Warn().Err(err).Msg("janitor: prune crawler windows failed")
		} else {
			res.WindowsPruned = pruned
		}
	}

	// Update DB size gauge
	if j.sizer != nil {
		size, err := j.sizer.SizeBytes()
		if err != nil {
			j.log.Warn().Err(err).Msg("janitor: read db size failed")
		} else {
			metrics.DBSizeBytes.Set(float64(size))
		}
	}

	// Update queue depth gauge
	if j.workerPool != nil {
		metrics.WorkerQueueDepth.Set(float64(j.workerPool.Depth()))
	}

	j.log.Debug().
		Int("keys", st.Keys).
		Int64("hits", st.Hits).
		Int64("misses", st.Misses).
		Int64("evictions", st.Evictions).
		Msg("janitor: tick complete")
	return res
}
