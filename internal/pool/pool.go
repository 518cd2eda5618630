// Package pool runs background write jobs off the request path with bounded
// retry.
package pool

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/developingchet/pagesmith/internal/storage"
	"github.com/rs/zerolog"
)

// KindVisit is the job kind for analytics visit writes.
const KindVisit = "visit"

// Job is a unit of work for the worker pool.
type Job struct {
	Kind  string
	Visit storage.Visit
}

// JobHandler processes a single Job. Returns an error if the job should be retried.
type JobHandler func(ctx context.Context, job Job) error

// Config holds worker pool configuration.
type Config struct {
	Workers    int
	QueueDepth int
	MaxRetries int
	RetryBase  time.Duration
}

// Pool is a fixed set of workers draining a buffered job channel.
type Pool struct {
	cfg      Config
	jobs     chan Job
	handler  JobHandler
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Pool with the given config and handler.
func New(cfg Config, handler JobHandler, log zerolog.Logger) (*Pool, error) {
	if cfg.Workers < 1 || cfg.Workers > 64 {
		return nil, fmt.Errorf("POOL_WORKERS must be 1-64, got %d", cfg.Workers)
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1024
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Second
	}
	return &Pool{
		cfg:     cfg,
		jobs:    make(chan Job, cfg.QueueDepth),
		handler: handler,
		log:     log,
	}, nil
}

// VisitWriter returns a handler that records visit jobs into store.
func VisitWriter(store storage.VisitStore) JobHandler {
	return func(ctx context.Context, job Job) error {
		if job.Kind != KindVisit {
			return nil
		}
		return store.RecordVisit(ctx, job.Visit)
	}
}

// Start launches the worker goroutines. ctx controls worker lifetime.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Enqueue attempts a non-blocking send. Returns false if the buffer is full.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.jobs <- job:
		metrics.JobsEnqueued.WithLabelValues(job.Kind).Inc()
		return true
	default:
		metrics.JobsDropped.WithLabelValues("buffer_full").Inc()
		p.log.Warn().Str("kind", job.Kind).Str("path", job.Visit.Path).Msg("pool: job dropped, queue full")
		return false
	}
}

// Stop closes the job channel and waits for all workers to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// Depth returns the current number of pending jobs.
func (p *Pool) Depth() int {
	return len(p.jobs)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker_id", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
			p.processWithRetry(ctx, job, log)
		}
	}
}

// processWithRetry runs the handler inline with exponential backoff; jobs are
// never re-enqueued, so Stop cannot race a send on the closed channel.
func (p *Pool) processWithRetry(ctx context.Context, job Job, log zerolog.Logger) {
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.backoff(attempt - 1)
			log.Debug().Str("kind", job.Kind).Int("attempt", attempt).
				Dur("backoff", backoff).Msg("pool: retrying job")
			select {
			case <-ctx.Done():
				metrics.JobsProcessed.WithLabelValues(job.Kind, "error").Inc()
				return
			case <-time.After(backoff):
			}
		}

		if err := p.handler(ctx, job); err != nil {
			if attempt < p.cfg.MaxRetries {
				metrics.JobsProcessed.WithLabelValues(job.Kind, "retried").Inc()
				continue
			}
			metrics.JobsProcessed.WithLabelValues(job.Kind, "error").Inc()
			log.Error().Err(err).Str("kind", job.Kind).
				Int("max_retries", p.cfg.MaxRetries).Msg("pool: job failed after retries")
			return
		}

		metrics.JobsProcessed.WithLabelValues(job.Kind, "success").Inc()
		return
	}
}

func (p *Pool) backoff(retries int) time.Duration {
	d := time.Duration(float64(p.cfg.RetryBase) * math.Pow(2, float64(retries)))
	if max := time.Minute; d > max {
		d = max
	}
	return d
}
