// Package admission decides whether a page request may proceed, protecting the
// generation backend and the page cache from crawler traffic.
package admission

import (
	"context"
	"strings"
	"time"

	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/developingchet/pagesmith/internal/pagecache"
	"github.com/developingchet/pagesmith/internal/storage"
	"github.com/rs/zerolog"
)

// Rate window key selectors.
const (
	KeyIP        = "ip"
	KeyUserAgent = "user_agent"
)

// Rejection reasons, written verbatim in 429 bodies.
const (
	ReasonRateLimited = "Too many requests from crawler"
	ReasonCapacity    = "Cache capacity reached"
)

// stage labels for metrics
const (
	stageClassify = "1_classify"
	stageRate     = "2_rate_window"
	stageCapacity = "3_capacity"
)

// Request is the part of an HTTP request admission looks at.
type Request struct {
	Path       string
	UserAgent  string
	RemoteAddr string
}

// Decision is the admission outcome. Reason is set only when Allowed is false.
type Decision struct {
	Allowed bool
	Crawler bool
	Reason  string
}

// CacheView is the read-only cache surface the capacity stage needs.
type CacheView interface {
	Stats(ctx context.Context) (pagecache.Stats, error)
	Contains(ctx context.Context, path string) bool
}

// Config holds the admission parameters.
type Config struct {
	Signatures []string // lower-cased on construction
	Window     time.Duration
	Limit      int
	KeyBy      string           // KeyIP or KeyUserAgent
	Now        func() time.Time // defaults to time.Now
}

// Controller runs the admission stages for each request.
type Controller struct {
	cfg     Config
	windows storage.WindowStore
	cache   CacheView
	log     zerolog.Logger
}

// New builds a Controller. cache may be nil to disable the capacity stage.
func New(cfg Config, windows storage.WindowStore, cache CacheView, log zerolog.Logger) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.KeyBy == "" {
		cfg.KeyBy = KeyIP
	}
	sigs := make([]string, 0, len(cfg.Signatures))
	for _, s := range cfg.Signatures {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sigs = append(sigs, s)
		}
	}
	cfg.Signatures = sigs
	return &Controller{cfg: cfg, windows: windows, cache: cache, log: log}
}

// IsCrawler reports whether userAgent contains any configured signature,
// ignoring case.
func (c *Controller) IsCrawler(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, sig := range c.cfg.Signatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// Admit runs the request through the admission stages.
func (c *Controller) Admit(ctx context.Context, req Request) Decision {
	// Stage 1: classify
	if !c.IsCrawler(req.UserAgent) {
		metrics.AdmissionDecisions.WithLabelValues(stageClassify, "human").Inc()
		return Decision{Allowed: true}
	}
	metrics.AdmissionDecisions.WithLabelValues(stageClassify, "crawler").Inc()

	// Stage 2: sliding rate window
	key := windowKey(c.cfg.KeyBy, req)
	allowed, err := c.windows.RateGate(key, c.cfg.Now(), c.cfg.Window, c.cfg.Limit)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("admission: window store error, admitting")
		metrics.AdmissionDecisions.WithLabelValues(stageRate, "error").Inc()
		allowed = true
	}
	if !allowed {
		metrics.AdmissionDecisions.WithLabelValues(stageRate, "rejected").Inc()
		c.log.Debug().Str("key", key).Str("path", req.Path).Msg("admission: crawler rate limited")
		return Decision{Crawler: true, Reason: ReasonRateLimited}
	}
	metrics.AdmissionDecisions.WithLabelValues(stageRate, "admitted").Inc()

	// Stage 3: a full cache never grows for crawlers
	if c.cache != nil {
		st, err := c.cache.Stats(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("admission: cache stats unavailable, admitting")
			metrics.AdmissionDecisions.WithLabelValues(stageCapacity, "error").Inc()
		} else if st.Full() && !c.cache.Contains(ctx, req.Path) {
			metrics.AdmissionDecisions.WithLabelValues(stageCapacity, "rejected").Inc()
			c.log.Debug().Str("path", req.Path).Int("keys", st.Keys).Msg("admission: cache full, rejecting crawler")
			return Decision{Crawler: true, Reason: ReasonCapacity}
		} else {
			metrics.AdmissionDecisions.WithLabelValues(stageCapacity, "admitted").Inc()
		}
	}

	return Decision{Allowed: true, Crawler: true}
}

// Prune drops empty crawler windows and updates the window gauge.
func (c *Controller) Prune() (int, error) {
	removed, err := c.windows.PruneRateWindows(c.cfg.Now(), c.cfg.Window)
	if err != nil {
		return 0, err
	}
	if n, err := c.windows.CountRateWindows(); err == nil {
		metrics.CrawlerWindows.Set(float64(n))
	}
	return removed, nil
}
