// Package site serves generated pages over HTTP and runs the background
// services that keep the cache, crawler windows and visit queue healthy.
package site

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/developingchet/pagesmith/internal/admission"
	"github.com/developingchet/pagesmith/internal/analytics"
	"github.com/developingchet/pagesmith/internal/config"
	"github.com/developingchet/pagesmith/internal/pagecache"
	"github.com/developingchet/pagesmith/internal/pool"
	"github.com/developingchet/pagesmith/internal/render"
	"github.com/developingchet/pagesmith/internal/transform"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BinaryVersion is set at startup from the -X main.Version ldflags value.
var BinaryVersion = "dev"

const shutdownTimeout = 10 * time.Second

// Generator produces the raw markdown for a request path.
type Generator interface {
	Generate(ctx context.Context, path string) (string, error)
}

// Sizer reports the on-disk size of a store.
type Sizer interface {
	SizeBytes() (int64, error)
}

// Deps are the collaborators a Site serves from. Pool, Sizer and Ping are
// optional.
type Deps struct {
	Cache     *pagecache.Cache
	Admission *admission.Controller
	Generator Generator
	Pipeline  *transform.Pipeline
	Renderer  *render.Renderer
	Recorder  *analytics.Recorder
	Pool      *pool.Pool
	Sizer     Sizer
	Ping      func(ctx context.Context) error
}

// Site wires the HTTP surface to the cache-or-generate flow.
type Site struct {
	cfg     *config.Config
	deps    Deps
	flights singleflight.Group
	proxies []*net.IPNet
	handler http.Handler
	log     zerolog.Logger
}

// New constructs a fully wired Site.
func New(cfg *config.Config, deps Deps, log zerolog.Logger) (*Site, error) {
	switch {
	case deps.Cache == nil:
		return nil, fmt.Errorf("site: page cache is required")
	case deps.Admission == nil:
		return nil, fmt.Errorf("site: admission controller is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("site: generator is required")
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("site: transform pipeline is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("site: renderer is required")
	case deps.Recorder == nil:
		return nil, fmt.Errorf("site: analytics recorder is required")
	}
	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("site: %w", err)
	}
	s := &Site{cfg: cfg, deps: deps, proxies: proxies, log: log}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the public HTTP handler.
func (s *Site) Handler() http.Handler {
	return s.handler
}

// Run starts all goroutines and blocks until ctx is cancelled or a fatal error occurs.
func (s *Site) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.deps.Pool != nil {
		s.deps.Pool.Start(gctx)
	}

	g.Go(func() error {
		return s.serveHTTP(gctx)
	})

	// Prometheus metrics server
	if s.cfg.MetricsEnabled {
		g.Go(func() error {
			return s.serveMetrics(gctx)
		})
	}

	// Health endpoints
	g.Go(func() error {
		return s.serveHealth(gctx)
	})

	janitor := NewJanitor(s.deps.Cache, s.deps.Admission, s.deps.Sizer, s.deps.Pool,
		s.cfg.CacheCheckPeriod, s.log)
	g.Go(func() error {
		return janitor.Run(gctx)
	})

	err := g.Wait()
	if s.deps.Pool != nil {
		s.deps.Pool.Stop()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveHTTP runs the public server and drains in-flight requests on shutdown.
func (s *Site) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.HTTPReadTimeout,
		ReadHeaderTimeout: s.cfg.HTTPReadTimeout,
		WriteTimeout:      s.cfg.HTTPWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn().Err(err).Msg("site: graceful shutdown incomplete")
			_ = srv.Close()
		}
	}()

	s.log.Info().Str("addr", s.cfg.HTTPAddr).Str("version", BinaryVersion).Msg("site: HTTP server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// serveMetrics runs the Prometheus HTTP server.
func (s *Site) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              s.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	s.log.Info().Str("addr", s.cfg.MetricsAddr).Msg("site: metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// serveHealth runs the health endpoint.
func (s *Site) serveHealth(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HealthAddr,
		Handler:           s.healthMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	s.log.Info().Str("addr", s.cfg.HealthAddr).Msg("site: health server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (s *Site) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Ping != nil {
			if err := s.deps.Ping(r.Context()); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}
