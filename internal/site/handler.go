package site

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/developingchet/pagesmith/internal/admission"
	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/developingchet/pagesmith/internal/topic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Response bodies.
const (
	WelcomeText         = "Welcome to the AI Content Generator. Enter any path to generate content!"
	GenerationErrorText = "An error occurred while generating the content"
	analyticsErrorText  = "Failed to load analytics"
)

const adminRealm = "pagesmith admin"

func (s *Site) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, realIP(s.proxies), middleware.Recoverer)

	r.Get("/", s.instrument("landing", s.handleLanding))
	r.Get("/favicon.ico", s.instrument("favicon", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Get("/api/stats", s.instrument("stats", s.handleStats))
	r.With(s.adminAuth()).Get("/admin/analytics", s.instrument("admin", s.handleDashboard))
	r.Get("/*", s.instrument("page", s.handlePage))
	return r
}

// instrument counts responses for route by status code.
func (s *Site) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
}

// adminAuth guards the dashboard. Without configured credentials every
// request is refused.
func (s *Site) adminAuth() func(http.Handler) http.Handler {
	if !s.cfg.AdminEnabled() {
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				metrics.Requests.WithLabelValues("admin", strconv.Itoa(http.StatusUnauthorized)).Inc()
				w.WriteHeader(http.StatusUnauthorized)
			})
		}
	}
	auth := middleware.BasicAuth(adminRealm, map[string]string{s.cfg.AdminUsername: s.cfg.AdminPassword})
	return func(next http.Handler) http.Handler {
		guarded := auth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			guarded.ServeHTTP(ww, r)
			if ww.Status() == http.StatusUnauthorized {
				metrics.Requests.WithLabelValues("admin", strconv.Itoa(http.StatusUnauthorized)).Inc()
			}
		})
	}
}

func (s *Site) handleLanding(w http.ResponseWriter, r *http.Request) {
	if s.cfg.LandingPageFile != "" {
		body, err := os.ReadFile(s.cfg.LandingPageFile)
		if err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(body)
			return
		}
		s.log.Debug().Err(err).Str("file", s.cfg.LandingPageFile).Msg("site: landing page unreadable")
	}
	if !s.cfg.LandingFallback {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(WelcomeText))
}

func (s *Site) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.deps.Recorder.Counter().Get()); err != nil {
		s.log.Warn().Err(err).Msg("site: encode stats failed")
	}
}

// handlePage runs admission, then serves from the cache or generates.
func (s *Site) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := r.URL.Path

	decision := s.deps.Admission.Admit(ctx, admission.Request{
		Path:       path,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
	})
	if !decision.Allowed {
		http.Error(w, decision.Reason, http.StatusTooManyRequests)
		return
	}

	if page, ok := s.deps.Cache.Get(ctx, path); ok {
		s.serve(w, r, page, decision.Crawler)
		return
	}

	page, err := s.build(ctx, path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).
			Str("request_id", middleware.GetReqID(ctx)).Msg("site: page generation failed")
		http.Error(w, GenerationErrorText, http.StatusInternalServerError)
		return
	}
	s.serve(w, r, page, decision.Crawler)
}

// build generates, transforms, renders and caches the page for path.
// Concurrent misses for one path share a single generation.
func (s *Site) build(ctx context.Context, path string) (string, error) {
	v, err, shared := s.flights.Do(path, func() (any, error) {
		// the first caller disconnecting must not fail the waiters
		gctx := context.WithoutCancel(ctx)
		start := time.Now()

		md, err := s.deps.Generator.Generate(gctx, path)
		if err != nil {
			return "", err
		}
		md = s.deps.Pipeline.Run(md, path)

		_, title := topic.Extract(path)
		page, err := s.deps.Renderer.Page(title, md)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", path, err)
		}

		if err := s.deps.Cache.Set(gctx, path, page); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("site: serving uncached page")
		}
		s.log.Info().Str("path", path).Dur("elapsed", time.Since(start)).Msg("site: page generated")
		return page, nil
	})
	if shared {
		metrics.GenerationsShared.Inc()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request, page string, crawler bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("site: write response failed")
		return
	}
	if !crawler {
		s.deps.Recorder.Record(r)
	}
}
