package main

import (
	"context"
	"fmt"

	"github.com/developingchet/pagesmith/internal/admission"
	"github.com/developingchet/pagesmith/internal/config"
	"github.com/developingchet/pagesmith/internal/site"
	"github.com/developingchet/pagesmith/internal/storage"
	"github.com/rs/zerolog"
)

// stores holds the backends selected by CACHE_BACKEND,
// CRAWLER_WINDOW_BACKEND and ANALYTICS_BACKEND.
type stores struct {
	pages   storage.PageStore
	windows storage.WindowStore
	visits  storage.VisitStore // nil when analytics are in-memory only

	bolt   *storage.BoltStore
	pg     *storage.PostgresStore
	sqlite *storage.SQLiteVisitStore
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	st := &stores{}

	if cfg.CacheBackend == "bolt" || cfg.CrawlerWindowBackend == "bolt" {
		b, err := storage.NewBboltStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		st.bolt = b
	}

	if cfg.NeedsPostgres() {
		pg, err := storage.NewPostgresStore(ctx, storage.PostgresConfig{
			DSN:      cfg.DatabaseDSN,
			MaxConns: cfg.DatabaseMaxConns,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		st.pg = pg
	}

	if cfg.AnalyticsBackend == "sqlite" {
		sq, err := storage.NewSQLiteVisitStore(cfg.AnalyticsSQLitePath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open sqlite analytics: %w", err)
		}
		st.sqlite = sq
	}

	if cfg.CacheBackend == "postgres" {
		st.pages = st.pg
	} else {
		st.pages = st.bolt
	}

	if cfg.CrawlerWindowBackend == "bolt" {
		st.windows = st.bolt
	} else {
		st.windows = admission.NewMemoryWindows()
	}

	switch cfg.AnalyticsBackend {
	case "postgres":
		st.visits = st.pg
	case "sqlite":
		st.visits = st.sqlite
	}

	log.Info().
		Str("cache", cfg.CacheBackend).
		Str("windows", cfg.CrawlerWindowBackend).
		Str("analytics", cfg.AnalyticsBackend).
		Msg("storage backends ready")
	return st, nil
}

// sizer returns the bbolt file when one is open.
func (s *stores) sizer() site.Sizer {
	if s.bolt == nil {
		return nil
	}
	return s.bolt
}

// ping reports database readiness; bbolt and SQLite are always ready once open.
func (s *stores) ping(ctx context.Context) error {
	if s.pg == nil {
		return nil
	}
	return s.pg.Ping(ctx)
}

func (s *stores) Close() {
	if s.bolt != nil {
		_ = s.bolt.Close()
	}
	if s.pg != nil {
		_ = s.pg.Close()
	}
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
}
