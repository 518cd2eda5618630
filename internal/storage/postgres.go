package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig controls the shared Postgres pool used for pages and visits.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// pgxPool is the subset of *pgxpool.Pool the store needs, so pgxmock can stand in.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore persists cached pages in page_cache and visits in page_analytics.
type PostgresStore struct {
	pool pgxPool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS page_cache (
	path       TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS page_cache_created_at_idx ON page_cache (created_at);
CREATE TABLE IF NOT EXISTS page_analytics (
	id          UUID PRIMARY KEY,
	path        TEXT NOT NULL,
	referrer    TEXT NOT NULL DEFAULT '',
	search_term TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	ip_address  TEXT NOT NULL DEFAULT '',
	visited_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS page_analytics_visited_at_idx ON page_analytics (visited_at);`

// NewPostgresStore connects a pool and makes sure both tables exist.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ---- Pages -----------------------------------------------------------------

func (s *PostgresStore) GetPage(ctx context.Context, path string) (*PageEntry, error) {
	var entry PageEntry
	err := s.pool.QueryRow(ctx,
		`SELECT path, content, created_at FROM page_cache WHERE path = $1`, path,
	).Scan(&entry.Path, &entry.Content, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select page %s: %w", path, err)
	}
	return &entry, nil
}

func (s *PostgresStore) PutPage(ctx context.Context, entry PageEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO page_cache (path, content, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE
		SET content = EXCLUDED.content, created_at = EXCLUDED.created_at`,
		entry.Path, entry.Content, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert page %s: %w", entry.Path, err)
	}
	return nil
}

func (s *PostgresStore) DeletePage(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM page_cache WHERE path = $1`, path); err != nil {
		return fmt.Errorf("delete page %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) CountPages(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM page_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) EvictOldest(ctx context.Context) (string, error) {
	var path string
	err := s.pool.QueryRow(ctx, `
		DELETE FROM page_cache
		WHERE path = (SELECT path FROM page_cache ORDER BY created_at ASC LIMIT 1)
		RETURNING path`).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("evict oldest page: %w", err)
	}
	return path, nil
}

func (s *PostgresStore) PruneExpiredPages(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM page_cache WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune expired pages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- Visits ----------------------------------------------------------------

func (s *PostgresStore) RecordVisit(ctx context.Context, v Visit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO page_analytics (id, path, referrer, search_term, user_agent, ip_address, visited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		v.ID, v.Path, v.Referrer, v.SearchTerm, v.UserAgent, v.IPAddress, v.VisitedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *PostgresStore) SummarizeVisits(ctx context.Context, since time.Time, limit int) (VisitSummary, error) {
	summary := VisitSummary{PageViews: make(map[string]int)}
	since = since.UTC()

	rows, err := s.pool.Query(ctx, `
		SELECT path, count(*) FROM page_analytics
		WHERE visited_at >= $1
		GROUP BY path`, since)
	if err != nil {
		return summary, fmt.Errorf("summarize page views: %w", err)
	}
	pages, err := collectCounts(rows)
	rows.Close()
	if err != nil {
		return summary, fmt.Errorf("scan page views: %w", err)
	}
	for _, c := range pages {
		summary.PageViews[c.Value] = c.Count
		summary.TotalViews += c.Count
	}

	if summary.TopReferrers, err = s.topValues(ctx, "referrer", since, limit); err != nil {
		return summary, err
	}
	if summary.TopSearchTerms, err = s.topValues(ctx, "search_term", since, limit); err != nil {
		return summary, err
	}
	return summary, nil
}

// topValues ranks non-empty values of column. column is always a constant from
// SummarizeVisits, never user input.
func (s *PostgresStore) topValues(ctx context.Context, column string, since time.Time, limit int) ([]Count, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %[1]s, count(*) FROM page_analytics
		WHERE visited_at >= $1 AND %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY count(*) DESC, %[1]s ASC
		LIMIT $2`, column), since, limit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", column, err)
	}
	defer rows.Close()
	counts, err := collectCounts(rows)
	if err != nil {
		return nil, fmt.Errorf("scan top %s: %w", column, err)
	}
	return counts, nil
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// countRows is satisfied by both pgx.Rows and *sql.Rows.
type countRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectCounts(rows countRows) ([]Count, error) {
	var out []Count
	for rows.Next() {
		var value string
		var n int64
		if err := rows.Scan(&value, &n); err != nil {
			return nil, err
		}
		out = append(out, Count{Value: value, Count: int(n)})
	}
	return out, rows.Err()
}
