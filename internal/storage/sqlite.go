package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteVisitStore keeps analytics records in an embedded SQLite file.
// visited_at is stored as Unix nanoseconds.
type SQLiteVisitStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS page_analytics (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	referrer    TEXT NOT NULL DEFAULT '',
	search_term TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	ip_address  TEXT NOT NULL DEFAULT '',
	visited_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS page_analytics_visited_at_idx ON page_analytics (visited_at);`

// NewSQLiteVisitStore opens (or creates) the database at path.
func NewSQLiteVisitStore(path string) (*SQLiteVisitStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create analytics dir: %w", err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create analytics schema: %w", err)
	}
	return &SQLiteVisitStore{db: db}, nil
}

func (s *SQLiteVisitStore) RecordVisit(ctx context.Context, v Visit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO page_analytics
			(id, path, referrer, search_term, user_agent, ip_address, visited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Path, v.Referrer, v.SearchTerm, v.UserAgent, v.IPAddress, v.VisitedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *SQLiteVisitStore) SummarizeVisits(ctx context.Context, since time.Time, limit int) (VisitSummary, error) {
	summary := VisitSummary{PageViews: make(map[string]int)}
	cutoff := since.UnixNano()

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, count(*) FROM page_analytics
		WHERE visited_at >= ?
		GROUP BY path`, cutoff)
	if err != nil {
		return summary, fmt.Errorf("summarize page views: %w", err)
	}
	pages, err := collectCounts(rows)
	_ = rows.Close()
	if err != nil {
		return summary, fmt.Errorf("scan page views: %w", err)
	}
	for _, c := range pages {
		summary.PageViews[c.Value] = c.Count
		summary.TotalViews += c.Count
	}

	if summary.TopReferrers, err = s.topValues(ctx, "referrer", cutoff, limit); err != nil {
		return summary, err
	}
	if summary.TopSearchTerms, err = s.topValues(ctx, "search_term", cutoff, limit); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *SQLiteVisitStore) topValues(ctx context.Context, column string, cutoff int64, limit int) ([]Count, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[1]s, count(*) FROM page_analytics
		WHERE visited_at >= ? AND %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY count(*) DESC, %[1]s ASC
		LIMIT ?`, column), cutoff, limit)
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

func (s *SQLiteVisitStore) Close() error {
	return s.db.Close()
}
