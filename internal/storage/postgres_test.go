package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestPostgresEnsureSchema(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS page_cache").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPage(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT path, content, created_at FROM page_cache").
		WithArgs("/knots").
		WillReturnRows(pgxmock.NewRows([]string{"path", "content", "created_at"}).
			AddRow("/knots", "<p>knots</p>", created))

	entry, err := s.GetPage(context.Background(), "/knots")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "<p>knots</p>", entry.Content)
	require.True(t, entry.CreatedAt.Equal(created))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPageMissing(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT path, content, created_at FROM page_cache").
		WithArgs("/missing").
		WillReturnError(pgx.ErrNoRows)

	entry, err := s.GetPage(context.Background(), "/missing")
	require.NoError(t, err)
	require.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutPageUpserts(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO page_cache").
		WithArgs("/knots", "<p>knots</p>", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutPage(context.Background(), PageEntry{Path: "/knots", Content: "<p>knots</p>", CreatedAt: created})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutPageError(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO page_cache").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := s.PutPage(context.Background(), PageEntry{Path: "/x", Content: "x", CreatedAt: time.Now()})
	require.ErrorContains(t, err, "upsert page /x")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountAndEvict(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM page_cache`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery("DELETE FROM page_cache").
		WillReturnRows(pgxmock.NewRows([]string{"path"}).AddRow("/oldest"))

	n, err := s.CountPages(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	evicted, err := s.EvictOldest(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/oldest", evicted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEvictOldestEmpty(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery("DELETE FROM page_cache").WillReturnError(pgx.ErrNoRows)

	evicted, err := s.EvictOldest(context.Background())
	require.NoError(t, err)
	require.Empty(t, evicted)
}

func TestPostgresPruneExpiredPages(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	cutoff := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("DELETE FROM page_cache WHERE created_at").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.PruneExpiredPages(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordVisit(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	v := Visit{
		ID:         "01890a5d-ac96-774b-bcce-b302099a8057",
		Path:       "/knots",
		Referrer:   "https://www.google.com/search?q=knots",
		SearchTerm: "knots",
		UserAgent:  "Mozilla/5.0",
		IPAddress:  "192.0.2.1",
		VisitedAt:  at,
	}

	mock.ExpectExec("INSERT INTO page_analytics").
		WithArgs(v.ID, v.Path, v.Referrer, v.SearchTerm, v.UserAgent, v.IPAddress, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordVisit(context.Background(), v))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSummarizeVisits(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	since := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT path, count").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"path", "count"}).
			AddRow("/knots", int64(5)).
			AddRow("/ports", int64(2)))
	mock.ExpectQuery("SELECT referrer, count").
		WithArgs(since, 10).
		WillReturnRows(pgxmock.NewRows([]string{"referrer", "count"}).
			AddRow("https://www.google.com/", int64(4)))
	mock.ExpectQuery("SELECT search_term, count").
		WithArgs(since, 10).
		WillReturnRows(pgxmock.NewRows([]string{"search_term", "count"}).
			AddRow("knots", int64(3)))

	summary, err := s.SummarizeVisits(context.Background(), since, 10)
	require.NoError(t, err)
	require.Equal(t, 7, summary.TotalViews)
	require.Equal(t, map[string]int{"/knots": 5, "/ports": 2}, summary.PageViews)
	require.Equal(t, []Count{{Value: "https://www.google.com/", Count: 4}}, summary.TopReferrers)
	require.Equal(t, []Count{{Value: "knots", Count: 3}}, summary.TopSearchTerms)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStoreRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := NewPostgresStore(context.Background(), PostgresConfig{})
	require.Error(t, err)

	_, err = NewPostgresStoreWithPool(nil)
	require.Error(t, err)
}

func TestPostgresPing(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	require.NoError(t, s.Ping(context.Background()))
	require.Error(t, s.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
