package site

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/developingchet/pagesmith/internal/admission"
	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/developingchet/pagesmith/internal/pagecache"
	"github.com/developingchet/pagesmith/internal/storage"
	"github.com/developingchet/pagesmith/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newJanitorTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.NewBboltStore(dir)
	if err != nil {
		t.Fatalf("NewBboltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJanitor_PurgesExpiredPages(t *testing.T) {
	store := newJanitorTestStore(t)
	clk := newClock()
	cache := pagecache.New(store, pagecache.Options{TTL: time.Hour, MaxKeys: 10, Now: clk.Now}, zerolog.Nop())
	ctx := context.Background()

	if err := cache.Set(ctx, "/old", "<p>old</p>"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(50 * time.Minute)
	if err := cache.Set(ctx, "/fresh", "<p>fresh</p>"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(20 * time.Minute)

	j := NewJanitor(cache, nil, store, nil, 100*time.Millisecond, zerolog.Nop())
	res := j.Sweep(ctx)

	if res.PagesPurged != 1 {
		t.Errorf("expected 1 purged page, got %d", res.PagesPurged)
	}
	if cache.Contains(ctx, "/old") {
		t.Error("expired page should have been purged")
	}
	if !cache.Contains(ctx, "/fresh") {
		t.Error("fresh page should not be purged")
	}
	if got := promtest.ToFloat64(metrics.CacheKeys); got != 1 {
		t.Errorf("cache keys gauge: got %v, want 1", got)
	}
	if got := promtest.ToFloat64(metrics.DBSizeBytes); got <= 0 {
		t.Errorf("db size gauge not updated: %v", got)
	}
}

func TestJanitor_PrunesCrawlerWindows(t *testing.T) {
	clk := newClock()
	store := testutil.NewMockStore()
	cache := pagecache.New(store, pagecache.Options{TTL: time.Hour, MaxKeys: 10, Now: clk.Now}, zerolog.Nop())
	adm := admission.New(admission.Config{
		Signatures: []string{"bot"},
		Window:     time.Minute,
		Limit:      5,
		Now:        clk.Now,
	}, store, nil, zerolog.Nop())

	ctx := context.Background()
	adm.Admit(ctx, admission.Request{Path: "/a", UserAgent: "somebot", RemoteAddr: "198.51.100.1:1"})
	adm.Admit(ctx, admission.Request{Path: "/a", UserAgent: "somebot", RemoteAddr: "198.51.100.2:1"})

	j := NewJanitor(cache, adm, nil, nil, time.Minute, zerolog.Nop())
	if res := j.Sweep(ctx); res.WindowsPruned != 0 {
		t.Errorf("live windows must survive, pruned %d", res.WindowsPruned)
	}

	clk.Advance(2 * time.Minute)
	if res := j.Sweep(ctx); res.WindowsPruned != 2 {
		t.Errorf("expected 2 pruned windows, got %d", res.WindowsPruned)
	}
	if n, _ := store.CountRateWindows(); n != 0 {
		t.Errorf("expected no windows left, got %d", n)
	}
}

func TestJanitor_StoreErrorsAreNotFatal(t *testing.T) {
	store := testutil.NewMockStore()
	store.SetError("PruneExpiredPages", errors.New("db locked"))
	cache := pagecache.New(store, pagecache.Options{TTL: time.Hour, MaxKeys: 10}, zerolog.Nop())

	j := NewJanitor(cache, nil, nil, nil, time.Minute, zerolog.Nop())
	if res := j.Sweep(context.Background()); res.PagesPurged != 0 {
		t.Errorf("expected nothing purged on error, got %d", res.PagesPurged)
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	store := testutil.NewMockStore()
	cache := pagecache.New(store, pagecache.Options{TTL: time.Hour, MaxKeys: 10}, zerolog.Nop())
	j := NewJanitor(cache, nil, nil, nil, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
	if store.Calls("PruneExpiredPages") < 2 {
		t.Errorf("expected an immediate sweep plus ticks, got %d", store.Calls("PruneExpiredPages"))
	}
}

func TestJanitor_LogsCacheCounters(t *testing.T) {
	store := testutil.NewMockStore()
	cache := pagecache.New(store, pagecache.Options{TTL: time.Hour, MaxKeys: 10}, zerolog.Nop())
	ctx := context.Background()

	_ = cache.Set(ctx, "/knots", "<p>knots</p>")
	cache.Get(ctx, "/knots")
	cache.Get(ctx, "/missing")

	var buf bytes.Buffer
	j := NewJanitor(cache, nil, nil, nil, time.Minute, zerolog.New(&buf).Level(zerolog.DebugLevel))
	j.Sweep(ctx)

	out := buf.String()
	for _, want := range []string{`"keys":1`, `"hits":1`, `"misses":1`, `"evictions":0`} {
		if !strings.Contains(out, want) {
			t.Errorf("sweep log %q missing %s", out, want)
		}
	}
}
