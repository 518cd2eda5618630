package testutil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/developingchet/pagesmith/internal/storage"
	"github.com/developingchet/pagesmith/internal/testutil"
)

var (
	_ storage.PageStore   = (*testutil.MockStore)(nil)
	_ storage.WindowStore = (*testutil.MockStore)(nil)
	_ storage.VisitStore  = (*testutil.MockStore)(nil)
)

// TestMockStore_PageOperations covers PutPage, GetPage, DeletePage, EvictOldest.
func TestMockStore_PageOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns nil for unknown path", func(t *testing.T) {
		s := testutil.NewMockStore()
		got, err := s.GetPage(ctx, "/nope")
		if err != nil || got != nil {
			t.Fatalf("expected nil, nil; got %v, %v", got, err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		s := testutil.NewMockStore()
		_ = s.PutPage(ctx, storage.PageEntry{Path: "/a", Content: "A", CreatedAt: time.Now()})
		got, err := s.GetPage(ctx, "/a")
		if err != nil || got == nil || got.Content != "A" {
			t.Fatalf("unexpected get result: %v, %v", got, err)
		}
	})

	t.Run("evict oldest removes earliest created", func(t *testing.T) {
		s := testutil.NewMockStore()
		now := time.Now()
		_ = s.PutPage(ctx, storage.PageEntry{Path: "/new", CreatedAt: now})
		_ = s.PutPage(ctx, storage.PageEntry{Path: "/old", CreatedAt: now.Add(-time.Hour)})
		evicted, err := s.EvictOldest(ctx)
		if err != nil || evicted != "/old" {
			t.Fatalf("expected /old evicted, got %q (%v)", evicted, err)
		}
		if paths := s.Paths(); len(paths) != 1 || paths[0] != "/new" {
			t.Fatalf("unexpected remaining paths %v", paths)
		}
	})
}

func TestMockStore_RateGate(t *testing.T) {
	s := testutil.NewMockStore()
	now := time.Now()
	for i := 0; i < 2; i++ {
		if ok, _ := s.RateGate("k", now, time.Minute, 2); !ok {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if ok, _ := s.RateGate("k", now, time.Minute, 2); ok {
		t.Fatal("3rd call should be denied")
	}
	removed, _ := s.PruneRateWindows(now.Add(2*time.Minute), time.Minute)
	if removed != 1 {
		t.Errorf("expected 1 key removed, got %d", removed)
	}
}

func TestMockStore_ErrorInjection(t *testing.T) {
	s := testutil.NewMockStore()
	boom := errors.New("boom")
	s.SetError("PutPage", boom)

	err := s.PutPage(context.Background(), storage.PageEntry{Path: "/x"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	// Error is consumed after one call.
	if err := s.PutPage(context.Background(), storage.PageEntry{Path: "/x"}); err != nil {
		t.Fatalf("second call should succeed, got %v", err)
	}
	if s.Calls("PutPage") != 2 {
		t.Errorf("expected 2 PutPage calls, got %d", s.Calls("PutPage"))
	}
}

func TestMockStore_SummarizeVisits(t *testing.T) {
	s := testutil.NewMockStore()
	ctx := context.Background()
	now := time.Now()
	_ = s.RecordVisit(ctx, storage.Visit{Path: "/a", Referrer: "r1", SearchTerm: "t", VisitedAt: now})
	_ = s.RecordVisit(ctx, storage.Visit{Path: "/a", Referrer: "r1", VisitedAt: now})
	_ = s.RecordVisit(ctx, storage.Visit{Path: "/b", Referrer: "r2", VisitedAt: now})
	_ = s.RecordVisit(ctx, storage.Visit{Path: "/old", VisitedAt: now.Add(-time.Hour)})

	sum, err := s.SummarizeVisits(ctx, now.Add(-time.Minute), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalViews != 3 || sum.PageViews["/a"] != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(sum.TopReferrers) != 1 || sum.TopReferrers[0].Value != "r1" {
		t.Errorf("unexpected top referrers %v", sum.TopReferrers)
	}
}
