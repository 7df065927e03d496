package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"petition-gateway/petition/domain"
)

func seed(t *testing.T, s *fakeStore, email, region string) {
	t.Helper()
	if _, err := s.Put(context.Background(), domain.Candidate{Name: "A", Email: email, City: "X", Region: region}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAggregator_ByRegionIsZeroFilled(t *testing.T) {
	store := newFakeStore()
	seed(t, store, "a@x.com", "CA")
	catalog := domain.MustDefaultCatalog()
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: catalog})

	byRegion, err := agg.ByRegion(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byRegion) != catalog.Len() {
		t.Fatalf("expected %d regions, got %d", catalog.Len(), len(byRegion))
	}
	if byRegion["CA"] != 1 || byRegion["WY"] != 0 {
		t.Fatalf("expected CA=1 WY=0, got CA=%d WY=%d", byRegion["CA"], byRegion["WY"])
	}
	if _, ok := byRegion["DC"]; !ok {
		t.Fatalf("expected DC key present")
	}
}

func TestAggregator_DropsRegionsOutsideCatalog(t *testing.T) {
	store := newFakeStore()
	seed(t, store, "a@x.com", "CA")
	seed(t, store, "b@x.com", "ZZ")
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog()})

	snap, err := agg.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := snap.ByRegion["ZZ"]; ok {
		t.Fatalf("expected ZZ to be dropped")
	}
	if snap.Total != 1 {
		t.Fatalf("expected total to be the catalog sum 1, got %d", snap.Total)
	}
}

func TestAggregator_CachesUntilInvalidated(t *testing.T) {
	store := newFakeStore()
	metrics := &recordingMetrics{}
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog(), TTL: time.Hour, Metrics: metrics})
	ctx := context.Background()

	if n, _ := agg.Total(ctx); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
	seed(t, store, "a@x.com", "CA")
	if n, _ := agg.Total(ctx); n != 0 {
		t.Fatalf("expected cached 0 before invalidation, got %d", n)
	}
	if store.countCalls() != 1 {
		t.Fatalf("expected a single recompute, got %d", store.countCalls())
	}

	agg.Invalidate()
	if n, _ := agg.Total(ctx); n != 1 {
		t.Fatalf("expected 1 after invalidation, got %d", n)
	}
	if metrics.hits != 1 || metrics.misses != 2 {
		t.Fatalf("expected hits=1 misses=2, got hits=%d misses=%d", metrics.hits, metrics.misses)
	}
}

func TestAggregator_TTLExpires(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog(), TTL: 20 * time.Millisecond})
	ctx := context.Background()

	_, _ = agg.Total(ctx)
	seed(t, store, "a@x.com", "CA")
	time.Sleep(40 * time.Millisecond)
	if n, _ := agg.Total(ctx); n != 1 {
		t.Fatalf("expected stale snapshot to expire, got %d", n)
	}
}

func TestAggregator_ServesLastGoodOnFailure(t *testing.T) {
	store := newFakeStore()
	seed(t, store, "a@x.com", "CA")
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog(), TTL: time.Hour})
	ctx := context.Background()

	if n, _ := agg.Total(ctx); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	store.setCountErr(errors.New("disk gone"))
	agg.Invalidate()

	n, err := agg.Total(ctx)
	if err != nil {
		t.Fatalf("expected last good snapshot, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected last good total 1, got %d", n)
	}
}

func TestAggregator_LastGoodExpiresAfterMaxStale(t *testing.T) {
	store := newFakeStore()
	seed(t, store, "a@x.com", "CA")

	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
	agg := NewAggregator(AggregatorConfig{
		Store:   store,
		Catalog: domain.MustDefaultCatalog(),
		TTL:     time.Hour,
		Now:     clock,
	})
	ctx := context.Background()

	if n, _ := agg.Total(ctx); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	store.setCountErr(errors.New("disk gone"))
	agg.Invalidate()

	advance(DefaultMaxStaleTTLs * time.Hour)
	if _, err := agg.Total(ctx); err != nil {
		t.Fatalf("snapshot at the staleness limit should still be served, got %v", err)
	}

	advance(time.Second)
	_, err := agg.Total(ctx)
	var re *domain.RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryableError past max staleness, got %v", err)
	}

	store.setCountErr(nil)
	if n, err := agg.Total(ctx); err != nil || n != 1 {
		t.Fatalf("expected recovery after store is back, got %d err=%v", n, err)
	}
}

func TestAggregator_ExplicitMaxStale(t *testing.T) {
	store := newFakeStore()
	seed(t, store, "a@x.com", "CA")
	agg := NewAggregator(AggregatorConfig{
		Store:    store,
		Catalog:  domain.MustDefaultCatalog(),
		TTL:      time.Hour,
		MaxStale: time.Nanosecond,
	})
	ctx := context.Background()

	if _, err := agg.Total(ctx); err != nil {
		t.Fatalf("total: %v", err)
	}
	store.setCountErr(errors.New("disk gone"))
	agg.Invalidate()
	time.Sleep(time.Millisecond)

	var re *domain.RetryableError
	if _, err := agg.Total(ctx); !errors.As(err, &re) {
		t.Fatalf("expected RetryableError, got %v", err)
	}
}

func TestAggregator_FailsRetryableWithoutSnapshot(t *testing.T) {
	store := newFakeStore()
	store.setCountErr(errors.New("disk gone"))
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog()})

	_, err := agg.Total(context.Background())
	var re *domain.RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryableError, got %v", err)
	}
}

func TestAggregator_One(t *testing.T) {
	store := newFakeStore()
	seed(t, store, "a@x.com", "NY")
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog()})
	ctx := context.Background()

	code, n, err := agg.One(ctx, "ny")
	if err != nil || code != "NY" || n != 1 {
		t.Fatalf("expected NY=1, got %s=%d err=%v", code, n, err)
	}
	code, n, err = agg.One(ctx, "ca")
	if err != nil || code != "CA" || n != 0 {
		t.Fatalf("expected CA=0, got %s=%d err=%v", code, n, err)
	}
	if _, _, err := agg.One(ctx, "zz"); !errors.Is(err, domain.ErrUnknownRegion) {
		t.Fatalf("expected ErrUnknownRegion, got %v", err)
	}
}

// blockingStore segura CountByRegion até release ser fechado.
type blockingStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) CountByRegion(ctx context.Context) (map[string]int64, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.fakeStore.CountByRegion(ctx)
}

func TestAggregator_InvalidationWinsOverInFlightRecompute(t *testing.T) {
	inner := newFakeStore()
	store := &blockingStore{fakeStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog(), TTL: time.Hour})
	ctx := context.Background()

	done := make(chan int64)
	go func() {
		n, _ := agg.Total(ctx)
		done <- n
	}()

	<-store.entered
	seed(t, inner, "a@x.com", "CA")
	agg.Invalidate()
	close(store.release)
	<-done

	if n, _ := agg.Total(ctx); n != 1 {
		t.Fatalf("expected the post-invalidation read to see the write, got %d", n)
	}
}

func TestAggregator_ConcurrentMissesShareRecompute(t *testing.T) {
	inner := newFakeStore()
	store := &blockingStore{fakeStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
	agg := NewAggregator(AggregatorConfig{Store: store, Catalog: domain.MustDefaultCatalog(), TTL: time.Hour})
	ctx := context.Background()

	const readers = 8
	var wg sync.WaitGroup
	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			_, _ = agg.Total(ctx)
		}()
	}
	<-store.entered
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	if got := inner.countCalls(); got != 1 {
		t.Fatalf("expected one recompute for concurrent misses, got %d", got)
	}
}
