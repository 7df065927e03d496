package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"petition-gateway/middleware/ratelimit/domain"
)

type fakeStore struct {
	dec domain.Decision
	err error
}

func (s fakeStore) Take(context.Context, domain.Key) (domain.Decision, error) { return s.dec, s.err }

type recordingStats struct {
	events []domain.StatsEvent
}

func (r *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := Service{}
	dec := svc.Decide(context.Background(), "k", "POST /api/sign")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_AllowsWhenStoreAllows(t *testing.T) {
	svc := Service{Store: fakeStore{dec: domain.Decision{Allowed: true, RetryAfter: time.Minute}}}
	dec := svc.Decide(context.Background(), "k", "POST /api/sign")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter cleared when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	svc := Service{Store: fakeStore{dec: domain.Decision{Allowed: false}}}
	dec := svc.Decide(context.Background(), "k", "POST /api/sign")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != DefaultRetryAfter {
		t.Fatalf("expected default RetryAfter=%s, got %s", DefaultRetryAfter, dec.RetryAfter)
	}
}

func TestService_Decide_KeepsStoreRetryAfter(t *testing.T) {
	svc := Service{
		Store:      fakeStore{dec: domain.Decision{Allowed: false, RetryAfter: 42 * time.Second}},
		RetryAfter: 2 * time.Second,
	}
	dec := svc.Decide(context.Background(), "k", "POST /api/sign")
	if dec.RetryAfter != 42*time.Second {
		t.Fatalf("expected RetryAfter=42s from store, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_FailsOpenOnBackendError(t *testing.T) {
	stats := &recordingStats{}
	svc := Service{
		Store: fakeStore{err: errors.Join(domain.ErrBackendUnavailable, errors.New("dial tcp"))},
		Stats: stats,
	}
	dec := svc.Decide(context.Background(), "k", "POST /api/sign")
	if !dec.Allowed {
		t.Fatalf("expected fail-open decision")
	}
	if len(stats.events) != 1 || !stats.events[0].Degraded {
		t.Fatalf("expected one degraded stats event, got %+v", stats.events)
	}
}

func TestService_Decide_RecordsStats(t *testing.T) {
	stats := &recordingStats{}
	svc := Service{Store: fakeStore{dec: domain.Decision{Allowed: false}}, Stats: stats}

	svc.Decide(context.Background(), "fp-1", "POST /api/sign")

	if len(stats.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(stats.events))
	}
	ev := stats.events[0]
	if ev.Key != "fp-1" || ev.Allowed || ev.Route != "POST /api/sign" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
