package infra

import (
	"context"
	"testing"
	"time"

	"petition-gateway/middleware/ratelimit/domain"

	"go.uber.org/goleak"
)

func TestStore_BurstThenRejectsWithRetryAfter(t *testing.T) {
	s := NewStore(0.02, 1)

	dec, err := s.Take(context.Background(), domain.Key("k"))
	if err != nil || !dec.Allowed {
		t.Fatalf("expected first Take to be allowed, got %+v err=%v", dec, err)
	}

	dec, err = s.Take(context.Background(), domain.Key("k"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected second immediate Take to be rejected (burst=1)")
	}
	// 0.02 rps => ~50s para o próximo token
	if dec.RetryAfter < 49*time.Second || dec.RetryAfter > 51*time.Second {
		t.Fatalf("expected RetryAfter close to 50s, got %s", dec.RetryAfter)
	}
}

func TestStore_RejectedTakeDoesNotConsumeToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewStore(1, 1)
	s.now = func() time.Time { return now }

	if dec, _ := s.Take(context.Background(), "k"); !dec.Allowed {
		t.Fatalf("expected first Take allowed")
	}
	for i := 0; i < 5; i++ {
		if dec, _ := s.Take(context.Background(), "k"); dec.Allowed {
			t.Fatalf("expected Take %d to be rejected", i)
		}
	}

	// reservas canceladas não empurram o próximo token para frente
	now = now.Add(time.Second)
	if dec, _ := s.Take(context.Background(), "k"); !dec.Allowed {
		t.Fatalf("expected Take allowed after one second")
	}
}

func TestStore_KeysAreIndependent(t *testing.T) {
	s := NewStore(0.02, 1)

	if dec, _ := s.Take(context.Background(), "a"); !dec.Allowed {
		t.Fatalf("expected key a allowed")
	}
	if dec, _ := s.Take(context.Background(), "b"); !dec.Allowed {
		t.Fatalf("expected key b allowed")
	}
}

func TestStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewStore(10, 1, WithIdleTTL(2*time.Millisecond), WithCleanupEvery(0))

	_, _ = s.Take(context.Background(), "k")
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}
	time.Sleep(4 * time.Millisecond)

	s.Cleanup()

	if s.Len() != 0 {
		t.Fatalf("expected idle entry to be removed, got %d", s.Len())
	}
}

func TestStore_JanitorStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStore(10, 1, WithIdleTTL(time.Millisecond), WithCleanupEvery(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)

	_, _ = s.Take(context.Background(), "k")
	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	if s.Len() != 0 {
		t.Fatalf("expected janitor to remove idle entry")
	}
}

func TestPerWindow(t *testing.T) {
	if got := PerWindow(6, time.Minute); got != 0.1 {
		t.Fatalf("expected 0.1 rps, got %v", got)
	}
	if got := PerWindow(0, time.Minute); got != 0 {
		t.Fatalf("expected 0 for empty limit, got %v", got)
	}
}
