package infra

import (
	"context"
	"testing"

	"petition-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromStatsStore_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPromStatsStore(reg)
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: true, Route: "POST /api/sign"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: false, Route: "POST /api/sign"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "b", Allowed: false, Route: "POST /api/sign"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "b", Allowed: true, Degraded: true, Route: "GET /api/count"})

	if got := testutil.ToFloat64(s.decisions.WithLabelValues("POST /api/sign", "denied")); got != 2 {
		t.Fatalf("expected 2 denied, got %v", got)
	}
	if got := testutil.ToFloat64(s.decisions.WithLabelValues("POST /api/sign", "allowed")); got != 1 {
		t.Fatalf("expected 1 allowed, got %v", got)
	}
	if got := testutil.ToFloat64(s.decisions.WithLabelValues("GET /api/count", "degraded")); got != 1 {
		t.Fatalf("expected 1 degraded, got %v", got)
	}
}
