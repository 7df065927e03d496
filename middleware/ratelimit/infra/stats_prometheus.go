package infra

import (
	"context"

	"petition-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromStatsStore expõe as decisões como contador Prometheus por rota/resultado.
// A chave do cliente não vira label (cardinalidade).
type PromStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPromStatsStore(reg prometheus.Registerer) *PromStatsStore {
	return &PromStatsStore{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "petition_ratelimit_decisions_total",
				Help: "Rate limit decisions by route and result",
			},
			[]string{"route", "result"},
		),
	}
}

func (s *PromStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Route, decisionField(ev)).Inc()
	return nil
}
