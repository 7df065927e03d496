// Package metrics agrupa os coletores Prometheus do serviço.
//
// Todos os métodos aceitam receptor nil, para que os componentes funcionem
// sem métricas configuradas.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "petition"

type Metrics struct {
	registry *prometheus.Registry

	signOutcomes     *prometheus.CounterVec
	verifierVerdicts *prometheus.CounterVec
	snapshotCache    *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpInFlight     prometheus.Gauge
}

// New cria um registro próprio com os coletores de processo e runtime.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		signOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sign_outcomes_total",
				Help:      "Sign requests by outcome (created, duplicate or error kind)",
			},
			[]string{"outcome"},
		),
		verifierVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifier_verdicts_total",
				Help:      "Bot verification verdicts",
			},
			[]string{"verdict"},
		),
		snapshotCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "count_snapshot_cache_total",
				Help:      "Count snapshot cache lookups by result",
			},
			[]string{"result"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration by route, method and status",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		httpInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Requests currently being served",
			},
		),
	}
}

// Registerer devolve o registro para coletores de outros pacotes.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serve /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SignOutcome(outcome string) {
	if m == nil {
		return
	}
	m.signOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VerifierVerdict(verdict string) {
	if m == nil {
		return
	}
	m.verifierVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) SnapshotCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.snapshotCache.WithLabelValues(result).Inc()
}

// ObserveRequest registra uma requisição concluída. route é o padrão do
// roteador, nunca o path cru.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// TrackInFlight incrementa o gauge e devolve a função que o decrementa.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.httpInFlight.Inc()
	return m.httpInFlight.Dec
}
