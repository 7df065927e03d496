package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"petition-gateway/petition/domain"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSnapshotTTL  = 30 * time.Second
	DefaultCountTimeout = 3 * time.Second
	// DefaultMaxStaleTTLs limita a idade do último snapshot servido em falha,
	// em múltiplos do TTL.
	DefaultMaxStaleTTLs = 4
	snapshotKey         = "snapshot"
)

// RegionCounter é a parte do SignatureStore que o Aggregator lê.
type RegionCounter interface {
	CountByRegion(ctx context.Context) (map[string]int64, error)
}

// CacheMetrics recebe hit/miss do snapshot. Pode ser nil.
type CacheMetrics interface {
	SnapshotCache(hit bool)
}

type AggregatorConfig struct {
	Store   RegionCounter
	Catalog domain.Catalog
	TTL     time.Duration
	Timeout time.Duration
	// MaxStale é a idade máxima do último snapshot bom servido quando o
	// recálculo falha. Zero usa DefaultMaxStaleTTLs * TTL.
	MaxStale time.Duration
	Metrics  CacheMetrics
	Logger   *slog.Logger
	// Now substitui time.Now (testes).
	Now func() time.Time
}

// Aggregator responde total/por região a partir de um snapshot em cache.
//
// O snapshot vive no go-cache com TTL e é descartado em cada escrita Created.
// Leituras simultâneas sem cache dividem um único recálculo (singleflight).
// A geração impede que um recálculo iniciado antes de uma invalidação seja
// guardado depois dela.
type Aggregator struct {
	store    RegionCounter
	catalog  domain.Catalog
	ttl      time.Duration
	timeout  time.Duration
	maxStale time.Duration
	metrics  CacheMetrics
	logger   *slog.Logger
	now      func() time.Time

	cache *gocache.Cache
	group singleflight.Group

	mu      sync.Mutex
	gen     uint64
	last    *domain.Snapshot
	lastGen uint64
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSnapshotTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCountTimeout
	}
	if cfg.MaxStale <= 0 {
		cfg.MaxStale = DefaultMaxStaleTTLs * cfg.TTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		store:    cfg.Store,
		catalog:  cfg.Catalog,
		ttl:      cfg.TTL,
		timeout:  cfg.Timeout,
		maxStale: cfg.MaxStale,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      cfg.Now,
		// sem janitor: uma chave só, a expiração é checada no Get
		cache: gocache.New(cfg.TTL, 0),
	}
}

// TTL é o tempo máximo de defasagem de uma leitura.
func (a *Aggregator) TTL() time.Duration { return a.ttl }

// Invalidate descarta o snapshot atual.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	a.gen++
	a.cache.Delete(snapshotKey)
	a.mu.Unlock()
}

func (a *Aggregator) Total(ctx context.Context) (int64, error) {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Total, nil
}

// ByRegion devolve todas as regiões do catálogo, zeradas quando sem assinaturas.
func (a *Aggregator) ByRegion(ctx context.Context) (map[string]int64, error) {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(snap.ByRegion))
	for k, v := range snap.ByRegion {
		out[k] = v
	}
	return out, nil
}

// One devolve a contagem de uma região; código fora do catálogo é ErrUnknownRegion.
func (a *Aggregator) One(ctx context.Context, region string) (string, int64, error) {
	code, ok := a.catalog.Lookup(region)
	if !ok {
		return "", 0, domain.ErrUnknownRegion
	}
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return "", 0, err
	}
	return code, snap.ByRegion[code], nil
}

// Snapshot devolve o snapshot em cache ou recalcula.
// O valor devolvido é compartilhado: não altere o mapa.
func (a *Aggregator) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	if v, ok := a.cache.Get(snapshotKey); ok {
		a.observe(true)
		return v.(*domain.Snapshot), nil
	}
	a.observe(false)

	a.mu.Lock()
	gen := a.gen
	a.mu.Unlock()

	v, err, _ := a.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return a.recompute(ctx, gen)
	})
	if err != nil {
		last := a.lastGood()
		if last != nil && a.now().Sub(last.ComputedAt) <= a.maxStale {
			a.logger.Warn("count recompute failed, serving last snapshot",
				"component", "aggregator",
				"error", err,
				"computed_at", last.ComputedAt,
			)
			return last, nil
		}
		if last != nil {
			a.logger.Error("count recompute failed, last snapshot too old",
				"component", "aggregator",
				"error", err,
				"computed_at", last.ComputedAt,
				"max_stale", a.maxStale,
			)
		}
		return nil, domain.Retryable(fmt.Errorf("count signatures: %w", err))
	}
	return v.(*domain.Snapshot), nil
}

func (a *Aggregator) recompute(ctx context.Context, gen uint64) (*domain.Snapshot, error) {
	// o recálculo é compartilhado: não pode morrer com o primeiro chamador
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "petition.aggregate")
	defer span.End()

	counts, err := a.store.CountByRegion(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	byRegion := a.catalog.ZeroFilled()
	var total int64
	for code, n := range counts {
		if _, ok := byRegion[code]; !ok {
			a.logger.Warn("store reported region outside catalog",
				"component", "aggregator",
				"region", code,
			)
			continue
		}
		byRegion[code] = n
		total += n
	}
	snap := &domain.Snapshot{Total: total, ByRegion: byRegion, ComputedAt: a.now()}
	span.SetAttributes(attribute.Int64("petition.total", total))

	a.mu.Lock()
	if a.gen == gen {
		a.cache.Set(snapshotKey, snap, a.ttl)
	}
	if a.last == nil || gen >= a.lastGen {
		a.last, a.lastGen = snap, gen
	}
	a.mu.Unlock()
	return snap, nil
}

func (a *Aggregator) lastGood() *domain.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *Aggregator) observe(hit bool) {
	if a.metrics != nil {
		a.metrics.SnapshotCache(hit)
	}
}
