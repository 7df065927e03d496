package infra

import (
	"context"
	"sync"
	"time"

	"petition-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Store é um token-bucket por chave (x/time/rate) com limpeza periódica de
// chaves ociosas. A decisão usa Reserve: quando bloqueia, o atraso da reserva
// vira o Retry-After exato e a reserva é cancelada (não consome token).
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// PerWindow converte "n tentativas por janela" em eventos por segundo.
func PerWindow(n int, window time.Duration) float64 {
	if n <= 0 || window <= 0 {
		return 0
	}
	return float64(n) / window.Seconds()
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[string]*storeEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RPS() float64 { return float64(s.rps) }
func (s *Store) Burst() int   { return s.burst }

// Take implementa domain.LimiterStore.
func (s *Store) Take(_ context.Context, key domain.Key) (domain.Decision, error) {
	now := s.now()
	lim := s.limiter(string(key), now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		// burst 0: nunca permite
		return domain.Decision{Allowed: false}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return domain.Decision{Allowed: false, RetryAfter: d}, nil
	}
	return domain.Decision{Allowed: true}, nil
}

func (s *Store) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

// Len devolve quantas chaves estão em memória.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
