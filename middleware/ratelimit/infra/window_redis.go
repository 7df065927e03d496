package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"petition-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore é uma janela fixa compartilhada entre instâncias:
// INCR + PEXPIRE numa chave por (cliente, índice da janela).
//
// Na virada da janela o cliente pode passar até 2x o limite.
type RedisWindowStore struct {
	rdb    redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisWindowStore(rdb redis.Cmdable, limit int, window time.Duration, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "petition:ratelimit",
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implementa domain.LimiterStore.
func (s *RedisWindowStore) Take(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if s.window <= 0 {
		return domain.Decision{Allowed: true}, nil
	}

	now := s.now()
	idx := now.UnixNano() / int64(s.window)
	windowEnd := time.Unix(0, (idx+1)*int64(s.window))
	k := fmt.Sprintf("%s:%s:%d", s.prefix, key, idx)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, s.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	if incr.Val() > s.limit {
		return domain.Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return domain.Decision{Allowed: true}, nil
}
