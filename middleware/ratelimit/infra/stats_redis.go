package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"petition-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const (
	BucketMinute = "minute"
	BucketNone   = "none"
)

// RedisStatsStore acumula contadores de decisão em hashes Redis, um campo por
// resultado (allowed, denied, degraded):
//
//	<prefix>:total                 cumulativo, sem TTL
//	<prefix>:minute:<YYYYMMDDhhmm> série por minuto, com TTL
//	<prefix>:route                 campos "<rota>:<resultado>"
//	<prefix>:key:<fingerprint>     só com trackKeys, com TTL
type RedisStatsStore struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL vale para as chaves por minuto e por fingerprint.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithStatsTrackKeys liga contadores por fingerprint. Cardinalidade alta.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "petition:ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: BucketMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) totalKey() string { return s.prefix + ":total" }
func (s *RedisStatsStore) routeKey() string { return s.prefix + ":route" }

func (s *RedisStatsStore) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func (s *RedisStatsStore) fingerprintKey(k domain.Key) string {
	return s.prefix + ":key:" + string(k)
}

func decisionField(ev domain.StatsEvent) string {
	switch {
	case ev.Degraded:
		return "degraded"
	case ev.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}

// Record implementa domain.StatsStore num único pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := decisionField(ev)
	route := strings.TrimSpace(ev.Route)
	key := domain.Key(strings.TrimSpace(string(ev.Key)))

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.totalKey(), field, 1)
		if s.bucket == BucketMinute {
			s.incrExpiring(ctx, pipe, s.minuteKey(at), field)
		}
		if route != "" {
			pipe.HIncrBy(ctx, s.routeKey(), route+":"+field, 1)
		}
		if s.trackKeys && key != "" {
			s.incrExpiring(ctx, pipe, s.fingerprintKey(key), field)
		}
		return nil
	})
	return err
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Totals devolve os contadores cumulativos por resultado.
func (s *RedisStatsStore) Totals(ctx context.Context) (map[string]int64, error) {
	return s.readHash(ctx, s.totalKey())
}

// Minute devolve os contadores do minuto que contém at (vazio se expirou).
func (s *RedisStatsStore) Minute(ctx context.Context, at time.Time) (map[string]int64, error) {
	return s.readHash(ctx, s.minuteKey(at))
}

// ByRoute devolve rota -> resultado -> contagem.
func (s *RedisStatsStore) ByRoute(ctx context.Context) (map[string]map[string]int64, error) {
	flat, err := s.readHash(ctx, s.routeKey())
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int64)
	for field, n := range flat {
		i := strings.LastIndexByte(field, ':')
		if i <= 0 {
			continue
		}
		route, result := field[:i], field[i+1:]
		if out[route] == nil {
			out[route] = make(map[string]int64)
		}
		out[route][result] = n
	}
	return out, nil
}

func (s *RedisStatsStore) readHash(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats %s field %s: %w", key, field, err)
		}
		out[field] = n
	}
	return out, nil
}
