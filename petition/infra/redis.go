package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"petition-gateway/petition/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// putScript insere a assinatura só se o e-mail não existir.
// KEYS: registro, hash de contagens, último horário.
// ARGV: id, name, email, city, region, role, message, fingerprint.
// O horário vem do TIME do Redis, nunca menor que o último gravado.
var putScript = redis.NewScript(`
local cur = redis.call('HGETALL', KEYS[1])
if #cur > 0 then
  return {0, cur}
end
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])
local last = tonumber(redis.call('GET', KEYS[3]) or '0')
if now < last then
  now = last
end
local ts = string.format('%d', now)
redis.call('SET', KEYS[3], ts)
redis.call('HSET', KEYS[1],
  'id', ARGV[1], 'name', ARGV[2], 'email', ARGV[3], 'city', ARGV[4],
  'region', ARGV[5], 'role', ARGV[6], 'message', ARGV[7],
  'fingerprint', ARGV[8], 'submitted_at_us', ts)
redis.call('HINCRBY', KEYS[2], ARGV[5], 1)
return {1, redis.call('HGETALL', KEYS[1])}
`)

// RedisStore guarda cada assinatura num hash e as contagens num hash por região.
// Serve várias instâncias do serviço ao mesmo tempo.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

type RedisStoreOption func(*RedisStore)

// WithStorePrefix troca o prefixo das chaves. O hash tag "{...}" mantém todas
// as chaves no mesmo slot em Redis Cluster.
func WithStorePrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisStore(rdb redis.Cmdable, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "{petition}"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) signatureKey(email string) string { return s.prefix + ":sig:" + email }
func (s *RedisStore) countsKey() string                { return s.prefix + ":counts" }
func (s *RedisStore) lastKey() string                  { return s.prefix + ":last" }

func (s *RedisStore) Put(ctx context.Context, c domain.Candidate) (domain.PutResult, error) {
	keys := []string{s.signatureKey(c.Email), s.countsKey(), s.lastKey()}
	vals, err := putScript.Run(ctx, s.rdb, keys,
		uuid.NewString(), c.Name, c.Email, c.City, c.Region, c.Role, c.Message, c.Fingerprint,
	).Slice()
	if err != nil {
		return domain.PutResult{}, storageErr("put signature", err)
	}
	if len(vals) != 2 {
		return domain.PutResult{}, storageErr("put signature", fmt.Errorf("unexpected script reply %v", vals))
	}
	created, _ := vals[0].(int64)
	pairs, _ := vals[1].([]any)
	sig, err := signatureFromPairs(pairs)
	if err != nil {
		return domain.PutResult{}, storageErr("put signature", err)
	}
	return domain.PutResult{Signature: sig, Created: created == 1}, nil
}

func (s *RedisStore) Get(ctx context.Context, email string) (domain.Signature, error) {
	fields, err := s.rdb.HGetAll(ctx, s.signatureKey(normalizeEmail(email))).Result()
	if err != nil {
		return domain.Signature{}, storageErr("get signature", err)
	}
	if len(fields) == 0 {
		return domain.Signature{}, domain.ErrNotFound
	}
	sig, err := signatureFromMap(fields)
	if err != nil {
		return domain.Signature{}, storageErr("get signature", err)
	}
	return sig, nil
}

func (s *RedisStore) CountAll(ctx context.Context) (int64, error) {
	counts, err := s.CountByRegion(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (s *RedisStore) CountByRegion(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.countsKey()).Result()
	if err != nil {
		return nil, storageErr("count by region", err)
	}
	out := make(map[string]int64, len(raw))
	for region, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, storageErr("count by region", fmt.Errorf("region %s: %w", region, err))
		}
		out[region] = n
	}
	return out, nil
}

func (s *RedisStore) CountOne(ctx context.Context, region string) (int64, error) {
	n, err := s.rdb.HGet(ctx, s.countsKey(), normalizeRegion(region)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("count region", err)
	}
	return n, nil
}

// Close não fecha o cliente: ele é compartilhado com o rate limiter.
func (s *RedisStore) Close() error { return nil }

func signatureFromPairs(pairs []any) (domain.Signature, error) {
	if len(pairs)%2 != 0 {
		return domain.Signature{}, fmt.Errorf("odd HGETALL reply")
	}
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		m[k] = v
	}
	return signatureFromMap(m)
}

func signatureFromMap(m map[string]string) (domain.Signature, error) {
	us, err := strconv.ParseInt(m["submitted_at_us"], 10, 64)
	if err != nil {
		return domain.Signature{}, fmt.Errorf("submitted_at_us: %w", err)
	}
	return domain.Signature{
		ID:          m["id"],
		Name:        m["name"],
		Email:       m["email"],
		City:        m["city"],
		Region:      m["region"],
		Role:        m["role"],
		Message:     m["message"],
		Fingerprint: m["fingerprint"],
		SubmittedAt: time.UnixMicro(us).UTC(),
	}, nil
}
