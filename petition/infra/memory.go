package infra

import (
	"context"
	"strings"
	"sync"

	"petition-gateway/petition/domain"

	"github.com/google/uuid"
)

// MemoryStore guarda as assinaturas num mapa protegido por mutex.
// Serve para um processo único e para testes; nada sobrevive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	byEmail  map[string]domain.Signature
	byRegion map[string]int64
	clock    *monotonicClock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail:  make(map[string]domain.Signature),
		byRegion: make(map[string]int64),
		clock:    newMonotonicClock(),
	}
}

func (s *MemoryStore) Put(ctx context.Context, c domain.Candidate) (domain.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PutResult{}, storageErr("put signature", err)
	}
	// id gerado fora do lock
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byEmail[c.Email]; ok {
		return domain.PutResult{Signature: existing}, nil
	}
	sig := domain.NewSignature(c, id, s.clock.Now())
	s.byEmail[c.Email] = sig
	s.byRegion[c.Region]++
	return domain.PutResult{Signature: sig, Created: true}, nil
}

func (s *MemoryStore) Get(ctx context.Context, email string) (domain.Signature, error) {
	if err := ctx.Err(); err != nil {
		return domain.Signature{}, storageErr("get signature", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return domain.Signature{}, domain.ErrNotFound
	}
	return sig, nil
}

func (s *MemoryStore) CountAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr("count signatures", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byEmail)), nil
}

func (s *MemoryStore) CountByRegion(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("count by region", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.byRegion))
	for k, v := range s.byRegion {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) CountOne(ctx context.Context, region string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr("count region", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byRegion[normalizeRegion(region)], nil
}

func (s *MemoryStore) Close() error { return nil }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRegion(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}
