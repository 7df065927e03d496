package application

import (
	"context"
	"strconv"
	"sync"
	"time"

	rldomain "petition-gateway/middleware/ratelimit/domain"
	"petition-gateway/petition/domain"
)

// fakeStore é um SignatureStore em memória para testes deste pacote.
type fakeStore struct {
	mu       sync.Mutex
	byEmail  map[string]domain.Signature
	putErr   error
	countErr error
	puts     int
	counts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byEmail: map[string]domain.Signature{}}
}

func (s *fakeStore) Put(_ context.Context, c domain.Candidate) (domain.PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return domain.PutResult{}, s.putErr
	}
	if existing, ok := s.byEmail[c.Email]; ok {
		return domain.PutResult{Signature: existing}, nil
	}
	sig := domain.NewSignature(c, "id-"+strconv.Itoa(len(s.byEmail)+1), time.Now())
	s.byEmail[c.Email] = sig
	return domain.PutResult{Signature: sig, Created: true}, nil
}

func (s *fakeStore) Get(_ context.Context, email string) (domain.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.byEmail[email]
	if !ok {
		return domain.Signature{}, domain.ErrNotFound
	}
	return sig, nil
}

func (s *fakeStore) CountAll(ctx context.Context) (int64, error) {
	m, err := s.CountByRegion(ctx)
	var n int64
	for _, v := range m {
		n += v
	}
	return n, err
}

func (s *fakeStore) CountByRegion(context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts++
	if s.countErr != nil {
		return nil, s.countErr
	}
	out := map[string]int64{}
	for _, sig := range s.byEmail {
		out[sig.Region]++
	}
	return out, nil
}

func (s *fakeStore) CountOne(ctx context.Context, region string) (int64, error) {
	m, err := s.CountByRegion(ctx)
	return m[region], err
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) setCountErr(err error) {
	s.mu.Lock()
	s.countErr = err
	s.mu.Unlock()
}

func (s *fakeStore) countCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

type fakeVerifier struct {
	mu      sync.Mutex
	verdict domain.Verdict
	err     error
	calls   int
}

func (v *fakeVerifier) Verify(context.Context, string, string) (domain.Verdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.verdict, v.err
}

// fakeLimiter permite as primeiras n decisões por chave.
type fakeLimiter struct {
	n    int
	seen map[rldomain.Key]int
}

func (l *fakeLimiter) Decide(_ context.Context, key rldomain.Key, _ string) rldomain.Decision {
	if l.seen == nil {
		l.seen = map[rldomain.Key]int{}
	}
	l.seen[key]++
	if l.seen[key] > l.n {
		return rldomain.Decision{RetryAfter: 12 * time.Second}
	}
	return rldomain.Decision{Allowed: true}
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	verdicts []string
	hits     int
	misses   int
}

func (m *recordingMetrics) SignOutcome(o string) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, o)
	m.mu.Unlock()
}

func (m *recordingMetrics) VerifierVerdict(v string) {
	m.mu.Lock()
	m.verdicts = append(m.verdicts, v)
	m.mu.Unlock()
}

func (m *recordingMetrics) SnapshotCache(hit bool) {
	m.mu.Lock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
	m.mu.Unlock()
}
