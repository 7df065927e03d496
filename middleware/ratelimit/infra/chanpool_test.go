package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_AcquireReleaseTracksInUse(t *testing.T) {
	p := NewChanPool(2)

	r1, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first slot")
	}
	r2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected second slot")
	}
	if p.InUse() != 2 {
		t.Fatalf("expected 2 in use, got %d", p.InUse())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected third acquire to time out")
	}

	r1()
	r2()
	if p.InUse() != 0 {
		t.Fatalf("expected 0 in use, got %d", p.InUse())
	}
}

func TestChanPool_CanceledContextNeverAcquires(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected canceled context to be rejected")
	}
}
