package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"petition-gateway/petition/domain"
)

func newTestVerifier(url string) *SiteVerifier {
	return NewSiteVerifier(SiteVerifierConfig{
		URL:          url,
		Secret:       "s3cret",
		Timeout:      2 * time.Second,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
}

func TestSiteVerifier_Verified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("secret") != "s3cret" || r.PostForm.Get("response") != "tok" || r.PostForm.Get("remoteip") != "203.0.113.7" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	verdict, err := newTestVerifier(srv.URL).Verify(context.Background(), "tok", "203.0.113.7")
	if err != nil || verdict != domain.VerdictVerified {
		t.Fatalf("expected verified, got %s err=%v", verdict, err)
	}
}

func TestSiteVerifier_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	verdict, err := newTestVerifier(srv.URL).Verify(context.Background(), "tok", "")
	if err != nil || verdict != domain.VerdictRejected {
		t.Fatalf("expected rejected, got %s err=%v", verdict, err)
	}
}

func TestSiteVerifier_EmptyTokenSkipsCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	verdict, _ := newTestVerifier(srv.URL).Verify(context.Background(), "", "")
	if verdict != domain.VerdictRejected {
		t.Fatalf("expected rejected, got %s", verdict)
	}
	verdict, _ = newTestVerifier(srv.URL).Verify(context.Background(), strings.Repeat("t", maxTokenLen+1), "")
	if verdict != domain.VerdictRejected {
		t.Fatalf("expected rejected for oversized token, got %s", verdict)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no outbound call, got %d", calls)
	}
}

func TestSiteVerifier_RetriesOnceOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	verdict, err := newTestVerifier(srv.URL).Verify(context.Background(), "tok", "")
	if err != nil || verdict != domain.VerdictVerified {
		t.Fatalf("expected verified after retry, got %s err=%v", verdict, err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestSiteVerifier_UnavailableAfterRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	verdict, err := newTestVerifier(srv.URL).Verify(context.Background(), "tok", "")
	if verdict != domain.VerdictUnavailable || err == nil {
		t.Fatalf("expected unavailable with error, got %s err=%v", verdict, err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", got)
	}
}

func TestSiteVerifier_UndecodableBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	verdict, err := newTestVerifier(srv.URL).Verify(context.Background(), "tok", "")
	if verdict != domain.VerdictUnavailable || err == nil {
		t.Fatalf("expected unavailable, got %s err=%v", verdict, err)
	}
}

func TestSiteVerifier_TimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	v := NewSiteVerifier(SiteVerifierConfig{URL: srv.URL, Secret: "s", Timeout: 100 * time.Millisecond})
	start := time.Now()
	verdict, err := v.Verify(context.Background(), "tok", "")
	if verdict != domain.VerdictUnavailable || err == nil {
		t.Fatalf("expected unavailable on timeout, got %s err=%v", verdict, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected call bounded by timeout, took %s", elapsed)
	}
}

func TestAllowAllVerifier(t *testing.T) {
	verdict, err := AllowAllVerifier{}.Verify(context.Background(), "", "")
	if err != nil || verdict != domain.VerdictVerified {
		t.Fatalf("expected verified, got %s err=%v", verdict, err)
	}
}
