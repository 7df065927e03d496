package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultKeyFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultKeyFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	if got := fn(r); got != "client-123" {
		t.Fatalf("expected header key, got %q", got)
	}
}

func TestDefaultKeyFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := fn(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestDefaultKeyFunc_IgnoresXForwardedForWhenUntrusted(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestFingerprinter_StableForSameSecret(t *testing.T) {
	a, _ := NewFingerprinter("s1", nil)
	b, _ := NewFingerprinter("s1", nil)
	c, _ := NewFingerprinter("s2", nil)

	if a.Of("1.2.3.4") != b.Of("1.2.3.4") {
		t.Fatalf("expected same fingerprint for same secret")
	}
	if a.Of("1.2.3.4") == c.Of("1.2.3.4") {
		t.Fatalf("expected different fingerprint for different secret")
	}
	if a.Of("1.2.3.4") == a.Of("1.2.3.5") {
		t.Fatalf("expected different fingerprint for different ip")
	}
}

func TestFingerprinter_RandomSecretWhenEmpty(t *testing.T) {
	a, err := NewFingerprinter("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := NewFingerprinter("", nil)
	if a.Of("1.2.3.4") == b.Of("1.2.3.4") {
		t.Fatalf("expected random secrets to differ")
	}
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	cases := map[string]struct {
		in   int64
		want int
	}{
		"zero":     {0, 1},
		"sub-sec":  {int64(200e6), 1},
		"exact":    {int64(2e9), 2},
		"fraction": {int64(2500e6), 3},
	}
	for name, c := range cases {
		if got := RetryAfterSeconds(durationOf(c.in)); got != c.want {
			t.Fatalf("%s: expected %d, got %d", name, c.want, got)
		}
	}
}

func durationOf(ns int64) time.Duration { return time.Duration(ns) }
