package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"petition-gateway/middleware/ratelimit/application"
	"petition-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// OnLimitedFunc escreve a resposta de bloqueio. Retry-After já foi setado.
type OnLimitedFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	OnLimited           OnLimitedFunc
	// Route rotula os eventos de estatística; vazio usa "METHOD path".
	Route  string
	Logger *slog.Logger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// ClientIP extrai o IP do cliente: header configurado, X-Forwarded-For (se
// confiável) e por fim RemoteAddr.
func ClientIP(r *http.Request, keyHeader string, trustXFF bool) string {
	if keyHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
			return v
		}
	}

	if trustXFF {
		// primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := xff
			if i := strings.IndexByte(xff, ','); i >= 0 {
				first = xff[:i]
			}
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r, keyHeader, trustXFF)
	}
}

// Limiter é o que o middleware precisa da camada application.
type Limiter interface {
	Decide(ctx context.Context, key domain.Key, route string) domain.Decision
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = application.DefaultRetryAfter
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.OnLimited == nil {
		status := opts.RejectStatus
		opts.OnLimited = func(w http.ResponseWriter, _ *http.Request, _ time.Duration) {
			http.Error(w, http.StatusText(status), status)
		}
	}

	var svc Limiter = application.Service{
		Store:      opts.Store,
		Stats:      opts.Stats,
		RetryAfter: opts.RetryAfter,
		Logger:     opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			route := opts.Route
			if route == "" {
				route = r.Method + " " + r.URL.Path
			}

			dec := svc.Decide(r.Context(), domain.Key(key), route)
			if !dec.Allowed {
				w.Header().Set("Retry-After", RetryAfterHeader(dec.RetryAfter))
				opts.OnLimited(w, r, dec.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
