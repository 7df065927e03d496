package ratelimit

import (
	"net/http"
	"time"

	"petition-gateway/middleware/ratelimit/application"
	"petition-gateway/middleware/ratelimit/domain"
	"petition-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool permite injetar o semáforo (ex: para expor InUse em métricas).
	Pool domain.SlotPool
	// OnReject escreve a resposta quando não há vaga.
	OnReject func(w http.ResponseWriter, r *http.Request)
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.OnReject == nil {
		status := opts.RejectStatus
		opts.OnReject = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(status), status)
		}
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if r.Context().Err() != nil {
					// cliente foi embora; não há para quem responder
					return
				}
				opts.OnReject(w, r)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
