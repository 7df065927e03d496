package application

import (
	"context"
	"io"
	"log/slog"
	"time"

	"petition-gateway/middleware/ratelimit/domain"
)

// DefaultRetryAfter é usado quando o store bloqueia sem sugerir espera.
const DefaultRetryAfter = 1 * time.Second

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Se o backend falhar a decisão é "permitido" (fail-open): o verificador
// anti-bot continua protegendo a escrita.
type Service struct {
	Store      domain.LimiterStore
	Stats      domain.StatsStore
	RetryAfter time.Duration
	Logger     *slog.Logger
}

func (s Service) Decide(ctx context.Context, key domain.Key, route string) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = DefaultRetryAfter
	}

	dec, err := s.Store.Take(ctx, key)
	degraded := false
	if err != nil {
		s.logger().Warn(
			"rate limit backend failed, allowing request",
			"component", "ratelimit",
			"route", route,
			"error", err,
		)
		dec = domain.Decision{Allowed: true}
		degraded = true
	}
	if dec.Allowed {
		dec.RetryAfter = 0
	} else if dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
	}

	if s.Stats != nil {
		_ = s.Stats.Record(ctx, domain.StatsEvent{
			Key:      key,
			Allowed:  dec.Allowed,
			Route:    route,
			Degraded: degraded,
			At:       time.Now(),
		})
	}
	return dec
}

func (s Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}
