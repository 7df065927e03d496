package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	rldomain "petition-gateway/middleware/ratelimit/domain"
	"petition-gateway/petition/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SignRoute rotula as decisões de rate limit do caminho de escrita.
const SignRoute = "POST /api/sign"

const DefaultStoreTimeout = 3 * time.Second

var tracer = otel.Tracer("petition-gateway/petition/application")

// RateLimiter é o pedaço de ratelimit/application.Service usado aqui.
type RateLimiter interface {
	Decide(ctx context.Context, key rldomain.Key, route string) rldomain.Decision
}

// Invalidator descarta o snapshot de contagens após uma escrita nova.
type Invalidator interface {
	Invalidate()
}

// SignMetrics recebe os resultados do fluxo de escrita. Pode ser nil.
type SignMetrics interface {
	SignOutcome(outcome string)
	VerifierVerdict(verdict string)
}

// SignService executa o caminho de escrita:
// validação -> rate limit -> verificação anti-bot -> store -> invalidação.
type SignService struct {
	Validator    Validator
	Limiter      RateLimiter
	Verifier     domain.Verifier
	Store        domain.SignatureStore
	Counts       Invalidator
	StoreTimeout time.Duration
	Metrics      SignMetrics
	Logger       *slog.Logger
}

// Sign devolve o registro criado ou, para e-mail repetido, o registro original
// com Created=false. Duplicado não é erro.
func (s *SignService) Sign(ctx context.Context, sub domain.Submission) (domain.PutResult, error) {
	ctx, span := tracer.Start(ctx, "petition.sign")
	defer span.End()

	res, err := s.sign(ctx, sub)

	outcome := outcomeOf(res, err)
	span.SetAttributes(attribute.String("petition.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
	}
	if s.Metrics != nil {
		s.Metrics.SignOutcome(outcome)
	}
	return res, err
}

func (s *SignService) sign(ctx context.Context, sub domain.Submission) (domain.PutResult, error) {
	cand, err := s.Validator.Validate(sub)
	if err != nil {
		return domain.PutResult{}, err
	}

	if s.Limiter != nil {
		dec := s.Limiter.Decide(ctx, rldomain.Key(sub.Fingerprint), SignRoute)
		if !dec.Allowed {
			s.logger().Debug("sign rate limited",
				"component", "sign",
				"fingerprint", sub.Fingerprint,
				"retry_after", dec.RetryAfter,
			)
			return domain.PutResult{}, &domain.RateLimitedError{RetryAfter: dec.RetryAfter}
		}
	}

	if err := s.verify(ctx, sub); err != nil {
		return domain.PutResult{}, err
	}

	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	storeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.Store.Put(storeCtx, cand)
	if err != nil {
		s.logger().Error("signature store put failed",
			"component", "sign",
			"error", err,
		)
		return domain.PutResult{}, domain.Retryable(fmt.Errorf("put signature: %w", err))
	}

	if res.Created && s.Counts != nil {
		s.Counts.Invalidate()
	}
	return res, nil
}

func (s *SignService) verify(ctx context.Context, sub domain.Submission) error {
	verdict, err := s.Verifier.Verify(ctx, sub.Token, sub.RemoteIP)
	if s.Metrics != nil {
		s.Metrics.VerifierVerdict(verdict.String())
	}
	switch verdict {
	case domain.VerdictVerified:
		return nil
	case domain.VerdictRejected:
		return domain.ErrBotCheckFailed
	default:
		s.logger().Warn("bot verifier unavailable",
			"component", "sign",
			"error", err,
		)
		if err == nil {
			err = domain.ErrVerifierUnavailable
		}
		return domain.Retryable(fmt.Errorf("%w: %w", domain.ErrVerifierUnavailable, err))
	}
}

func outcomeOf(res domain.PutResult, err error) string {
	if err != nil {
		return string(domain.KindOf(err))
	}
	if res.Created {
		return "created"
	}
	return "duplicate"
}

func (s *SignService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}
