package application

import (
	"context"
	"errors"
	"time"

	"petition-gateway/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga ficou livre dentro do AcquireTimeout.
var ErrNoSlot = errors.New("ratelimit: no free slot")

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até ctx cancelar.
//   - AcquireTimeout > 0: espera até o timeout.
//
// Se o próprio ctx do chamador encerrou (cliente desistiu) o erro é ctx.Err();
// se foi o timeout, ErrNoSlot.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoSlot
}
