package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

// Key identifica o cliente limitado (fingerprint, API key, etc.).
type Key string

// ErrBackendUnavailable indica que o backend de contagem (ex: Redis) não respondeu.
// A camada application decide se falha aberta ou fechada.
var ErrBackendUnavailable = errors.New("ratelimit: backend unavailable")

// LimiterStore consome uma tentativa para a chave e devolve a decisão.
//
// A implementação pode ser token-bucket em memória (golang.org/x/time/rate),
// janela fixa em Redis, etc. RetryAfter pode vir zerado; nesse caso a
// application aplica o valor padrão.
type LimiterStore interface {
	Take(ctx context.Context, key Key) (Decision, error)
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
