package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Route é uma string genérica ("POST /api/sign"); nada aqui depende de HTTP.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key sem controle pode
// explodir o número de séries/chaves em Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Allowed bool
	Route   string
	// Degraded marca decisões tomadas sem o backend (fail-open).
	Degraded bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O chamador trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// MultiStats repassa o evento para vários stores e devolve o primeiro erro.
type MultiStats []StatsStore

func (m MultiStats) Record(ctx context.Context, ev StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
