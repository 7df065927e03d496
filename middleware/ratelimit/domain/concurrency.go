package domain

import "context"

// SlotPool limita quantas requisições ficam em voo ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar; o release
// devolvido deve ser chamado exatamente uma vez. InUse serve para métricas.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
}
