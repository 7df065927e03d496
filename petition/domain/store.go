package domain

import "context"

// SignatureStore é a fonte de verdade das assinaturas.
//
// Put precisa ser atômico em relação à checagem de unicidade do e-mail:
// duas escritas concorrentes para o mesmo e-mail nunca resultam ambas em
// Created. Um duplicado nunca sobrescreve o registro existente.
//
// Falhas de acesso ao meio durável são devolvidas envolvendo
// ErrStorageUnavailable.
type SignatureStore interface {
	Put(ctx context.Context, c Candidate) (PutResult, error)
	// Get devolve ErrNotFound quando o e-mail não existe.
	Get(ctx context.Context, email string) (Signature, error)
	CountAll(ctx context.Context) (int64, error)
	CountByRegion(ctx context.Context) (map[string]int64, error)
	CountOne(ctx context.Context, region string) (int64, error)
	Close() error
}
