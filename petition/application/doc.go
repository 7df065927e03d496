// Package application contém os casos de uso do serviço de assinaturas:
// validação, fluxo de escrita (SignService) e agregação de contagens
// (Aggregator). Não conhece net/http.
package application
