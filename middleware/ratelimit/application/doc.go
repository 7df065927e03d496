// Package application decide sem conhecer HTTP.
//
// Service.Decide consulta o LimiterStore, cai para "permitido" se o backend
// falhar e registra o evento. ConcurrencyService.Acquire reserva uma vaga no
// pool respeitando o timeout configurado.
package application
