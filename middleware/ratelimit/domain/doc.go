// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Os adapters (HTTP, serviço de assinaturas) falam só com estes contratos.
package domain
