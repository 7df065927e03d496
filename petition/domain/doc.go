// Package domain define os tipos e contratos do serviço de assinaturas:
// Signature, catálogo de regiões, erros com "kind" estável e as interfaces
// de store e verificador anti-bot.
//
// Não depende de net/http nem de implementações concretas.
package domain
