// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (token bucket, janela Redis, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP, extração de IP, fingerprint e
//     tradução para status/headers
//
// Fluxo:
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr) e deriva o fingerprint
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, seta Retry-After e delega a resposta ao OnLimited (429)
//  4. Se permitido, chama o próximo handler
//
// O caminho de escrita das assinaturas não usa o middleware: o serviço de
// assinaturas chama application.Service direto, depois da validação.
package ratelimit
