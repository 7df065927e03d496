// Package infra implementa os contratos de domain.
//
//   - Store: token bucket local por fingerprint (x/time/rate), com janitor
//   - RedisWindowStore: janela fixa compartilhada entre instâncias
//   - chanPool: semáforo do limite de concorrência
//   - RedisStatsStore, PromStatsStore: contadores de decisão
package infra
