// Package infra implementa domain.SignatureStore e domain.Verifier.
//
// Stores: MemoryStore (processo único), SQLiteStore (gorm + glebarez/sqlite),
// BadgerStore (KV embarcado) e RedisStore (múltiplas instâncias).
// Todos fazem a inserção condicional por e-mail em um único passo atômico.
//
// Verificador: SiteVerifier fala com um endpoint estilo siteverify
// (Cloudflare Turnstile) via go-retryablehttp; AllowAllVerifier é só para
// desenvolvimento local.
package infra
