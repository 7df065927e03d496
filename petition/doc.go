// Package petition é o adapter HTTP do serviço de assinaturas.
//
// Rotas:
//
//	POST    /api/sign   grava uma assinatura (form, multipart ou JSON)
//	OPTIONS /api/sign   preflight CORS
//	GET     /api/count  total, ?group=region ou ?region=CODE
//	GET     /healthz    liveness
//	GET     /metrics    Prometheus (opcional)
//
// Toda falha sai como JSON {"error": kind}; o texto interno do erro nunca
// chega ao cliente.
package petition
