package domain

import "context"

type Verdict int

const (
	VerdictUnavailable Verdict = iota
	VerdictVerified
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictVerified:
		return "verified"
	case VerdictRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// Verifier consulta o serviço externo anti-bot.
// Em VerdictUnavailable o erro explica a falha de transporte.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (Verdict, error)
}
