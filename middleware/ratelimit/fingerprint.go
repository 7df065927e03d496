package ratelimit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

const fingerprintLen = 32

// Fingerprinter deriva um identificador não reversível do cliente a partir do
// IP. O valor serve só para rate limit; nunca é exposto ao cliente.
type Fingerprinter struct {
	secret []byte
	base   KeyFunc
}

// NewFingerprinter usa secret como chave HMAC. Sem secret, gera um aleatório
// (fingerprints deixam de ser estáveis entre restarts e entre instâncias).
func NewFingerprinter(secret string, base KeyFunc) (*Fingerprinter, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	if base == nil {
		base = DefaultKeyFunc("", false)
	}
	return &Fingerprinter{secret: key, base: base}, nil
}

// Of devolve o fingerprint de um valor bruto (ex: IP).
func (f *Fingerprinter) Of(raw string) string {
	mac := hmac.New(sha256.New, f.secret)
	_, _ = mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))[:fingerprintLen]
}

// KeyFunc adapta o Fingerprinter ao Middleware.
func (f *Fingerprinter) KeyFunc() KeyFunc {
	return func(r *http.Request) string { return f.Of(f.base(r)) }
}
