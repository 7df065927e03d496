package application

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"petition-gateway/petition/domain"
)

// Limites em runes.
const (
	MaxNameLen    = 200
	MaxEmailLen   = 254
	MaxCityLen    = 200
	MaxRoleLen    = 200
	MaxMessageLen = 2000
)

// Validator normaliza e restringe os campos enviados.
//
// Entrada malformada é caso esperado: Validate devolve *domain.ValidationError
// com todos os campos violados, nunca pânico.
type Validator struct {
	Catalog domain.Catalog
	// RedirectAllowed decide se um redirect pedido pelo cliente é aceito.
	// Nil rejeita qualquer redirect.
	RedirectAllowed func(raw string) bool
}

type fieldRule struct {
	name     string
	max      int
	required bool
	// multiline aceita \n, \r e \t.
	multiline bool
}

func (v Validator) Validate(s domain.Submission) (domain.Candidate, error) {
	ve := &domain.ValidationError{}
	c := domain.Candidate{Fingerprint: s.Fingerprint}

	c.Name = checkText(ve, fieldRule{name: "name", max: MaxNameLen, required: true}, s.Name)

	if email := checkText(ve, fieldRule{name: "email", max: MaxEmailLen, required: true}, s.Email); email != "" {
		if validEmail(email) {
			c.Email = strings.ToLower(email)
		} else {
			ve.Add("email", domain.CodeInvalid)
		}
	}

	c.City = checkText(ve, fieldRule{name: "city", max: MaxCityLen, required: true}, s.City)

	if region := checkText(ve, fieldRule{name: "region", max: 16, required: true}, s.Region); region != "" {
		if code, ok := v.Catalog.Lookup(region); ok {
			c.Region = code
		} else {
			ve.Add("region", domain.CodeUnknownRegion)
		}
	}

	c.Role = checkText(ve, fieldRule{name: "role", max: MaxRoleLen}, s.Role)
	c.Message = checkText(ve, fieldRule{name: "message", max: MaxMessageLen, multiline: true}, s.Message)

	if redirect := strings.TrimSpace(s.Redirect); redirect != "" {
		if v.RedirectAllowed == nil || !v.RedirectAllowed(redirect) {
			ve.Add("redirect", domain.CodeInvalid)
		}
	}

	if err := ve.OrNil(); err != nil {
		return domain.Candidate{}, err
	}
	return c, nil
}

// checkText devolve o valor aparado, ou "" quando o campo foi rejeitado.
func checkText(ve *domain.ValidationError, rule fieldRule, raw string) string {
	val := strings.TrimSpace(raw)
	if val == "" {
		if rule.required {
			ve.Add(rule.name, domain.CodeRequired)
		}
		return ""
	}
	if !utf8.ValidString(val) || hasControl(val, rule.multiline) {
		ve.Add(rule.name, domain.CodeControlChars)
		return ""
	}
	if utf8.RuneCountInString(val) > rule.max {
		ve.Add(rule.name, domain.CodeTooLong)
		return ""
	}
	return val
}

func hasControl(s string, multiline bool) bool {
	for _, r := range s {
		if multiline && (r == '\n' || r == '\r' || r == '\t') {
			continue
		}
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// validEmail aceita só o endereço puro (sem display name) e exige ponto no domínio.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return false
	}
	host := s[at+1:]
	return strings.Contains(host, ".") && !strings.HasSuffix(host, ".") && !strings.HasPrefix(host, ".")
}
