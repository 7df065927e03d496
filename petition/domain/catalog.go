package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultRegions são os 50 estados dos EUA mais o distrito federal (DC).
var DefaultRegions = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
	"DC",
}

var ErrEmptyCatalog = errors.New("region catalog is empty")

// Catalog é o conjunto imutável de códigos de região aceitos.
// É montado uma vez no startup e injetado onde precisa.
type Catalog struct {
	codes []string
	set   map[string]struct{}
}

// NewCatalog valida e normaliza os códigos (maiúsculas, sem duplicatas).
func NewCatalog(codes []string) (Catalog, error) {
	set := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		n := strings.ToUpper(strings.TrimSpace(c))
		if !validCode(n) {
			return Catalog{}, fmt.Errorf("invalid region code %q", c)
		}
		if _, dup := set[n]; dup {
			return Catalog{}, fmt.Errorf("duplicate region code %q", n)
		}
		set[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return Catalog{}, ErrEmptyCatalog
	}
	sort.Strings(out)
	return Catalog{codes: out, set: set}, nil
}

// MustDefaultCatalog devolve o catálogo padrão.
func MustDefaultCatalog() Catalog {
	c, err := NewCatalog(DefaultRegions)
	if err != nil {
		panic(err)
	}
	return c
}

func validCode(c string) bool {
	if len(c) < 2 || len(c) > 8 {
		return false
	}
	for _, r := range c {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Lookup compara sem diferenciar maiúsculas e devolve a forma canônica.
func (c Catalog) Lookup(code string) (string, bool) {
	n := strings.ToUpper(strings.TrimSpace(code))
	_, ok := c.set[n]
	return n, ok
}

// Codes devolve uma cópia ordenada dos códigos.
func (c Catalog) Codes() []string {
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out
}

func (c Catalog) Len() int { return len(c.codes) }

// ZeroFilled devolve um mapa com todas as regiões do catálogo, zeradas.
func (c Catalog) ZeroFilled() map[string]int64 {
	m := make(map[string]int64, len(c.codes))
	for _, code := range c.codes {
		m[code] = 0
	}
	return m
}
