// Package cors aplica a política de CORS por allow-list de origens.
//
// Origens fora da lista recebem a resposta normal, só que sem
// Access-Control-Allow-Origin; quem rejeita é o navegador.
package cors

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidOrigin = errors.New("cors: origin must be an absolute http(s) URL without path")

type Options struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

// AllowList guarda origens normalizadas (scheme://host[:port], minúsculas).
type AllowList struct {
	origins map[string]struct{}
}

// NormalizeOrigin valida e normaliza uma origem.
func NormalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidOrigin
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidOrigin
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", ErrInvalidOrigin
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

func NewAllowList(origins []string) (*AllowList, error) {
	l := &AllowList{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		n, err := NormalizeOrigin(o)
		if err != nil {
			return nil, err
		}
		l.origins[n] = struct{}{}
	}
	return l, nil
}

// Allowed diz se o header Origin bate com a lista.
func (l *AllowList) Allowed(origin string) bool {
	if l == nil || origin == "" {
		return false
	}
	n, err := NormalizeOrigin(origin)
	if err != nil {
		return false
	}
	_, ok := l.origins[n]
	return ok
}

// AllowedURL diz se a origem de uma URL absoluta (ex: redirect) está na lista.
func (l *AllowList) AllowedURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" || u.User != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	_, ok := l.origins[strings.ToLower(u.Scheme+"://"+u.Host)]
	return ok
}

func Middleware(opts Options) (func(next http.Handler) http.Handler, error) {
	list, err := NewAllowList(opts.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Content-Type"}
	}
	methods := strings.Join(opts.AllowedMethods, ", ")
	headers := strings.Join(opts.AllowedHeaders, ", ")
	maxAge := ""
	if opts.MaxAge > 0 {
		maxAge = strconv.Itoa(int(opts.MaxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := list.Allowed(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed {
					h.Set("Access-Control-Allow-Methods", methods)
					h.Set("Access-Control-Allow-Headers", headers)
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
