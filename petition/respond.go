package petition

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"petition-gateway/middleware/ratelimit"
	"petition-gateway/petition/domain"
)

// UnavailableRetryAfter vai no Retry-After das respostas 503.
const UnavailableRetryAfter = 5 * time.Second

const (
	kindMethodNotAllowed = "method_not_allowed"
	kindOverloaded       = "overloaded"
)

type errorBody struct {
	Error      string              `json:"error"`
	Fields     []domain.FieldError `json:"fields,omitempty"`
	RetryAfter int                 `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError traduz err para status + corpo estável.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)
	body := errorBody{Error: string(kind)}
	status := http.StatusInternalServerError

	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			body.Fields = ve.Fields
		}
	case domain.KindBotCheckFailed:
		status = http.StatusForbidden
	case domain.KindRateLimited:
		var rl *domain.RateLimitedError
		retryAfter := time.Second
		if errors.As(err, &rl) {
			retryAfter = rl.RetryAfter
		}
		WriteRateLimited(w, r, retryAfter)
		return
	case domain.KindUnavailable:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", ratelimit.RetryAfterHeader(UnavailableRetryAfter))
		logger.Warn("request failed, dependency unavailable",
			"component", "http",
			"route", r.URL.Path,
			"error", err,
		)
	case domain.KindNotFound:
		status = http.StatusNotFound
	default:
		body.Error = string(domain.KindInternal)
		logger.Error("request failed",
			"component", "http",
			"route", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

func writeValidation(w http.ResponseWriter, status int, field, code string) {
	writeJSON(w, status, errorBody{
		Error:  string(domain.KindValidation),
		Fields: []domain.FieldError{{Field: field, Code: code}},
	})
}

// WriteRateLimited responde 429 com Retry-After em segundos inteiros.
// Tem a forma de ratelimit.OnLimitedFunc para servir também o middleware de leitura.
func WriteRateLimited(w http.ResponseWriter, _ *http.Request, retryAfter time.Duration) {
	secs := ratelimit.RetryAfterSeconds(retryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:      string(domain.KindRateLimited),
		RetryAfter: secs,
	})
}

// WriteOverloaded é a resposta do limite global de concorrência.
func WriteOverloaded(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Retry-After", ratelimit.RetryAfterHeader(time.Second))
	writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: kindOverloaded})
}

func writeNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: string(domain.KindNotFound)})
}

func writeMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: kindMethodNotAllowed})
}
