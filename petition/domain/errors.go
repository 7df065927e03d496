package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrBotCheckFailed      = errors.New("bot check failed")
	ErrVerifierUnavailable = errors.New("verifier unavailable")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrNotFound            = errors.New("not found")
	ErrUnknownRegion       = fmt.Errorf("unknown region: %w", ErrNotFound)
)

// Kind é o identificador estável que vai no campo "error" das respostas.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindBotCheckFailed Kind = "bot_check_failed"
	KindRateLimited    Kind = "rate_limited"
	KindUnavailable    Kind = "unavailable"
	KindNotFound       Kind = "not_found"
	KindInternal       Kind = "internal"
)

// Códigos de FieldError.
const (
	CodeRequired      = "required"
	CodeTooLong       = "too_long"
	CodeInvalid       = "invalid"
	CodeControlChars  = "control_chars"
	CodeUnknownRegion = "unknown_region"
)

type FieldError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
}

// ValidationError lista todos os campos inválidos, não só o primeiro.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+":"+f.Code)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Add registra mais um campo inválido.
func (e *ValidationError) Add(field, code string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code})
}

// OrNil devolve nil quando não há campos, para uso como error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryableError marca falhas transitórias (verificador ou store).
// O cliente pode reenviar com backoff.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable envolve err, preservando errors.Is/As.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return err
	}
	return &RetryableError{Err: err}
}

// KindOf classifica um erro para a resposta.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		rl *RateLimitedError
		re *RetryableError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &rl):
		return KindRateLimited
	case errors.Is(err, ErrBotCheckFailed):
		return KindBotCheckFailed
	case errors.As(err, &re),
		errors.Is(err, ErrVerifierUnavailable),
		errors.Is(err, ErrStorageUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
