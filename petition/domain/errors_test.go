package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("email", CodeInvalid)

	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{ve, KindValidation},
		{fmt.Errorf("sign: %w", ve), KindValidation},
		{&RateLimitedError{RetryAfter: time.Second}, KindRateLimited},
		{ErrBotCheckFailed, KindBotCheckFailed},
		{Retryable(ErrVerifierUnavailable), KindUnavailable},
		{fmt.Errorf("put: %w", ErrStorageUnavailable), KindUnavailable},
		{ErrUnknownRegion, KindNotFound},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Fatalf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestRetryable_DoesNotDoubleWrap(t *testing.T) {
	err := Retryable(Retryable(ErrStorageUnavailable))
	var re *RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryableError")
	}
	if _, nested := re.Err.(*RetryableError); nested {
		t.Fatalf("expected single wrapping")
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected errors.Is to see ErrStorageUnavailable")
	}
}

func TestValidationError_OrNil(t *testing.T) {
	ve := &ValidationError{}
	if ve.OrNil() != nil {
		t.Fatalf("expected nil for empty validation error")
	}
	ve.Add("name", CodeRequired)
	if ve.OrNil() == nil {
		t.Fatalf("expected error when fields present")
	}
}
