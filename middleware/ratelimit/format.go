// formatação de valores numéricos em headers, sem puxar fmt.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RetryAfterSeconds arredonda para cima em segundos inteiros, mínimo 1:
// o cliente nunca deve receber "0" e tentar de novo imediatamente.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

// RetryAfterHeader formata o valor do header Retry-After.
func RetryAfterHeader(d time.Duration) string { return formatInt(RetryAfterSeconds(d)) }
