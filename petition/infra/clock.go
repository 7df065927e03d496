package infra

import (
	"sync"
	"time"
)

// monotonicClock devolve horários não decrescentes: max(now, último).
// Protege submittedAt contra relógio de parede que volta.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{now: time.Now}
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Round(0)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// observe avança o relógio para pelo menos t (ex.: último registro persistido).
func (c *monotonicClock) observe(t time.Time) {
	c.mu.Lock()
	if t.After(c.last) {
		c.last = t
	}
	c.mu.Unlock()
}
