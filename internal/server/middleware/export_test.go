package middleware

import (
	"net/http"
	"time"
)

// Budgets exposes a client bucket table driven by a caller-owned clock.
type Budgets struct{ c *clientBudgets }

func NewBudgets(perSecond float64, burst int, now func() time.Time) Budgets {
	return Budgets{c: newClientBudgets(perSecond, burst, now)}
}

func (b Budgets) Forget(idle time.Duration) int { return b.c.forget(idle) }

func (b Budgets) Middleware(next http.Handler) http.Handler { return b.c.middleware(next) }
