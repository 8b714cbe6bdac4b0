package fixer

import (
	"strings"

	"golang.org/x/time/rate"

	"darwin.app/engine/internal/model"
)

type TriggerMode string

const (
	TriggerOff       TriggerMode = "off"
	TriggerAll       TriggerMode = "all"
	TriggerAllowlist TriggerMode = "allowlist"
)

// Policy decides whether a freshly created task gets an automatic fix.
// Manual triggers bypass it.
type Policy struct {
	mode     TriggerMode
	products map[string]bool
	limiter  *rate.Limiter
}

// NewPolicy builds a policy. perHour caps automatic triggers with a token
// bucket of burst 1; zero or less means unlimited.
func NewPolicy(mode TriggerMode, products []string, perHour float64) *Policy {
	set := make(map[string]bool, len(products))
	for _, p := range products {
		set[strings.ToLower(strings.TrimSpace(p))] = true
	}
	limit := rate.Inf
	if perHour > 0 {
		limit = rate.Limit(perHour / 3600)
	}
	return &Policy{mode: mode, products: set, limiter: rate.NewLimiter(limit, 1)}
}

// Allow reports whether task should be fixed automatically. A true result
// consumes one token from the rate limit.
func (p *Policy) Allow(task *model.Task) bool {
	if p == nil || !task.Category.IsActionable() {
		return false
	}
	switch p.mode {
	case TriggerAll:
	case TriggerAllowlist:
		if task.Product == nil || !p.products[strings.ToLower(*task.Product)] {
			return false
		}
	default:
		return false
	}
	return p.limiter.Allow()
}
