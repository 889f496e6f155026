package mailer

import (
	"context"

	"golang.org/x/time/rate"
)

// minRate is the lowest accepted requests-per-second setting.
const minRate = 0.1

// limiter gates attempt starts: one global minimum-interval gate shared by
// every send of a Mailer, plus optional independent per-provider budgets.
type limiter struct {
	global      *rate.Limiter
	perProvider map[string]*rate.Limiter
}

func newLimiter(rps float64, perProvider map[string]float64) *limiter {
	l := &limiter{
		global:      rate.NewLimiter(rate.Limit(clampRate(rps)), 1),
		perProvider: make(map[string]*rate.Limiter, len(perProvider)),
	}
	for name, r := range perProvider {
		if r <= 0 {
			continue
		}
		l.perProvider[name] = rate.NewLimiter(rate.Limit(clampRate(r)), 1)
	}
	return l
}

func clampRate(rps float64) float64 {
	if rps < minRate {
		return minRate
	}
	return rps
}

// wait blocks until the global gate admits one more send.
func (l *limiter) wait(ctx context.Context) error {
	return l.global.Wait(ctx)
}

// waitProvider blocks until name's own budget admits one more attempt. It
// returns immediately for providers without a configured budget.
func (l *limiter) waitProvider(ctx context.Context, name string) error {
	pl, ok := l.perProvider[name]
	if !ok {
		return nil
	}
	return pl.Wait(ctx)
}
