package ratelimit

import (
	"context"
	"fmt"
	"time"

	"rocketwatch/internal/metrics"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket for one upstream API.
type Limiter struct {
	limiter *rate.Limiter
	api     string
}

// New returns a limiter allowing rps requests per second with the given
// burst. A non-positive rps disables limiting.
func New(rps float64, burst int, api string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst), api: api}
}

// Wait blocks until one token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token for %s", l.api)
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.api).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
