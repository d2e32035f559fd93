package util

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out watch-mode rebuilds: up to burst rebuilds run back to
// back, after which they are held to perSecond.
type Throttle struct {
	bucket *rate.Limiter
}

// NewThrottle returns a throttle of perSecond rebuilds. A non-positive rate
// never holds a rebuild back.
func NewThrottle(perSecond float64, burst int) *Throttle {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Throttle{bucket: rate.NewLimiter(limit, max(burst, 1))}
}

// Next claims the next rebuild slot and reports how long to wait for it.
func (t *Throttle) Next() time.Duration {
	return t.bucket.Reserve().Delay()
}
