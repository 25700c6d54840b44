package notification

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when an alert is dropped by the rate limiter.
var ErrRateLimited = errors.New("notification: rate limited")

// RateLimited caps how many alerts next receives. A choppy market can flip
// many series at once; excess alerts are dropped, not queued.
type RateLimited struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute alerts on average with bursts of burst.
func NewRateLimited(next Notifier, perMinute float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/perMinute)), burst),
	}
}

func (r *RateLimited) Send(ctx context.Context, alert Alert) error {
	if !r.limiter.Allow() {
		return ErrRateLimited
	}
	return r.next.Send(ctx, alert)
}
