package redis

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned when writes are rejected because the breaker is open.
var ErrBreakerOpen = errors.New("redis circuit breaker open")

// BreakerConfig configures the write circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32        // consecutive failures before opening
	Timeout     time.Duration // how long to stay open before a half-open probe
	// OnStateChange is invoked on every transition, e.g. to update a gauge.
	OnStateChange func(from, to gobreaker.State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Name == "" {
		c.Name = "redis-writer"
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[redis] breaker %s: %s -> %s", name, from, to)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(from, to)
			}
		},
	})
}

// guard runs fn through the breaker, mapping rejections to ErrBreakerOpen.
func guard(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}
