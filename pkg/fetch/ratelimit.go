package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter spaces out request starts per host for politeness. It is independent
// of the Gate: the gate bounds how many requests are in flight, this bounds how
// often a new one may start.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	minDelay time.Duration
	log      *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. A minDelay <= 0 disables waiting.
func NewRateLimiter(minDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		minDelay: minDelay,
		log:      log,
	}
}

// Wait blocks until a request to host may start, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.minDelay <= 0 {
		return nil
	}
	limiter := rl.limiterFor(host)

	r := limiter.Reserve()
	if !r.OK() {
		return nil
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	rl.log.WithFields(logrus.Fields{"host": host, "sleep": delay, "required_delay": rl.minDelay}).
		Debug("Rate limit applying sleep")

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

func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[host]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists := rl.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Every(rl.minDelay), 1)
	rl.limiters[host] = limiter
	return limiter
}

// Hosts returns how many hosts have a limiter.
func (rl *RateLimiter) Hosts() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}
