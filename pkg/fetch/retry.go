package fetch

import (
	"math"
	"time"

	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/models"
)

// RetryPolicy decides whether and when a failed attempt is repeated.
// It performs no I/O, so the worker's retry loop can be tested without a network.
type RetryPolicy struct {
	MaxAttempts       int           // Total attempts, including the first
	BaseDelay         time.Duration // Delay before the second attempt
	BackoffMultiplier float64       // Growth factor between consecutive delays
	MaxDelay          time.Duration // Cap on a single delay; 0 means uncapped
	Retryable         map[models.ErrorKind]bool
}

// DefaultRetryableKinds are transient faults: connection refused/reset, DNS and read
// timeouts, and 5xx-equivalent server errors.
func DefaultRetryableKinds() map[models.ErrorKind]bool {
	return map[models.ErrorKind]bool{
		models.ErrorKindConnection:  true,
		models.ErrorKindTimeout:     true,
		models.ErrorKindServerError: true,
	}
}

// DefaultRetryPolicy returns the policy used when no fetch config is supplied.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       config.DefaultMaxAttempts,
		BaseDelay:         config.DefaultRetryBaseDelay,
		BackoffMultiplier: config.DefaultBackoffMultiplier,
		MaxDelay:          config.DefaultRetryMaxDelay,
		Retryable:         DefaultRetryableKinds(),
	}
}

// NewRetryPolicy builds a policy from validated fetch settings.
func NewRetryPolicy(cfg config.FetchConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.RetryBaseDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
		MaxDelay:          cfg.RetryMaxDelay,
		Retryable:         DefaultRetryableKinds(),
	}
}

// NextDelay returns BaseDelay * BackoffMultiplier^(attempt-1), where attempt is the
// 1-indexed attempt that just failed.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}

	backoff := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	// Guard the float -> Duration conversion against overflow for large attempts
	if math.IsInf(backoff, 0) || backoff >= float64(math.MaxInt64) {
		if p.MaxDelay > 0 {
			return p.MaxDelay
		}
		return time.Duration(math.MaxInt64)
	}
	delay := time.Duration(backoff)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// ShouldRetry reports whether another attempt follows the failed one.
func (p RetryPolicy) ShouldRetry(attempt int, kind models.ErrorKind) bool {
	return attempt < p.MaxAttempts && p.IsRetryable(kind)
}

// IsRetryable reports whether kind is a transient fault under this policy.
func (p RetryPolicy) IsRetryable(kind models.ErrorKind) bool {
	return p.Retryable[kind]
}
