package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry behavior for one class of external call.
type Policy struct {
	// Attempts is the total number of tries, including the first. 1 means
	// no retries.
	Attempts int

	// BaseDelay is the sleep before the first retry; each subsequent retry
	// multiplies it by Growth, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Growth    float64

	// Jitter spreads each delay by the given fraction in both directions.
	Jitter float64

	// Classify decides whether an error is worth retrying. Nil means
	// IsTransient.
	Classify func(error) bool
}

// DefaultPolicy covers typical lookup API behavior.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Growth:    2.0,
		Jitter:    0.25,
	}
}

// PolicyFromConfig builds a Policy from configuration values, leaving
// defaults in place for anything unset.
func PolicyFromConfig(attempts, baseDelayMs, maxDelayMs int, growth, jitter float64) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if baseDelayMs > 0 {
		p.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		p.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	if growth > 0 {
		p.Growth = growth
	}
	if jitter >= 0 {
		p.Jitter = jitter
	}
	return p
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Growth <= 0 {
		p.Growth = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Growth, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Retry runs fn under the policy, returning the first successful value.
// Non-retryable errors and context cancellation end the loop immediately.
// Each retry is logged with the operation name.
func Retry[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !classify(err) {
			return zero, lastErr
		}
		if attempt >= p.Attempts-1 {
			break
		}

		zap.L().Warn("retrying operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// Run is Retry for operations without a return value.
func Run(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
