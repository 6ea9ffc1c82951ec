package source

import (
	"context"

	"github.com/museumatlas/curator/internal/model"
	"github.com/museumatlas/curator/internal/resilience"
)

// Resilient wraps a Provider with retries and a circuit breaker. Composed
// outside the cache wrapper so cache hits bypass the breaker entirely.
type Resilient struct {
	inner   Provider
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// WithResilience wraps a provider in the given retry policy and breaker.
func WithResilience(p Provider, policy resilience.Policy, breaker *resilience.Breaker) *Resilient {
	return &Resilient{inner: p, policy: policy, breaker: breaker}
}

func (r *Resilient) Name() string            { return r.inner.Name() }
func (r *Resilient) Trust() model.TrustLevel { return r.inner.Trust() }
func (r *Resilient) CostUSD() float64        { return r.inner.CostUSD() }

func (r *Resilient) Lookup(ctx context.Context, m *model.Museum) (map[string]model.EnrichedField, error) {
	return resilience.Call(ctx, r.breaker, func(ctx context.Context) (map[string]model.EnrichedField, error) {
		return resilience.Retry(ctx, r.policy, r.inner.Name(), func(ctx context.Context) (map[string]model.EnrichedField, error) {
			return r.inner.Lookup(ctx, m)
		})
	})
}
