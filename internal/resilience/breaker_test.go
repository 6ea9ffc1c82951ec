package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(ctx context.Context) (string, error) {
	return "", eris.New("source down")
}

func succeeding(ctx context.Context) (string, error) {
	return "ok", nil
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Call(ctx, b, failing)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSourceUnavailable)
	}
	assert.Equal(t, StateOpen, b.State())

	_, err := Call(ctx, b, succeeding)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(3, time.Minute)
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	_, _ = Call(ctx, b, failing)
	_, err := Call(ctx, b, succeeding)
	require.NoError(t, err)

	_, _ = Call(ctx, b, failing)
	_, _ = Call(ctx, b, failing)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	assert.Equal(t, StateOpen, b.State())

	// Cooldown elapses; the next call is a probe.
	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateProbing, b.State())

	val, err := Call(ctx, b, succeeding)
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	now = now.Add(2 * time.Minute)

	_, err := Call(ctx, b, failing)
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())

	_, err = Call(ctx, b, succeeding)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(1, time.Hour)
	_, _ = Call(context.Background(), b, failing)
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())

	_, err := Call(context.Background(), b, succeeding)
	assert.NoError(t, err)
}

func TestBreakerSet_PerSource(t *testing.T) {
	t.Parallel()

	set := NewBreakerSet(1, time.Hour)
	ctx := context.Background()

	_, _ = Call(ctx, set.For("encyclopedia"), failing)

	assert.Equal(t, StateOpen, set.For("encyclopedia").State())
	assert.Equal(t, StateClosed, set.For("geocode").State())

	// Same name returns the same breaker.
	assert.Same(t, set.For("encyclopedia"), set.For("encyclopedia"))

	states := set.States()
	assert.Equal(t, StateOpen, states["encyclopedia"])
	assert.Equal(t, StateClosed, states["geocode"])
}

func TestBreakerStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "probing", StateProbing.String())
}
