package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestPriorityScore(t *testing.T) {
	t.Parallel()

	t.Run("flagship museum with dual bonus", func(t *testing.T) {
		t.Parallel()
		// max(5,5)=5, dual bonus applies: (6-5)*3 + (6-5)*2 + 0 + 0 - 2 = 3
		score := PriorityScore(PriorityInput{
			CollectionStrength: intp(5),
			ExhibitionStrength: intp(5),
			HistoricalContext:  intp(5),
			ReputationPenalty:  intp(0),
			CollectionTier:     intp(0),
		})
		require.NotNil(t, score)
		assert.Equal(t, 3, *score)
	})

	t.Run("weak record scores high number", func(t *testing.T) {
		t.Parallel()
		score := PriorityScore(PriorityInput{
			CollectionStrength: intp(1),
			ExhibitionStrength: intp(0),
			HistoricalContext:  intp(1),
			ReputationPenalty:  intp(3),
			CollectionTier:     intp(3),
		})
		require.NotNil(t, score)
		// (6-1)*3 + (6-1)*2 + 3 + 3 = 31
		assert.Equal(t, 31, *score)
	})

	t.Run("cluster bonus at three siblings", func(t *testing.T) {
		t.Parallel()
		in := PriorityInput{
			CollectionStrength: intp(3),
			ExhibitionStrength: intp(2),
			HistoricalContext:  intp(3),
			ReputationPenalty:  intp(1),
			CollectionTier:     intp(1),
		}
		base := PriorityScore(in)
		require.NotNil(t, base)

		in.LocalitySiblings = 2
		assert.Equal(t, *base, *PriorityScore(in), "two siblings earn no bonus")

		in.LocalitySiblings = 3
		assert.Equal(t, *base-1, *PriorityScore(in))
	})

	t.Run("dual bonus requires both strengths at four", func(t *testing.T) {
		t.Parallel()
		with := PriorityScore(PriorityInput{
			CollectionStrength: intp(4),
			ExhibitionStrength: intp(4),
			HistoricalContext:  intp(2),
			ReputationPenalty:  intp(0),
			CollectionTier:     intp(0),
		})
		without := PriorityScore(PriorityInput{
			CollectionStrength: intp(4),
			ExhibitionStrength: intp(3),
			HistoricalContext:  intp(2),
			ReputationPenalty:  intp(0),
			CollectionTier:     intp(0),
		})
		require.NotNil(t, with)
		require.NotNil(t, without)
		assert.Equal(t, *without-2, *with)
	})

	t.Run("missing required input yields nil", func(t *testing.T) {
		t.Parallel()
		cases := []PriorityInput{
			{ExhibitionStrength: intp(3), HistoricalContext: intp(3), ReputationPenalty: intp(0), CollectionTier: intp(0)},
			{CollectionStrength: intp(3), HistoricalContext: intp(3), ReputationPenalty: intp(0), CollectionTier: intp(0)},
			{CollectionStrength: intp(3), ExhibitionStrength: intp(3), ReputationPenalty: intp(0), CollectionTier: intp(0)},
			{CollectionStrength: intp(3), ExhibitionStrength: intp(3), HistoricalContext: intp(3), CollectionTier: intp(0)},
			{CollectionStrength: intp(3), ExhibitionStrength: intp(3), HistoricalContext: intp(3), ReputationPenalty: intp(0)},
		}
		for _, in := range cases {
			assert.Nil(t, PriorityScore(in))
		}
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		t.Parallel()
		in := PriorityInput{
			CollectionStrength: intp(4),
			ExhibitionStrength: intp(2),
			HistoricalContext:  intp(5),
			ReputationPenalty:  intp(1),
			CollectionTier:     intp(2),
			LocalitySiblings:   4,
		}
		first := PriorityScore(in)
		for i := 0; i < 10; i++ {
			again := PriorityScore(in)
			require.NotNil(t, again)
			assert.Equal(t, *first, *again)
		}
	})
}

func TestPriorityFor(t *testing.T) {
	t.Parallel()

	m := &Museum{
		CollectionStrength: intp(5),
		ExhibitionStrength: intp(5),
		HistoricalContext:  intp(5),
		ReputationPenalty:  intp(0),
		CollectionTier:     intp(0),
	}
	score := PriorityFor(m, 0)
	require.NotNil(t, score)
	assert.Equal(t, 3, *score)

	assert.Nil(t, PriorityFor(&Museum{}, 0), "unscored record has no priority")
}
