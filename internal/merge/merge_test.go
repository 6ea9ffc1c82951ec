package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museumatlas/curator/internal/model"
)

var (
	t0 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	t1 = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
)

func candidate(value any, trust model.TrustLevel, at time.Time) model.EnrichedField {
	ef, err := model.NewEnrichedField(value, "test-source", trust, 3, at)
	if err != nil {
		panic(err)
	}
	return ef
}

func TestMergeNullProtection(t *testing.T) {
	t.Parallel()

	prov := &model.Provenance{Source: "scrape", Trust: model.TrustOfficialSourceExtract, RetrievedAt: t0}

	t.Run("nil candidate cannot blank a known value", func(t *testing.T) {
		t.Parallel()
		val, p, reason := Merge("123 Main St", prov, candidate(nil, model.TrustModelExtracted, t1), false)
		assert.Equal(t, "123 Main St", val)
		assert.Equal(t, prov, p)
		assert.Equal(t, model.ReasonNullProtected, reason)
	})

	t.Run("blank string candidate treated as null", func(t *testing.T) {
		t.Parallel()
		_, _, reason := Merge("123 Main St", prov, candidate("   ", model.TrustOfficialStructuredData, t1), false)
		assert.Equal(t, model.ReasonNullProtected, reason)
	})

	t.Run("null protection holds against high automated trust", func(t *testing.T) {
		t.Parallel()
		// Runs before the lock and trust checks, so even top-ranked
		// automated sources cannot blank a field.
		val, _, reason := Merge("known", prov, candidate(nil, model.TrustOfficialStructuredData, t1), true)
		assert.Equal(t, "known", val)
		assert.Equal(t, model.ReasonNullProtected, reason)
	})

	t.Run("empty current accepts a real candidate", func(t *testing.T) {
		t.Parallel()
		val, p, reason := Merge(nil, nil, candidate("456 Elm St", model.TrustModelExtracted, t1), false)
		assert.Equal(t, "456 Elm St", val)
		require.NotNil(t, p)
		assert.Equal(t, model.ReasonNoExistingProvenance, reason)
		assert.Equal(t, "test-source", p.Source)
		assert.Equal(t, model.TrustModelExtracted, p.Trust)
		assert.Equal(t, t1, p.RetrievedAt)
	})
}

func TestMergeLockSupremacy(t *testing.T) {
	t.Parallel()

	prov := &model.Provenance{Source: "csv", Trust: model.TrustModelGuess, RetrievedAt: t0}

	t.Run("lock blocks higher trust", func(t *testing.T) {
		t.Parallel()
		val, _, reason := Merge("curated name", prov, candidate("scraped name", model.TrustOfficialStructuredData, t1), true)
		assert.Equal(t, "curated name", val)
		assert.Equal(t, model.ReasonManualLock, reason)
	})

	t.Run("manual override passes the lock", func(t *testing.T) {
		t.Parallel()
		val, p, reason := Merge("curated name", prov, candidate("corrected name", model.TrustManualOverride, t1), true)
		assert.Equal(t, "corrected name", val)
		assert.Equal(t, model.TrustManualOverride, p.Trust)
		assert.True(t, reason.Accepted())
	})

	t.Run("manual override may deliberately clear a field", func(t *testing.T) {
		t.Parallel()
		val, p, reason := Merge("stale value", prov, candidate("", model.TrustManualOverride, t1), true)
		assert.Equal(t, "", val)
		assert.Equal(t, model.TrustManualOverride, p.Trust)
		assert.Equal(t, model.ReasonHigherTrust, reason)
	})

	t.Run("no lock no effect", func(t *testing.T) {
		t.Parallel()
		_, _, reason := Merge("curated name", prov, candidate("scraped name", model.TrustOfficialStructuredData, t1), false)
		assert.Equal(t, model.ReasonHigherTrust, reason)
	})
}

func TestMergePlaceholderBlocked(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"unknown", "N/A", "tbd", "None", "NULL", "-", "  Unknown  "} {
		val, p, reason := Merge(nil, nil, candidate(v, model.TrustKnowledgeBase, t1), false)
		assert.Equal(t, model.ReasonPlaceholderBlocked, reason, "value %q", v)
		assert.Nil(t, val)
		assert.Nil(t, p)
	}
}

func TestMergeTrustComparison(t *testing.T) {
	t.Parallel()

	prov := &model.Provenance{Source: "wikipedia", Trust: model.TrustEncyclopediaSummary, RetrievedAt: t0}

	t.Run("higher trust wins regardless of confidence", func(t *testing.T) {
		t.Parallel()
		low, err := model.NewEnrichedField("official value", "opendata", model.TrustOfficialStructuredData, 1, t1)
		require.NoError(t, err)
		val, p, reason := Merge("old value", prov, low, false)
		assert.Equal(t, "official value", val)
		assert.Equal(t, model.ReasonHigherTrust, reason)
		assert.Equal(t, 1, p.Confidence)
	})

	t.Run("lower trust rejected", func(t *testing.T) {
		t.Parallel()
		val, p, reason := Merge("old value", prov, candidate("guess", model.TrustModelGuess, t1), false)
		assert.Equal(t, "old value", val)
		assert.Equal(t, prov, p)
		assert.Equal(t, model.ReasonLowerTrustOrOlder, reason)
	})
}

func TestMergeRecencyTiebreak(t *testing.T) {
	t.Parallel()

	t.Run("equal trust strictly newer accepted", func(t *testing.T) {
		t.Parallel()
		prov := &model.Provenance{Source: "wikidata", Trust: model.TrustKnowledgeBase, RetrievedAt: t0}
		val, p, reason := Merge("Old Name", prov, candidate("Updated Name", model.TrustKnowledgeBase, t1), false)
		assert.Equal(t, "Updated Name", val)
		assert.Equal(t, model.ReasonEqualTrustNewer, reason)
		assert.Equal(t, t1, p.RetrievedAt)
	})

	t.Run("equal trust equal timestamp rejected", func(t *testing.T) {
		t.Parallel()
		prov := &model.Provenance{Source: "wikidata", Trust: model.TrustKnowledgeBase, RetrievedAt: t1}
		_, _, reason := Merge("Old Name", prov, candidate("Updated Name", model.TrustKnowledgeBase, t1), false)
		assert.Equal(t, model.ReasonLowerTrustOrOlder, reason)
	})

	t.Run("equal trust older candidate rejected", func(t *testing.T) {
		t.Parallel()
		prov := &model.Provenance{Source: "wikidata", Trust: model.TrustKnowledgeBase, RetrievedAt: t1}
		_, _, reason := Merge("Old Name", prov, candidate("Stale Name", model.TrustKnowledgeBase, t0), false)
		assert.Equal(t, model.ReasonLowerTrustOrOlder, reason)
	})

	t.Run("missing stored timestamp treated as older", func(t *testing.T) {
		t.Parallel()
		prov := &model.Provenance{Source: "wikidata", Trust: model.TrustKnowledgeBase}
		val, _, reason := Merge("Old Name", prov, candidate("Updated Name", model.TrustKnowledgeBase, t0), false)
		assert.Equal(t, "Updated Name", val)
		assert.Equal(t, model.ReasonEqualTrustNoStamp, reason)
	})
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	// Applying the same candidate to the state it produced must be a no-op
	// with a stable reason.
	cand := candidate("Updated Name", model.TrustKnowledgeBase, t1)
	prov := &model.Provenance{Source: "wikidata", Trust: model.TrustKnowledgeBase, RetrievedAt: t0}

	val1, prov1, reason1 := Merge("Old Name", prov, cand, false)
	assert.Equal(t, model.ReasonEqualTrustNewer, reason1)

	val2, prov2, reason2 := Merge(val1, prov1, cand, false)
	assert.Equal(t, val1, val2)
	assert.Equal(t, prov1, prov2)
	assert.Equal(t, model.ReasonLowerTrustOrOlder, reason2)

	// And a third pass changes nothing.
	val3, prov3, reason3 := Merge(val2, prov2, cand, false)
	assert.Equal(t, val2, val3)
	assert.Equal(t, prov2, prov3)
	assert.Equal(t, reason2, reason3)
}

func TestValueString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ValueString(nil))
	assert.Equal(t, "Louvre", ValueString("Louvre"))
	assert.Equal(t, "4", ValueString(4))
}
