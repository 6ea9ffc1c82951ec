package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museumatlas/curator/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Partitions ---

func TestSQLite_Partition_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	strength := 4
	records := []*model.Museum{
		{ID: "louvre", Name: "Louvre", City: "Paris", Country: "France", MuseumType: "art", CollectionStrength: &strength},
		{ID: "prado", Name: "Prado", City: "Madrid", Country: "Spain", MuseumType: "art"},
	}
	require.NoError(t, st.SavePartition(ctx, "europe", records))

	loaded, err := st.LoadPartition(ctx, "europe")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "louvre", loaded[0].ID)
	require.NotNil(t, loaded[0].CollectionStrength)
	assert.Equal(t, 4, *loaded[0].CollectionStrength)
	assert.Equal(t, "Prado", loaded[1].Name)
}

func TestSQLite_Partition_SaveReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SavePartition(ctx, "asia", []*model.Museum{
		{ID: "a", Name: "A"}, {ID: "b", Name: "B"},
	}))
	require.NoError(t, st.SavePartition(ctx, "asia", []*model.Museum{
		{ID: "c", Name: "C"},
	}))

	loaded, err := st.LoadPartition(ctx, "asia")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "c", loaded[0].ID)
}

func TestSQLite_ListPartitions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SavePartition(ctx, "europe", []*model.Museum{{ID: "a"}}))
	require.NoError(t, st.SavePartition(ctx, "americas", []*model.Museum{{ID: "b"}}))

	parts, err := st.ListPartitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"americas", "europe"}, parts)
}

func TestSQLite_LoadPartition_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	loaded, err := st.LoadPartition(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

// --- Provenance ---

func TestSQLite_Provenance_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stamp := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	prov := map[string]map[string]model.Provenance{
		"louvre": {
			"website": {Source: "official_site", Trust: model.TrustOfficialStructuredData, Confidence: 5, RetrievedAt: stamp},
			"city":    {Source: "backbone", Trust: model.TrustKnowledgeBase, Confidence: 4},
		},
	}
	require.NoError(t, st.SaveProvenance(ctx, "europe", prov))

	loaded, err := st.LoadProvenance(ctx, "europe")
	require.NoError(t, err)
	require.Contains(t, loaded, "louvre")

	website := loaded["louvre"]["website"]
	assert.Equal(t, model.TrustOfficialStructuredData, website.Trust)
	assert.Equal(t, 5, website.Confidence)
	assert.True(t, website.RetrievedAt.Equal(stamp))

	// No timestamp stored means the zero time comes back.
	assert.True(t, loaded["louvre"]["city"].RetrievedAt.IsZero())
}

// --- Runs ---

func TestSQLite_Run_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "europe", false)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	summary := &model.RunSummary{
		Changes: []model.ChangeSet{{MuseumID: "louvre", Applied: []string{"website"}}},
		Metrics: model.RunMetrics{BudgetTotalUSD: 10, BudgetSpentUSD: 2.5, RecordsProcessed: 1},
	}
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusCompleted, summary))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Summary)
	require.Len(t, got.Summary.Changes, 1)
	assert.Equal(t, []string{"website"}, got.Summary.Changes[0].Applied)
	assert.InDelta(t, 2.5, got.Summary.Metrics.BudgetSpentUSD, 1e-9)
}

func TestSQLite_Run_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpdateRunStatus(ctx, "missing-run", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = st.GetRun(ctx, "missing-run")
	require.Error(t, err)
}

func TestSQLite_ListRuns_Filtered(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx, "europe", false)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "asia", true)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, r1.ID, model.RunStatusAbortedBudget))

	aborted, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusAbortedBudget})
	require.NoError(t, err)
	require.Len(t, aborted, 1)
	assert.Equal(t, r1.ID, aborted[0].ID)

	byPartition, err := st.ListRuns(ctx, RunFilter{Partition: "asia"})
	require.NoError(t, err)
	require.Len(t, byPartition, 1)
	assert.True(t, byPartition[0].DryRun)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Stages ---

func TestSQLite_Stage_CreateAndComplete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "europe", false)
	require.NoError(t, err)

	stageID, err := st.CreateStage(ctx, run.ID, "backbone_normalization")
	require.NoError(t, err)
	require.NotEmpty(t, stageID)

	result := &model.StageResult{Name: "backbone_normalization", Success: true, Processed: 12}
	require.NoError(t, st.CompleteStage(ctx, stageID, result))

	err = st.CompleteStage(ctx, "missing-stage", result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Review queue ---

func TestSQLite_Recommendations_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	recs := []model.Recommendation{
		{
			RunID:         "run-1",
			MuseumID:      "louvre",
			Field:         "collection_strength",
			ProposedValue: 5,
			Reason:        model.ReasonLowConfidence,
			Provenance:    model.Provenance{Source: "model_extracted", Trust: model.TrustModelExtracted, Confidence: 2},
			CreatedAt:     now,
		},
		{
			RunID:         "run-2",
			MuseumID:      "prado",
			Field:         "visit_duration",
			ProposedValue: "1_3h",
			Reason:        model.ReasonLowConfidence,
			Provenance:    model.Provenance{Source: "encyclopedia", Trust: model.TrustEncyclopediaSummary, Confidence: 2},
			CreatedAt:     now,
		},
	}
	require.NoError(t, st.AddRecommendations(ctx, recs))
	require.NoError(t, st.AddRecommendations(ctx, nil))

	all, err := st.ListRecommendations(ctx, RecommendationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	forLouvre, err := st.ListRecommendations(ctx, RecommendationFilter{MuseumID: "louvre"})
	require.NoError(t, err)
	require.Len(t, forLouvre, 1)
	assert.Equal(t, "run-1", forLouvre[0].RunID)
	assert.Equal(t, "collection_strength", forLouvre[0].Field)
	assert.Equal(t, model.ReasonLowConfidence, forLouvre[0].Reason)
	assert.Equal(t, model.TrustModelExtracted, forLouvre[0].Provenance.Trust)

	forRun, err := st.ListRecommendations(ctx, RecommendationFilter{RunID: "run-2"})
	require.NoError(t, err)
	require.Len(t, forRun, 1)
	assert.Equal(t, "prado", forRun[0].MuseumID)
}

// --- Lookup cache ---

func TestSQLite_LookupCache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedLookup(ctx, "enc:louvre", []byte(`{"summary":"x"}`), time.Hour))

	data, err := st.GetCachedLookup(ctx, "enc:louvre")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"x"}`, string(data))
}

func TestSQLite_LookupCache_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	data, err := st.GetCachedLookup(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSQLite_LookupCache_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedLookup(ctx, "stale", []byte("old"), -time.Hour))

	data, err := st.GetCachedLookup(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, data)

	deleted, err := st.DeleteExpiredLookups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestSQLite_LookupCache_UpsertRefreshes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedLookup(ctx, "k", []byte("v1"), time.Hour))
	require.NoError(t, st.SetCachedLookup(ctx, "k", []byte("v2"), time.Hour))

	data, err := st.GetCachedLookup(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
