// Package store persists museum partitions, provenance sidecars, run
// artifacts, and the source lookup cache. Two backends: SQLite (default)
// and Postgres.
package store

import (
	"context"
	"time"

	"github.com/museumatlas/curator/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	Partition string          `json:"partition,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// RecommendationFilter specifies criteria for listing review-queue entries.
type RecommendationFilter struct {
	MuseumID string `json:"museum_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Store defines the persistence contract for the curation pipeline.
//
// Partitions follow a single-writer model: LoadPartition at stage start,
// SavePartition (an atomic rewrite) at stage end. Concurrent runs against
// the same partition are the caller's responsibility to serialize; the
// Postgres backend additionally takes a per-partition advisory lock.
type Store interface {
	// Partitions
	LoadPartition(ctx context.Context, partition string) ([]*model.Museum, error)
	SavePartition(ctx context.Context, partition string, records []*model.Museum) error
	ListPartitions(ctx context.Context) ([]string, error)

	// Provenance sidecar, keyed museum id -> field.
	LoadProvenance(ctx context.Context, partition string) (map[string]map[string]model.Provenance, error)
	SaveProvenance(ctx context.Context, partition string, prov map[string]map[string]model.Provenance) error

	// Runs
	CreateRun(ctx context.Context, partition string, dryRun bool) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stage artifacts
	CreateStage(ctx context.Context, runID, name string) (string, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Review queue
	AddRecommendations(ctx context.Context, recs []model.Recommendation) error
	ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]model.Recommendation, error)

	// Source lookup cache, content-addressed by request key. Entries expire
	// by TTL and are refreshed on miss, never invalidated eagerly.
	GetCachedLookup(ctx context.Context, key string) ([]byte, error)
	SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredLookups(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
