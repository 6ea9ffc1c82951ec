// Package source defines the adapter contract for external museum data
// sources and the wrappers (caching, resilience) that every adapter is
// composed with before a pipeline stage calls it.
package source

import (
	"context"

	"github.com/museumatlas/curator/internal/model"
)

// Provider is one external data source. A lookup returns candidate field
// envelopes keyed by record field name; the applier decides what survives.
// Adapters never write to records directly.
type Provider interface {
	// Name identifies the source in provenance and logs.
	Name() string

	// Trust is the level stamped on every envelope this adapter emits.
	Trust() model.TrustLevel

	// CostUSD estimates the cost of one lookup, for the budget reserve
	// check. Zero for local datasets.
	CostUSD() float64

	// Lookup fetches candidate fields for one museum. A failed lookup
	// abandons this record's stage; it never aborts the run.
	Lookup(ctx context.Context, m *model.Museum) (map[string]model.EnrichedField, error)
}
