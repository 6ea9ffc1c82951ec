// Package record applies batches of candidate field values to museum
// records, wrapping the merge engine with normalization, the domain
// eligibility gate, and the volatility gate.
package record

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/museumatlas/curator/internal/merge"
	"github.com/museumatlas/curator/internal/model"
)

// Gates configures the applier's business rules on top of the merge engine.
type Gates struct {
	// ConfidenceThreshold is the minimum candidate confidence for volatile
	// fields to auto-apply.
	ConfidenceThreshold int

	// VolatileFields auto-apply only at encyclopedia trust or better AND at
	// or above the confidence threshold; otherwise they are routed to the
	// review queue.
	VolatileFields []string

	// DomainFields maps field keys to the museum type that must be set on
	// the record for the field to be eligible at all.
	DomainFields map[string]string
}

// DefaultGates returns the curated gate configuration.
func DefaultGates() Gates {
	return Gates{
		ConfidenceThreshold: 3,
		VolatileFields: []string{
			"collection_strength",
			"exhibition_strength",
			"historical_context",
			"reputation_penalty",
			"collection_tier",
			"visit_duration",
		},
		DomainFields: map[string]string{
			"art_movement":     "art",
			"featured_artists": "art",
		},
	}
}

// Applier gates, normalizes, and merges candidate batches onto records.
type Applier struct {
	gates Gates
	now   func() time.Time
}

// NewApplier creates an Applier with the given gates.
func NewApplier(gates Gates) *Applier {
	return &Applier{gates: gates, now: time.Now}
}

// WithNow fixes the applier's clock for testing.
func (a *Applier) WithNow(now func() time.Time) *Applier {
	a.now = now
	return a
}

// Apply processes a candidate batch against one record and its provenance
// sidecar, both mutated in place on acceptance. The caller owns persistence;
// in dry-run mode it simply discards the mutated copies.
//
// Per-field order: normalize, domain eligibility, volatility, merge engine.
// The museum_type field is processed first so a classification arriving in
// the same batch gates its sibling fields.
func (a *Applier) Apply(m *model.Museum, prov map[string]model.Provenance, batch map[string]model.EnrichedField) (model.ChangeSet, []model.Recommendation) {
	cs := model.ChangeSet{MuseumID: m.ID}
	var recs []model.Recommendation

	for _, field := range orderedFields(batch) {
		cand := batch[field]

		reject := func(reason model.MergeReason) {
			cs.Rejected = append(cs.Rejected, model.Rejection{
				Field:         field,
				Reason:        reason,
				ProposedValue: cand.Value,
			})
		}

		// Normalize.
		cand, normReason := a.normalize(field, cand)
		if normReason != "" {
			reject(normReason)
			continue
		}

		// Domain eligibility: independent of trust and confidence.
		if required, gated := a.gates.DomainFields[field]; gated && m.MuseumType != required {
			reject(model.ReasonIneligibleDomain)
			continue
		}

		// Volatility: high-churn fields need trusted, confident candidates
		// to auto-apply; anything else goes to review even if the merge
		// engine would accept it.
		if a.volatile(field) && cand.Trust < model.TrustManualOverride {
			if cand.Trust < model.TrustEncyclopediaSummary || cand.Confidence < a.gates.ConfidenceThreshold {
				reject(model.ReasonLowConfidence)
				recs = append(recs, model.Recommendation{
					MuseumID:      m.ID,
					Field:         field,
					ProposedValue: cand.Value,
					Reason:        model.ReasonLowConfidence,
					Provenance: model.Provenance{
						Source:      cand.Source,
						Trust:       cand.Trust,
						Confidence:  cand.Confidence,
						RetrievedAt: cand.RetrievedAt,
					},
					CreatedAt: a.now(),
				})
				continue
			}
		}

		// Merge engine decision.
		current := m.Field(field)
		var existing *model.Provenance
		if p, ok := prov[field]; ok {
			p := p
			existing = &p
		}

		newValue, newProv, reason := merge.Merge(current, existing, cand, m.Locked(field))
		if !reason.Accepted() {
			reject(reason)
			continue
		}

		if !m.SetField(field, newValue) {
			reject(model.ReasonUnknownField)
			continue
		}
		prov[field] = *newProv
		m.AddDataSource(cand.Source)
		m.UpdatedAt = a.now()
		cs.Applied = append(cs.Applied, field)

		zap.L().Debug("applier: field merged",
			zap.String("museum", m.ID),
			zap.String("field", field),
			zap.String("source", cand.Source),
			zap.String("reason", string(reason)),
		)
	}

	return cs, recs
}

// normalize canonicalizes field-specific value shapes before merge. A value
// that maps to no accepted form is rejected without attempting the merge.
// Empty values pass through untouched so null-protection sees them as-is.
func (a *Applier) normalize(field string, cand model.EnrichedField) (model.EnrichedField, model.MergeReason) {
	s, isString := cand.Value.(string)
	if !isString || s == "" {
		return cand, ""
	}

	switch field {
	case "website":
		normalized, err := NormalizeURL(s)
		if err != nil {
			return cand, model.ReasonInvalidURL
		}
		cand.Value = normalized
	case "visit_duration":
		bucket, err := NormalizeDuration(s)
		if err != nil {
			return cand, model.ReasonInvalidDuration
		}
		cand.Value = string(bucket)
	}
	return cand, ""
}

func (a *Applier) volatile(field string) bool {
	for _, f := range a.gates.VolatileFields {
		if f == field {
			return true
		}
	}
	return false
}

// orderedFields returns batch keys in deterministic processing order:
// museum_type first, the rest sorted. Stable ordering keeps rejection lists
// identical across repeated runs.
func orderedFields(batch map[string]model.EnrichedField) []string {
	keys := make([]string, 0, len(batch))
	typeFirst := false
	for k := range batch {
		if k == "museum_type" {
			typeFirst = true
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if typeFirst {
		keys = append([]string{"museum_type"}, keys...)
	}
	return keys
}
