// Package merge implements the provenance-aware field merge engine. It
// decides, per field, whether a candidate value may replace the stored value
// based on trust ranking, recency, and the non-destructive invariant.
package merge

import (
	"fmt"
	"strings"

	"github.com/museumatlas/curator/internal/model"
)

// placeholders are candidate values that never overwrite anything,
// case-insensitively. An adapter emitting these has found nothing.
var placeholders = map[string]struct{}{
	"":        {},
	"unknown": {},
	"n/a":     {},
	"na":      {},
	"tbd":     {},
	"none":    {},
	"null":    {},
	"-":       {},
}

// Decide evaluates whether a candidate may replace the current value. The
// rule order is load-bearing: null-protection runs before the lock check so
// a manual-override candidate still cannot blank a known value.
func Decide(current any, prov *model.Provenance, cand model.EnrichedField, locked bool) (bool, model.MergeReason) {
	// 1. Non-destructive invariant: a known value is never replaced by an
	// empty candidate. Only an explicit manual override may blank a field.
	if isEmpty(cand.Value) && !isEmpty(current) && cand.Trust < model.TrustManualOverride {
		return false, model.ReasonNullProtected
	}

	// 2. Lock supremacy: locked fields only move for manual overrides.
	if locked && cand.Trust < model.TrustManualOverride {
		return false, model.ReasonManualLock
	}

	// 3. Placeholder tokens carry no information. Manual overrides are
	// exempt so a curator can deliberately clear a field.
	if isPlaceholder(cand.Value) && cand.Trust < model.TrustManualOverride {
		return false, model.ReasonPlaceholderBlocked
	}

	// 4. First write for this field.
	if prov == nil {
		return true, model.ReasonNoExistingProvenance
	}

	// 5. Strictly higher trust always wins.
	if cand.Trust > prov.Trust {
		return true, model.ReasonHigherTrust
	}

	// 6. Equal trust: recency tiebreak. A missing stored timestamp is
	// treated as older than any candidate.
	if cand.Trust == prov.Trust {
		if prov.RetrievedAt.IsZero() {
			return true, model.ReasonEqualTrustNoStamp
		}
		if cand.RetrievedAt.After(prov.RetrievedAt) {
			return true, model.ReasonEqualTrustNewer
		}
	}

	// 7. Lower trust, or equal trust without strictly newer data.
	return false, model.ReasonLowerTrustOrOlder
}

// Merge applies Decide and, on acceptance, builds the replacement provenance
// entry from the candidate. On rejection the current value and provenance are
// returned unchanged; callers must check the reason, not the value.
func Merge(current any, prov *model.Provenance, cand model.EnrichedField, locked bool) (any, *model.Provenance, model.MergeReason) {
	ok, reason := Decide(current, prov, cand, locked)
	if !ok {
		return current, prov, reason
	}
	return cand.Value, &model.Provenance{
		Source:      cand.Source,
		Trust:       cand.Trust,
		Confidence:  cand.Confidence,
		RetrievedAt: cand.RetrievedAt,
	}, reason
}

// isEmpty reports whether a value carries no information: nil, or a string
// that is blank after trimming. Numeric zero is a real value.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func isPlaceholder(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, blocked := placeholders[strings.ToLower(strings.TrimSpace(s))]
	return blocked
}

// ValueString renders a field value the way provenance and drift records
// store it, so comparisons are stable across types.
func ValueString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
