package model

import "time"

// Provenance records the origin of a field's currently stored value. One
// entry per field per record, mutated only by successful merges.
type Provenance struct {
	Source      string     `json:"source"`
	Trust       TrustLevel `json:"trust_level"`
	Confidence  int        `json:"confidence"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}

// MergeReason explains a merge engine or applier decision. Every accept and
// reject carries exactly one reason; callers must check it rather than infer
// success from the returned value.
type MergeReason string

const (
	ReasonNoExistingProvenance MergeReason = "no_existing_provenance"
	ReasonHigherTrust          MergeReason = "higher_trust"
	ReasonEqualTrustNewer      MergeReason = "equal_trust_newer"
	ReasonEqualTrustNoStamp    MergeReason = "equal_trust_no_timestamp"
	ReasonLowerTrustOrOlder    MergeReason = "lower_trust_or_older"
	ReasonNullProtected        MergeReason = "cannot_replace_known_with_null"
	ReasonManualLock           MergeReason = "manual_lock"
	ReasonPlaceholderBlocked   MergeReason = "placeholder_blocked"

	// Applier-level reasons.
	ReasonLowConfidence    MergeReason = "low_confidence"
	ReasonIneligibleDomain MergeReason = "ineligible_domain"
	ReasonInvalidURL       MergeReason = "invalid_url"
	ReasonInvalidDuration  MergeReason = "invalid_duration"
	ReasonUnknownField     MergeReason = "unknown_field"
)

// Accepted reports whether a reason represents a committed merge.
func (r MergeReason) Accepted() bool {
	switch r {
	case ReasonNoExistingProvenance, ReasonHigherTrust,
		ReasonEqualTrustNewer, ReasonEqualTrustNoStamp:
		return true
	default:
		return false
	}
}

// Recommendation is a proposed change that failed auto-apply gating. It goes
// to the human review queue and is never applied automatically.
type Recommendation struct {
	ID            int64       `json:"id,omitempty"`
	RunID         string      `json:"run_id,omitempty"`
	MuseumID      string      `json:"museum_id"`
	Field         string      `json:"field"`
	ProposedValue any         `json:"proposed_value"`
	Reason        MergeReason `json:"reason"`
	Provenance    Provenance  `json:"provenance"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Rejection is an audit entry for a candidate that was not applied.
type Rejection struct {
	Field         string      `json:"field"`
	Reason        MergeReason `json:"reason"`
	ProposedValue any         `json:"proposed_value"`
}

// ChangeSet summarizes the applier's work on one record.
type ChangeSet struct {
	MuseumID string      `json:"museum_id"`
	Applied  []string    `json:"applied_fields"`
	Rejected []Rejection `json:"rejected_fields"`
}

// Changed reports whether any field was applied.
func (c ChangeSet) Changed() bool {
	return len(c.Applied) > 0
}
