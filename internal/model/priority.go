package model

// PriorityInput holds the scored fields the priority formula consumes. The
// required pointers come straight off a Museum; nil means the record has not
// finished the scoring stage and gets no priority.
type PriorityInput struct {
	CollectionStrength *int
	ExhibitionStrength *int
	HistoricalContext  *int
	ReputationPenalty  *int
	CollectionTier     *int
	// LocalitySiblings is the number of records sharing this record's
	// locality, used for the cluster bonus. Optional; zero means no hint.
	LocalitySiblings int
}

// PriorityScore computes the deterministic visit-priority rank for a record.
// Lower scores rank higher. Returns nil if any required input is missing; it
// never substitutes a default.
func PriorityScore(in PriorityInput) *int {
	if in.CollectionStrength == nil || in.ExhibitionStrength == nil ||
		in.HistoricalContext == nil || in.ReputationPenalty == nil ||
		in.CollectionTier == nil {
		return nil
	}

	a, b := *in.CollectionStrength, *in.ExhibitionStrength
	primary := a
	if b > primary {
		primary = b
	}

	dualBonus := 0
	if a >= 4 && b >= 4 {
		dualBonus = 2
	}

	clusterBonus := 0
	if in.LocalitySiblings >= 3 {
		clusterBonus = 1
	}

	score := (6-primary)*3 + (6-*in.HistoricalContext)*2 +
		*in.ReputationPenalty + *in.CollectionTier - dualBonus - clusterBonus

	return &score
}

// PriorityFor builds a PriorityInput from a record plus a sibling count and
// returns its score. Convenience for the scoring stage and top-N selection.
func PriorityFor(m *Museum, localitySiblings int) *int {
	return PriorityScore(PriorityInput{
		CollectionStrength: m.CollectionStrength,
		ExhibitionStrength: m.ExhibitionStrength,
		HistoricalContext:  m.HistoricalContext,
		ReputationPenalty:  m.ReputationPenalty,
		CollectionTier:     m.CollectionTier,
		LocalitySiblings:   localitySiblings,
	})
}
