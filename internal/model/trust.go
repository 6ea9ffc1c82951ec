package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// TrustLevel ranks how reliable a data source is considered. Higher values
// win field conflicts against lower ones.
type TrustLevel int

const (
	TrustUnknown TrustLevel = iota
	TrustModelGuess
	TrustModelExtracted
	TrustEncyclopediaSummary
	TrustKnowledgeBase
	TrustOfficialSourceExtract
	TrustOfficialStructuredData
	// TrustManualOverride is reserved for explicit human edits. Adapters must
	// never emit it.
	TrustManualOverride
)

var trustNames = map[TrustLevel]string{
	TrustUnknown:                "unknown",
	TrustModelGuess:             "model_guess",
	TrustModelExtracted:         "model_extracted",
	TrustEncyclopediaSummary:    "encyclopedia_summary",
	TrustKnowledgeBase:          "knowledge_base",
	TrustOfficialSourceExtract:  "official_source_extract",
	TrustOfficialStructuredData: "official_structured_data",
	TrustManualOverride:         "manual_override",
}

func (t TrustLevel) String() string {
	if name, ok := trustNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseTrustLevel maps a stored trust name back to its level. Unrecognized
// names parse as TrustUnknown so stale provenance loses every comparison.
func ParseTrustLevel(s string) TrustLevel {
	for level, name := range trustNames {
		if name == s {
			return level
		}
	}
	return TrustUnknown
}

// EnrichedField is a candidate value produced by a source adapter, carrying
// full provenance. Immutable once constructed.
type EnrichedField struct {
	Value       any        `json:"value"`
	Source      string     `json:"source"`
	Trust       TrustLevel `json:"trust_level"`
	Confidence  int        `json:"confidence"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}

// NewEnrichedField constructs a candidate envelope, rejecting out-of-range
// confidence at construction time rather than at merge time.
func NewEnrichedField(value any, source string, trust TrustLevel, confidence int, retrievedAt time.Time) (EnrichedField, error) {
	if confidence < 1 || confidence > 5 {
		return EnrichedField{}, eris.Errorf("enriched field: confidence %d outside [1,5]", confidence)
	}
	return EnrichedField{
		Value:       value,
		Source:      source,
		Trust:       trust,
		Confidence:  confidence,
		RetrievedAt: retrievedAt,
	}, nil
}
