package model

import "time"

// VisitDuration buckets a typical visit length. Stored as a closed enum so
// free-text estimates from adapters must normalize before merge.
type VisitDuration string

const (
	DurationQuick    VisitDuration = "under_1h"
	DurationHalfDay  VisitDuration = "1_3h"
	DurationFullDay  VisitDuration = "3_6h"
	DurationMultiDay VisitDuration = "multi_day"
)

// Museum is the curated golden record for a single institution. Records are
// created as stubs on first ingest and mutated only through the applier;
// they are never deleted, only superseded by later merges.
type Museum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Website     string `json:"website,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Description string `json:"description,omitempty"`

	// MuseumType is the domain classification ("art", "history", "science",
	// ...). Art-only fields are valid only when this equals "art".
	MuseumType string `json:"museum_type,omitempty"`

	// Art-only fields, gated on MuseumType == "art".
	ArtMovement     string `json:"art_movement,omitempty"`
	FeaturedArtists string `json:"featured_artists,omitempty"`

	// Scored fields (0-5 unless noted), produced by the judge stage.
	CollectionStrength *int `json:"collection_strength,omitempty"`
	ExhibitionStrength *int `json:"exhibition_strength,omitempty"`
	HistoricalContext  *int `json:"historical_context,omitempty"`
	ReputationPenalty  *int `json:"reputation_penalty,omitempty"` // 0-3
	CollectionTier     *int `json:"collection_tier,omitempty"`    // 0-3 penalty form

	VisitDuration VisitDuration `json:"visit_duration,omitempty"`
	PriorityScore *int          `json:"priority_score,omitempty"`

	// ManualLockFields are field keys frozen by a curator; only
	// TrustManualOverride candidates may change them.
	ManualLockFields []string `json:"manual_lock_fields,omitempty"`

	// DataSources is the append-only set of source ids that have contributed
	// at least one accepted field.
	DataSources []string `json:"data_sources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Locked reports whether the given field key is under manual lock.
func (m *Museum) Locked(field string) bool {
	for _, f := range m.ManualLockFields {
		if f == field {
			return true
		}
	}
	return false
}

// AddDataSource appends a source id to the record's source set, deduplicated.
func (m *Museum) AddDataSource(source string) {
	for _, s := range m.DataSources {
		if s == source {
			return
		}
	}
	m.DataSources = append(m.DataSources, source)
}

// Field returns the current value of a field by key, as stored on the record.
// Unknown keys return nil.
func (m *Museum) Field(key string) any {
	switch key {
	case "name":
		return m.Name
	case "website":
		return m.Website
	case "address":
		return m.Address
	case "city":
		return m.City
	case "country":
		return m.Country
	case "locality":
		return m.Locality
	case "description":
		return m.Description
	case "museum_type":
		return m.MuseumType
	case "art_movement":
		return m.ArtMovement
	case "featured_artists":
		return m.FeaturedArtists
	case "collection_strength":
		return intPtrValue(m.CollectionStrength)
	case "exhibition_strength":
		return intPtrValue(m.ExhibitionStrength)
	case "historical_context":
		return intPtrValue(m.HistoricalContext)
	case "reputation_penalty":
		return intPtrValue(m.ReputationPenalty)
	case "collection_tier":
		return intPtrValue(m.CollectionTier)
	case "visit_duration":
		if m.VisitDuration == "" {
			return nil
		}
		return string(m.VisitDuration)
	default:
		return nil
	}
}

// SetField writes a merged value onto the record. Returns false for unknown
// keys or values of the wrong shape; the applier treats that as a rejection.
func (m *Museum) SetField(key string, value any) bool {
	switch key {
	case "name", "website", "address", "city", "country", "locality",
		"description", "museum_type", "art_movement", "featured_artists":
		s, ok := value.(string)
		if !ok {
			return false
		}
		switch key {
		case "name":
			m.Name = s
		case "website":
			m.Website = s
		case "address":
			m.Address = s
		case "city":
			m.City = s
		case "country":
			m.Country = s
		case "locality":
			m.Locality = s
		case "description":
			m.Description = s
		case "museum_type":
			m.MuseumType = s
		case "art_movement":
			m.ArtMovement = s
		case "featured_artists":
			m.FeaturedArtists = s
		}
		return true
	case "collection_strength", "exhibition_strength", "historical_context",
		"reputation_penalty", "collection_tier":
		n, ok := toInt(value)
		if !ok {
			return false
		}
		switch key {
		case "collection_strength":
			m.CollectionStrength = &n
		case "exhibition_strength":
			m.ExhibitionStrength = &n
		case "historical_context":
			m.HistoricalContext = &n
		case "reputation_penalty":
			m.ReputationPenalty = &n
		case "collection_tier":
			m.CollectionTier = &n
		}
		return true
	case "visit_duration":
		s, ok := value.(string)
		if !ok {
			return false
		}
		m.VisitDuration = VisitDuration(s)
		return true
	default:
		return false
	}
}

func intPtrValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}
