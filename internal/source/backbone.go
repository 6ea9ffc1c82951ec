package source

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/museumatlas/curator/internal/model"
)

// BackboneEntry is one curated reference record. Blank fields are simply
// absent from the lookup result.
type BackboneEntry struct {
	Name     string `yaml:"name"`
	Website  string `yaml:"website"`
	Address  string `yaml:"address"`
	City     string `yaml:"city"`
	Country  string `yaml:"country"`
	Locality string `yaml:"locality"`
	Type     string `yaml:"museum_type"`
}

// Backbone serves the curated reference dataset used by the normalization
// stage. It is a local file, so lookups cost nothing and never fail
// transiently.
type Backbone struct {
	entries map[string]BackboneEntry
	now     func() time.Time
}

// LoadBackbone reads a curated backbone dataset keyed by museum id.
func LoadBackbone(path string) (*Backbone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read backbone %s", path)
	}
	var entries map[string]BackboneEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "source: parse backbone %s", path)
	}
	return &Backbone{entries: entries, now: time.Now}, nil
}

// NewBackbone wraps an in-memory entry set; used by tests and seed tooling.
func NewBackbone(entries map[string]BackboneEntry) *Backbone {
	return &Backbone{entries: entries, now: time.Now}
}

func (b *Backbone) Name() string            { return "curated_backbone" }
func (b *Backbone) Trust() model.TrustLevel { return model.TrustKnowledgeBase }
func (b *Backbone) CostUSD() float64        { return 0 }

// Lookup returns the backbone fields for a record. Museums without a
// backbone entry get an empty result, not an error.
func (b *Backbone) Lookup(_ context.Context, m *model.Museum) (map[string]model.EnrichedField, error) {
	entry, ok := b.entries[m.ID]
	if !ok {
		return map[string]model.EnrichedField{}, nil
	}

	now := b.now().UTC()
	fields := make(map[string]model.EnrichedField)
	add := func(key, value string) {
		if value == "" {
			return
		}
		f, err := model.NewEnrichedField(value, b.Name(), b.Trust(), 5, now)
		if err != nil {
			return
		}
		fields[key] = f
	}

	add("name", entry.Name)
	add("website", entry.Website)
	add("address", entry.Address)
	add("city", entry.City)
	add("country", entry.Country)
	add("locality", entry.Locality)
	add("museum_type", entry.Type)
	return fields, nil
}
