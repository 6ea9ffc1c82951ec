// Package drift compares the record store against a curated gold set after
// a run. It is a detection gate: writes have already been persisted, so an
// exceeded threshold flags the run for review rather than rolling back.
package drift

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/museumatlas/curator/internal/merge"
	"github.com/museumatlas/curator/internal/model"
)

// GoldSet maps record ids to partial field -> expected-value mappings.
type GoldSet map[string]map[string]string

// LoadGoldSet reads a gold set from a YAML file.
func LoadGoldSet(path string) (GoldSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "drift: read gold set %s", path)
	}
	var gs GoldSet
	if err := yaml.Unmarshal(data, &gs); err != nil {
		return nil, eris.Wrapf(err, "drift: parse gold set %s", path)
	}
	return gs, nil
}

// Check computes the drift rate of the given records against the gold set
// by exact-equality comparison. Gold entries for records absent from the
// store count as drifted; the diff marks the actual value empty.
func Check(records map[string]*model.Museum, gold GoldSet, threshold float64) *model.DriftReport {
	report := &model.DriftReport{Threshold: threshold}

	ids := make([]string, 0, len(gold))
	for id := range gold {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := records[id]
		fields := make([]string, 0, len(gold[id]))
		for f := range gold[id] {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		for _, field := range fields {
			expected := gold[id][field]
			report.FieldsChecked++

			var actual string
			if rec != nil {
				actual = merge.ValueString(rec.Field(field))
			}
			if actual != expected {
				report.FieldsDrifted++
				report.Diffs = append(report.Diffs, model.DriftDiff{
					MuseumID: id,
					Field:    field,
					Expected: expected,
					Actual:   actual,
				})
			}
		}
	}

	if report.FieldsChecked > 0 {
		report.DriftRate = float64(report.FieldsDrifted) / float64(report.FieldsChecked)
	}
	report.Exceeded = report.DriftRate > threshold

	if report.Exceeded {
		zap.L().Warn("drift: threshold exceeded",
			zap.Float64("drift_rate", report.DriftRate),
			zap.Float64("threshold", threshold),
			zap.Int("drifted", report.FieldsDrifted),
			zap.Int("checked", report.FieldsChecked),
		)
	}

	return report
}
