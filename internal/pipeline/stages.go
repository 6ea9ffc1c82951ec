package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/museumatlas/curator/internal/model"
	"github.com/museumatlas/curator/internal/record"
	"github.com/museumatlas/curator/internal/source"
)

// stageFn runs one stage over the partition, recording per-record work into
// res and the run-level counters into st. Returns the first fatal outcome or
// OutcomeOk.
type stageFn func(ctx context.Context, st *runState, res *model.StageResult) Outcome

type stageDef struct {
	name string
	// prereq counts records already carrying the previous stage's outputs.
	// Nil means the stage has no prerequisite.
	prereq func(st *runState) int
	fn     stageFn
}

// stages is the fixed run order. Prerequisites are output-based rather than
// counter-based because the judge stage is deliberately selective: a stage
// after it cannot demand judge coverage the top-N cap never intended.
func (o *Orchestrator) stages() []stageDef {
	return []stageDef{
		{name: "identity_resolution", fn: o.stageIdentity},
		{name: "backbone_normalization", prereq: countNamed, fn: o.stageBackbone},
		{name: "encyclopedia_lookup", prereq: countLocated, fn: o.stageEncyclopedia},
		{name: "judge_scoring", prereq: countClassified, fn: o.stageJudge},
		{name: "priority_calculation", fn: o.stagePriority},
		{name: "index_rebuild", fn: o.stageIndex},
	}
}

func countNamed(st *runState) int {
	n := 0
	for _, m := range st.records {
		if strings.TrimSpace(m.Name) != "" {
			n++
		}
	}
	return n
}

func countLocated(st *runState) int {
	n := 0
	for _, m := range st.records {
		if m.City != "" && m.Country != "" {
			n++
		}
	}
	return n
}

func countClassified(st *runState) int {
	n := 0
	for _, m := range st.records {
		if m.MuseumType != "" || m.Description != "" {
			n++
		}
	}
	return n
}

// stageIdentity validates record identity and derives the locality key used
// for clustering. Records without a name fail the stage; nothing downstream
// can resolve them.
func (o *Orchestrator) stageIdentity(ctx context.Context, st *runState, res *model.StageResult) Outcome {
	now := time.Now().UTC()
	for _, m := range st.records {
		res.Processed++
		st.processed++

		if strings.TrimSpace(m.Name) == "" {
			o.fail(st, res, m.ID, "record has no name")
			if o.failureExceeded(st) {
				return OutcomeFailureRateExceeded
			}
			continue
		}

		if m.Locality == "" && m.City != "" {
			if f, err := model.NewEnrichedField(
				record.NormalizeLocality(m.City), "identity_resolver",
				model.TrustKnowledgeBase, 4, now,
			); err == nil {
				o.apply(st, m, map[string]model.EnrichedField{"locality": f})
			}
		}

		if o.failureExceeded(st) {
			return OutcomeFailureRateExceeded
		}
	}
	return OutcomeOk
}

func (o *Orchestrator) stageBackbone(ctx context.Context, st *runState, res *model.StageResult) Outcome {
	return o.lookupStage(ctx, st, res, o.backbone, st.records, false)
}

func (o *Orchestrator) stageEncyclopedia(ctx context.Context, st *runState, res *model.StageResult) Outcome {
	return o.lookupStage(ctx, st, res, o.encyclopedia, st.records, true)
}

// stageJudge is the expensive stage: only the top-N records by priority rank
// reach the model, everyone else skips it.
func (o *Orchestrator) stageJudge(ctx context.Context, st *runState, res *model.StageResult) Outcome {
	targets := o.selectTargets(st)
	res.Metadata = map[string]any{
		"selected": len(targets),
		"skipped":  len(st.records) - len(targets),
	}
	return o.lookupStage(ctx, st, res, o.judge, targets, true)
}

// lookupStage runs one source adapter over a target set. For paid providers
// the budget check happens before every call at the provider's estimate and
// aborts the whole run, not the record. Actual spend is recorded by the
// provider's own cost sink, so calls a cache layer answers cost nothing.
// A failed lookup abandons the record's stage and trips the breaker check.
func (o *Orchestrator) lookupStage(ctx context.Context, st *runState, res *model.StageResult, p source.Provider, targets []*model.Museum, paid bool) Outcome {
	for _, m := range targets {
		if paid && !o.budget.Allow(p.CostUSD()) {
			return OutcomeBudgetExceeded
		}

		res.Processed++
		st.processed++

		fields, err := p.Lookup(ctx, m)
		if err != nil {
			o.fail(st, res, m.ID, err.Error())
		} else if len(fields) > 0 {
			o.apply(st, m, fields)
		}

		if o.failureExceeded(st) {
			return OutcomeFailureRateExceeded
		}
	}
	return OutcomeOk
}

// stagePriority recomputes every record's priority score. The score is
// derived and deterministic, so it is written directly rather than merged
// through provenance.
func (o *Orchestrator) stagePriority(ctx context.Context, st *runState, res *model.StageResult) Outcome {
	siblings := localityCounts(st.records)
	for _, m := range st.records {
		res.Processed++
		st.processed++
		m.PriorityScore = model.PriorityFor(m, siblings[m.Locality])
	}
	return OutcomeOk
}

// stageIndex rebuilds the rank ordering artifact for the partition.
func (o *Orchestrator) stageIndex(ctx context.Context, st *runState, res *model.StageResult) Outcome {
	ranked := make([]*model.Museum, 0, len(st.records))
	unranked := 0
	for _, m := range st.records {
		res.Processed++
		st.processed++
		if m.PriorityScore != nil {
			ranked = append(ranked, m)
		} else {
			unranked++
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if *ranked[i].PriorityScore != *ranked[j].PriorityScore {
			return *ranked[i].PriorityScore < *ranked[j].PriorityScore
		}
		return ranked[i].ID < ranked[j].ID
	})

	top := make([]string, 0, 10)
	for _, m := range ranked {
		if len(top) == 10 {
			break
		}
		top = append(top, m.ID)
	}
	res.Metadata = map[string]any{
		"ranked":   len(ranked),
		"unranked": unranked,
		"top":      top,
	}
	return OutcomeOk
}

// selectTargets ranks the partition for the judge stage and returns the top
// N. Records that have never been scored rank first: an unscored record is
// exactly what the judge exists to fill in. Among scored records lower
// priority score wins; ties break by reputation penalty, collection tier,
// then record id so selection is stable across runs.
func (o *Orchestrator) selectTargets(st *runState) []*model.Museum {
	siblings := localityCounts(st.records)

	type candidate struct {
		m     *model.Museum
		score *int
	}
	cands := make([]candidate, 0, len(st.records))
	for _, m := range st.records {
		cands = append(cands, candidate{m: m, score: model.PriorityFor(m, siblings[m.Locality])})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		switch {
		case a.score == nil && b.score != nil:
			return true
		case a.score != nil && b.score == nil:
			return false
		case a.score != nil && b.score != nil && *a.score != *b.score:
			return *a.score < *b.score
		}
		if ra, rb := intOr(a.m.ReputationPenalty, 99), intOr(b.m.ReputationPenalty, 99); ra != rb {
			return ra < rb
		}
		if ta, tb := intOr(a.m.CollectionTier, 99), intOr(b.m.CollectionTier, 99); ta != tb {
			return ta < tb
		}
		return a.m.ID < b.m.ID
	})

	n := o.params.TopN
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]*model.Museum, 0, n)
	for _, c := range cands[:n] {
		out = append(out, c.m)
	}
	return out
}

// localityCounts tallies records per locality for the cluster bonus. Records
// without a locality never cluster.
func localityCounts(records []*model.Museum) map[string]int {
	counts := make(map[string]int)
	for _, m := range records {
		if m.Locality != "" {
			counts[m.Locality]++
		}
	}
	return counts
}

func intOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}
