// Package pipeline orchestrates enrichment runs over record partitions. A
// run walks an ordered list of stages, each of which loads candidates from a
// source adapter and pushes them through the applier, governed by a spend
// ceiling, a failure-rate circuit breaker, and a post-commit drift gate.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/museumatlas/curator/internal/cost"
	"github.com/museumatlas/curator/internal/drift"
	"github.com/museumatlas/curator/internal/model"
	"github.com/museumatlas/curator/internal/record"
	"github.com/museumatlas/curator/internal/source"
	"github.com/museumatlas/curator/internal/store"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeOk                  Outcome = "ok"
	OutcomeBudgetExceeded      Outcome = "budget_exceeded"
	OutcomeFailureRateExceeded Outcome = "failure_rate_exceeded"
	OutcomeDriftExceeded       Outcome = "drift_exceeded"
	OutcomeValidationFailed    Outcome = "validation_failed"
)

// RunStatus maps an outcome to the terminal run status it persists as.
func (o Outcome) RunStatus() model.RunStatus {
	switch o {
	case OutcomeBudgetExceeded:
		return model.RunStatusAbortedBudget
	case OutcomeFailureRateExceeded:
		return model.RunStatusAbortedFailureRate
	case OutcomeDriftExceeded:
		return model.RunStatusAbortedDrift
	case OutcomeValidationFailed:
		return model.RunStatusAbortedValidation
	default:
		return model.RunStatusCompleted
	}
}

// Params are the per-run governance knobs.
type Params struct {
	// TopN caps how many records reach the judge stage per partition.
	TopN int
	// PrereqCoverage is the minimum fraction of records that must carry the
	// previous stage's outputs before a dependent stage may start.
	PrereqCoverage float64
	// FailureRateMax aborts the run when failed/processed exceeds it.
	FailureRateMax float64
	// DriftThreshold flags the run when the gold-set drift rate exceeds it.
	DriftThreshold float64
	// DryRun computes and reports every would-be change without writing.
	DryRun bool
}

// Result is what a finished run hands back to the caller.
type Result struct {
	RunID   string
	Status  model.RunStatus
	Outcome Outcome
	Summary *model.RunSummary
}

// Orchestrator drives enrichment runs.
type Orchestrator struct {
	store        store.Store
	applier      *record.Applier
	backbone     source.Provider
	encyclopedia source.Provider
	judge        source.Provider
	budget       *cost.BudgetState
	gold         drift.GoldSet
	params       Params
}

// New creates an orchestrator. The budget is shared across every partition
// the orchestrator runs. The orchestrator only checks headroom before paid
// calls; paid providers report their actual spend through their own cost
// sinks, so lookups answered by a cache layer cost nothing.
func New(
	st store.Store,
	applier *record.Applier,
	backbone source.Provider,
	encyclopedia source.Provider,
	judge source.Provider,
	budget *cost.BudgetState,
	gold drift.GoldSet,
	params Params,
) *Orchestrator {
	if params.TopN <= 0 {
		params.TopN = 50
	}
	if params.PrereqCoverage <= 0 {
		params.PrereqCoverage = 0.5
	}
	if params.FailureRateMax <= 0 {
		params.FailureRateMax = 0.10
	}
	if params.DriftThreshold <= 0 {
		params.DriftThreshold = 0.02
	}
	return &Orchestrator{
		store:        st,
		applier:      applier,
		backbone:     backbone,
		encyclopedia: encyclopedia,
		judge:        judge,
		budget:       budget,
		gold:         gold,
		params:       params,
	}
}

// runState accumulates everything a run touches, flushed into the summary at
// the end no matter how the run terminates.
type runState struct {
	runID     string
	partition string
	records   []*model.Museum
	byID      map[string]*model.Museum
	prov      map[string]map[string]model.Provenance
	changes   []model.ChangeSet
	recs      []model.Recommendation
	failures  []model.StageFailure
	processed int
	failed    int
	stages    []model.StageResult
}

// Run executes one enrichment run over a partition. The run summary is
// persisted on every exit path reachable past run creation, so the audit
// trail is complete even for aborted runs.
func (o *Orchestrator) Run(ctx context.Context, partition string) (*Result, error) {
	log := zap.L().With(zap.String("partition", partition))
	log.Info("pipeline: starting run", zap.Bool("dry_run", o.params.DryRun))

	records, err := o.store.LoadPartition(ctx, partition)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load partition %s", partition)
	}
	prov, err := o.store.LoadProvenance(ctx, partition)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load provenance %s", partition)
	}
	if prov == nil {
		prov = make(map[string]map[string]model.Provenance)
	}

	run, err := o.store.CreateRun(ctx, partition, o.params.DryRun)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	if err := o.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		log.Warn("pipeline: failed to mark run running", zap.Error(err))
	}

	byID := make(map[string]*model.Museum, len(records))
	for _, m := range records {
		byID[m.ID] = m
	}
	st := &runState{
		runID:     run.ID,
		partition: partition,
		records:   records,
		byID:      byID,
		prov:      prov,
	}

	outcome, err := o.execute(ctx, st)
	if err != nil {
		return nil, err
	}

	summary := o.summarize(st)

	// Drift gate. Post-commit by design: stage writes are already persisted,
	// so an exceeded threshold flags the run rather than rolling it back.
	if outcome == OutcomeOk && len(o.gold) > 0 {
		summary.DriftReport = drift.Check(st.byID, o.gold, o.params.DriftThreshold)
		if summary.DriftReport.Exceeded {
			outcome = OutcomeDriftExceeded
		}
	}

	// Stamp the review queue with the run so repeated runs over the same
	// partition stay attributable and prunable per run.
	for i := range st.recs {
		st.recs[i].RunID = run.ID
	}
	if !o.params.DryRun && len(st.recs) > 0 {
		if err := o.store.AddRecommendations(ctx, st.recs); err != nil {
			log.Error("pipeline: failed to persist review queue", zap.Error(err))
		}
	}

	status := outcome.RunStatus()
	if err := o.store.FinishRun(ctx, run.ID, status, summary); err != nil {
		return nil, eris.Wrap(err, "pipeline: finish run")
	}

	log.Info("pipeline: run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("processed", st.processed),
		zap.Int("failed", st.failed),
		zap.Float64("spent_usd", o.budget.Spent()),
	)
	return &Result{RunID: run.ID, Status: status, Outcome: outcome, Summary: summary}, nil
}

// execute walks the stage list, checking prerequisites between stages and
// stopping on the first fatal outcome. Errors are infrastructure failures
// (store unavailable), distinct from governed aborts.
func (o *Orchestrator) execute(ctx context.Context, st *runState) (Outcome, error) {
	for _, s := range o.stages() {
		if s.prereq != nil && len(st.records) > 0 {
			have := s.prereq(st)
			coverage := float64(have) / float64(len(st.records))
			if coverage < o.params.PrereqCoverage {
				o.recordValidationFailure(ctx, st, s.name, have, coverage)
				return OutcomeValidationFailed, nil
			}
		}

		outcome, err := o.runStage(ctx, st, s.name, s.fn)
		if err != nil {
			return outcome, err
		}
		if outcome != OutcomeOk {
			return outcome, nil
		}
	}
	return OutcomeOk, nil
}

// runStage times one stage, persists the mutated partition at stage end, and
// records the stage artifact. A fatal outcome skips the stage-end write so
// already-committed stages stay intact and half-processed work is dropped.
func (o *Orchestrator) runStage(ctx context.Context, st *runState, name string, fn stageFn) (Outcome, error) {
	stageID, err := o.store.CreateStage(ctx, st.runID, name)
	if err != nil {
		return OutcomeOk, eris.Wrapf(err, "pipeline: create stage %s", name)
	}

	start := time.Now()
	res := &model.StageResult{Name: name}
	outcome := fn(ctx, st, res)
	res.Duration = time.Since(start).Milliseconds()
	res.Success = outcome == OutcomeOk
	if outcome != OutcomeOk {
		res.Error = string(outcome)
	}

	if outcome == OutcomeOk && !o.params.DryRun {
		if err := o.store.SavePartition(ctx, st.partition, st.records); err != nil {
			return OutcomeOk, eris.Wrapf(err, "pipeline: save partition after %s", name)
		}
		if err := o.store.SaveProvenance(ctx, st.partition, st.prov); err != nil {
			return OutcomeOk, eris.Wrapf(err, "pipeline: save provenance after %s", name)
		}
	}

	if err := o.store.CompleteStage(ctx, stageID, res); err != nil {
		zap.L().Warn("pipeline: failed to record stage result",
			zap.String("stage", name), zap.Error(err))
	}
	st.stages = append(st.stages, *res)

	zap.L().Info("pipeline: stage finished",
		zap.String("partition", st.partition),
		zap.String("stage", name),
		zap.Bool("success", res.Success),
		zap.Int64("duration_ms", res.Duration),
		zap.Int("stage_processed", res.Processed),
		zap.Int("stage_failed", res.Failed),
	)
	return outcome, nil
}

// recordValidationFailure writes a failed stage artifact for a stage whose
// prerequisite coverage was not met, so aborted runs show why in the trail.
func (o *Orchestrator) recordValidationFailure(ctx context.Context, st *runState, name string, have int, coverage float64) {
	res := model.StageResult{
		Name:  name,
		Error: "prerequisite coverage not met",
		Metadata: map[string]any{
			"ready":    have,
			"total":    len(st.records),
			"coverage": coverage,
			"required": o.params.PrereqCoverage,
		},
	}
	if stageID, err := o.store.CreateStage(ctx, st.runID, name); err == nil {
		if err := o.store.CompleteStage(ctx, stageID, &res); err != nil {
			zap.L().Warn("pipeline: failed to record validation failure", zap.Error(err))
		}
	}
	st.stages = append(st.stages, res)

	zap.L().Warn("pipeline: stage prerequisite unmet, aborting partition",
		zap.String("partition", st.partition),
		zap.String("stage", name),
		zap.Int("ready", have),
		zap.Int("total", len(st.records)),
		zap.Float64("required", o.params.PrereqCoverage),
	)
}

func (o *Orchestrator) summarize(st *runState) *model.RunSummary {
	rate := 0.0
	if st.processed > 0 {
		rate = float64(st.failed) / float64(st.processed)
	}
	return &model.RunSummary{
		Changes:     st.changes,
		ReviewQueue: st.recs,
		Failures:    st.failures,
		Stages:      st.stages,
		Metrics: model.RunMetrics{
			BudgetTotalUSD:     o.budget.Total(),
			BudgetSpentUSD:     o.budget.Spent(),
			BudgetRemainingUSD: o.budget.Remaining(),
			RecordsProcessed:   st.processed,
			RecordsFailed:      st.failed,
			FailureRate:        rate,
		},
	}
}

// failureExceeded is the circuit breaker, checked after every record across
// the whole run. Counters are run-cumulative, not per-stage.
func (o *Orchestrator) failureExceeded(st *runState) bool {
	if st.processed == 0 {
		return false
	}
	return float64(st.failed)/float64(st.processed) > o.params.FailureRateMax
}

// apply pushes a candidate batch for one record through the applier and
// folds the resulting change set and recommendations into the run state.
func (o *Orchestrator) apply(st *runState, m *model.Museum, batch map[string]model.EnrichedField) {
	p := st.prov[m.ID]
	if p == nil {
		p = make(map[string]model.Provenance)
		st.prov[m.ID] = p
	}
	cs, recs := o.applier.Apply(m, p, batch)
	if len(cs.Applied) > 0 || len(cs.Rejected) > 0 {
		st.changes = append(st.changes, cs)
	}
	st.recs = append(st.recs, recs...)
}

// fail records one record's stage failure. Non-fatal on its own; the caller
// re-checks the failure-rate breaker afterwards.
func (o *Orchestrator) fail(st *runState, res *model.StageResult, museumID, reason string) {
	res.Failed++
	st.failed++
	st.failures = append(st.failures, model.StageFailure{
		MuseumID: museumID,
		Stage:    res.Name,
		Reason:   reason,
	})
	zap.L().Warn("pipeline: record failed stage",
		zap.String("museum", museumID),
		zap.String("stage", res.Name),
		zap.String("reason", reason),
	)
}
