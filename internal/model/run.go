package model

import "time"

// RunStatus is the terminal (or in-flight) state of an enrichment run.
type RunStatus string

const (
	RunStatusQueued             RunStatus = "queued"
	RunStatusRunning            RunStatus = "running"
	RunStatusCompleted          RunStatus = "completed"
	RunStatusAbortedBudget      RunStatus = "aborted_budget"
	RunStatusAbortedFailureRate RunStatus = "aborted_failure_rate"
	RunStatusAbortedDrift       RunStatus = "aborted_drift"
	RunStatusAbortedValidation  RunStatus = "aborted_validation"
)

// Run is one enrichment run over a partition.
type Run struct {
	ID        string      `json:"id"`
	Partition string      `json:"partition"`
	Status    RunStatus   `json:"status"`
	DryRun    bool        `json:"dry_run"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// StageResult is the recorded outcome of one pipeline stage on one partition.
type StageResult struct {
	Name      string         `json:"name"`
	Success   bool           `json:"success"`
	Duration  int64          `json:"duration_ms"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StageFailure records an adapter failure for a single record. Non-fatal to
// the run; the record's stage is abandoned and processing continues.
type StageFailure struct {
	MuseumID string `json:"museum_id"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// RunMetrics carries budget and failure accounting for a run.
type RunMetrics struct {
	BudgetTotalUSD     float64 `json:"budget_total_usd"`
	BudgetSpentUSD     float64 `json:"budget_spent_usd"`
	BudgetRemainingUSD float64 `json:"budget_remaining_usd"`
	RecordsProcessed   int     `json:"records_processed"`
	RecordsFailed      int     `json:"records_failed"`
	FailureRate        float64 `json:"failure_rate"`
}

// RunSummary is the append-only artifact written once at run end, regardless
// of how the run terminated.
type RunSummary struct {
	Changes     []ChangeSet      `json:"changes"`
	ReviewQueue []Recommendation `json:"review_queue"`
	Failures    []StageFailure   `json:"failures,omitempty"`
	Stages      []StageResult    `json:"stages"`
	Metrics     RunMetrics       `json:"metrics"`
	DriftReport *DriftReport     `json:"drift_report,omitempty"`
}

// DriftDiff is one gold-set mismatch found after a run.
type DriftDiff struct {
	MuseumID string `json:"record_id"`
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// DriftReport is the outcome of comparing the record store against the
// curated gold set.
type DriftReport struct {
	FieldsChecked int         `json:"fields_checked"`
	FieldsDrifted int         `json:"fields_drifted"`
	DriftRate     float64     `json:"drift_rate"`
	Threshold     float64     `json:"threshold"`
	Exceeded      bool        `json:"exceeded"`
	Diffs         []DriftDiff `json:"diffs,omitempty"`
}
