package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/docsmith-platform/docsmith/internal/generation"
	"github.com/docsmith-platform/docsmith/internal/source"
)

// JobStatus is the per-file state machine: Queued → Generating → Succeeded|Failed.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobGenerating JobStatus = "generating"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final. A terminal JobRecord is
// read-only; only the orchestrator mutates non-terminal ones.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Origin records where a job's content came from.
type Origin string

const (
	OriginUpload Origin = "upload"
	OriginPaste  Origin = "paste"
	OriginSample Origin = "sample"
	OriginSource Origin = "source"
)

// JobRecord is one file's unit of work within a batch.
type JobRecord struct {
	ID            uuid.UUID                `json:"id"`
	Filename      string                   `json:"filename"`
	Language      string                   `json:"language"`
	DocType       string                   `json:"doc_type"`
	Content       string                   `json:"content,omitempty"`
	Origin        Origin                   `json:"origin"`
	Source        *source.Ref              `json:"source,omitempty"`
	Status        JobStatus                `json:"status"`
	Documentation string                   `json:"documentation,omitempty"`
	QualityScore  *generation.QualityScore `json:"quality_score,omitempty"`
	Error         string                   `json:"error,omitempty"`
	GeneratedAt   *time.Time               `json:"generated_at,omitempty"`
}

// RunState is the per-run state machine.
type RunState string

const (
	// StateIdle marks a run whose slot is reserved but whose working set and
	// admission check have not resolved yet.
	StateIdle       RunState = "idle"
	StateConfirming RunState = "confirming"
	StateReloading  RunState = "reloading"
	StateRunning    RunState = "running"
	StateCancelling RunState = "cancelling"
	StateCancelled  RunState = "cancelled"
	StateCompleted  RunState = "completed"
)

// Terminal reports whether the run has ended.
func (s RunState) Terminal() bool {
	return s == StateCancelled || s == StateCompleted
}

// ThrottleState is exposed while the orchestrator waits out the inter-job
// delay. Transient; zero outside an active pause.
type ThrottleState struct {
	RemainingSeconds int `json:"remaining_seconds"`
	CurrentIndex     int `json:"current_index"`
	Total            int `json:"total"`
}

// ReloadProgress tracks the reload-from-source pre-stage.
type ReloadProgress struct {
	Total        int         `json:"total"`
	Completed    int         `json:"completed"`
	SucceededIDs []uuid.UUID `json:"succeeded_ids"`
}

// SucceededFile is one successful entry of a BatchRun summary.
type SucceededFile struct {
	Filename     string    `json:"filename"`
	DocType      string    `json:"doc_type"`
	Score        int       `json:"score"`
	Grade        string    `json:"grade"`
	GeneratedAt  time.Time `json:"generated_at"`
	Strengths    []string  `json:"strengths,omitempty"`
	Improvements []string  `json:"improvements,omitempty"`
}

// FailedFile is one failed entry of a BatchRun summary.
type FailedFile struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchRun is the derived summary of a completed or cancelled run. It is
// computed exactly once per run and never hand-edited. Invariant:
// SuccessCount + FailCount == TotalFiles.
type BatchRun struct {
	TotalFiles      int             `json:"total_files"`
	SuccessCount    int             `json:"success_count"`
	FailCount       int             `json:"fail_count"`
	AvgQuality      float64         `json:"avg_quality"`
	AvgGrade        string          `json:"avg_grade"`
	SuccessfulFiles []SucceededFile `json:"successful_files"`
	FailedFiles     []FailedFile    `json:"failed_files"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
