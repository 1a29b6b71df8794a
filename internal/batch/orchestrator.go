package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/docsmith-platform/docsmith/internal/events"
	"github.com/docsmith-platform/docsmith/internal/generation"
	"github.com/docsmith-platform/docsmith/internal/identity"
	"github.com/docsmith-platform/docsmith/internal/metrics"
	"github.com/docsmith-platform/docsmith/internal/quota"
	"github.com/docsmith-platform/docsmith/internal/source"
)

// Generator is the upstream call the orchestrator drives. Satisfied by
// *generation.Client.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Mode selects how previously documented files in the selection are treated.
type Mode string

const (
	// ModeAll regenerates every selected file.
	ModeAll Mode = "all"
	// ModeMissing restricts the run to files without prior documentation.
	ModeMissing Mode = "missing"
)

var (
	// ErrRunActive is returned when the identity already has a run in flight.
	ErrRunActive = errors.New("a batch run is already active for this identity")
	// ErrNoRun is returned when no run exists for the identity.
	ErrNoRun = errors.New("no batch run for this identity")
	// ErrConfirmationRequired is returned when the selection contains files
	// with prior documentation and no Mode was chosen. The choice is made
	// once per batch, not per file.
	ErrConfirmationRequired = errors.New("selection contains documented files: choose to regenerate all or only missing")
	// ErrNothingToRun is returned when the working set resolves to zero jobs.
	ErrNothingToRun = errors.New("no runnable files in selection")
)

// AdmissionDeniedError aborts a run before any job starts.
type AdmissionDeniedError struct {
	Decision quota.Decision
	Usage    quota.Usage
	Limits   quota.Limits
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("batch admission denied (%s): %s", e.Decision.Scope, e.Decision.Reason)
}

// Run is one identity's batch execution. All fields behind mu; Snapshot gives
// callers a consistent view. The orchestrator goroutine is the single writer
// while the run is live.
type Run struct {
	ID       uuid.UUID
	identity identity.Identity

	mu        sync.RWMutex
	state     RunState
	jobs      []*JobRecord
	runnable  []*JobRecord
	throttle  ThrottleState
	reload    ReloadProgress
	summary   *BatchRun
	report    string
	cancelled atomic.Bool
}

// Snapshot is a consistent, copyable view of a run for progress responses.
type Snapshot struct {
	RunID    uuid.UUID      `json:"run_id"`
	State    RunState       `json:"state"`
	Throttle ThrottleState  `json:"throttle"`
	Reload   ReloadProgress `json:"reload"`
	Jobs     []JobRecord    `json:"jobs"`
}

func (r *Run) snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		RunID:    r.ID,
		State:    r.state,
		Throttle: r.throttle,
		Reload:   r.reload,
		Jobs:     make([]JobRecord, 0, len(r.jobs)),
	}
	for _, job := range r.jobs {
		j := *job
		j.Content = "" // not useful in progress payloads
		snap.Jobs = append(snap.Jobs, j)
	}
	return snap
}

// Orchestrator drives batch runs strictly sequentially: one goroutine per
// run, one job in flight at a time, a fixed pause between jobs. Sequencing is
// a design requirement (the upstream enforces a token-rate ceiling), not an
// implementation shortcut.
type Orchestrator struct {
	generator Generator
	fetcher   source.Fetcher
	ledger    *quota.Ledger
	sessions  *SessionStore
	publisher *events.Publisher

	delay    time.Duration
	maxFiles int
	tick     time.Duration

	mu   sync.Mutex
	runs map[string]*Run // one per identity key
}

func NewOrchestrator(
	generator Generator,
	fetcher source.Fetcher,
	ledger *quota.Ledger,
	sessions *SessionStore,
	publisher *events.Publisher,
	delay time.Duration,
	maxFiles int,
) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		fetcher:   fetcher,
		ledger:    ledger,
		sessions:  sessions,
		publisher: publisher,
		delay:     delay,
		maxFiles:  maxFiles,
		tick:      time.Second,
		runs:      make(map[string]*Run),
	}
}

// FileInput is one selected file in a start request.
type FileInput struct {
	Filename      string      `json:"filename" validate:"required,min=1,max=255"`
	Language      string      `json:"language" validate:"required,min=1,max=64"`
	DocType       string      `json:"doc_type" validate:"required,oneof=readme api inline tutorial architecture"`
	Content       string      `json:"content"`
	Origin        Origin      `json:"origin" validate:"omitempty,oneof=upload paste sample source"`
	Source        *source.Ref `json:"source,omitempty"`
	Documentation string      `json:"documentation,omitempty"`
}

// StartInput resolves to a run's working set.
type StartInput struct {
	Files []FileInput
	// EditorBuffer backs the fallback single-file job when nothing is selected.
	EditorBuffer FileInput
	Mode         Mode
}

// Start resolves the working set, performs the aggregate pre-flight admission
// check, and launches the run goroutine. It returns before the first job runs.
func (o *Orchestrator) Start(ctx context.Context, id identity.Identity, input StartInput) (*Run, error) {
	run := &Run{
		ID:       uuid.New(),
		identity: id,
		state:    StateIdle,
	}

	// Reserve the identity's slot before the working-set resolution and the
	// admission read. Both can be slow (the usage read hits the database), and
	// checking the map again only at insert time would let two concurrent
	// Start calls both pass. The idle run holds the slot; any pre-launch
	// failure releases it.
	o.mu.Lock()
	if existing, ok := o.runs[id.Key()]; ok && !o.runState(existing).Terminal() {
		o.mu.Unlock()
		return nil, ErrRunActive
	}
	o.runs[id.Key()] = run
	o.mu.Unlock()

	jobs, needsReload, err := o.resolveWorkingSet(input)
	if err != nil {
		o.release(id, run)
		return nil, err
	}

	// Single aggregate check before anything runs. Each job re-checks with
	// fresh counters once the run is going.
	usage, err := o.ledger.GetUsage(ctx, id)
	if err != nil {
		o.release(id, run)
		return nil, fmt.Errorf("reading usage for batch admission: %w", err)
	}
	limits := o.ledger.LimitsFor(id.Tier)
	if decision := quota.CheckUsageLimits(usage, limits); !decision.Allowed {
		metrics.QuotaDenialsTotal.WithLabelValues(string(decision.Scope)).Inc()
		o.publisher.Audit(ctx, events.AuditEvent{
			Identity:  id.Key(),
			EventType: "quota_denied",
			Severity:  "info",
			Details:   "batch pre-flight: " + decision.Reason,
			Timestamp: time.Now().UTC(),
		})
		o.release(id, run)
		return nil, &AdmissionDeniedError{Decision: decision, Usage: usage, Limits: limits}
	}

	run.mu.Lock()
	run.jobs = jobs
	run.state = StateRunning
	if needsReload {
		run.state = StateReloading
	}
	run.mu.Unlock()

	go o.execute(run)
	return run, nil
}

// release frees the identity's slot after a failed Start, but only if the
// slot still holds that run.
func (o *Orchestrator) release(id identity.Identity, run *Run) {
	o.mu.Lock()
	if o.runs[id.Key()] == run {
		delete(o.runs, id.Key())
	}
	o.mu.Unlock()
}

// resolveWorkingSet applies the selection rules: selected files with content
// run directly; selected files without content but with a source descriptor
// go through the reload stage; an empty selection falls back to the ad-hoc
// editor buffer as a single job.
func (o *Orchestrator) resolveWorkingSet(input StartInput) ([]*JobRecord, bool, error) {
	selection := input.Files
	if len(selection) == 0 {
		if input.EditorBuffer.Content == "" {
			return nil, false, ErrNothingToRun
		}
		buf := input.EditorBuffer
		if buf.Origin == "" {
			buf.Origin = OriginPaste
		}
		selection = []FileInput{buf}
	}
	if len(selection) > o.maxFiles {
		return nil, false, fmt.Errorf("selection exceeds the %d-file batch limit", o.maxFiles)
	}

	hasDocumented := false
	for _, f := range selection {
		if f.Documentation != "" {
			hasDocumented = true
			break
		}
	}
	if hasDocumented && input.Mode == "" {
		return nil, false, ErrConfirmationRequired
	}

	var jobs []*JobRecord
	needsReload := false
	for _, f := range selection {
		if input.Mode == ModeMissing && f.Documentation != "" {
			continue
		}
		if f.Content == "" && f.Source == nil {
			// Neither content nor a way to get it: not runnable.
			continue
		}
		if f.Content == "" {
			needsReload = true
		}
		origin := f.Origin
		if origin == "" {
			origin = OriginUpload
		}
		jobs = append(jobs, &JobRecord{
			ID:       uuid.New(),
			Filename: f.Filename,
			Language: f.Language,
			DocType:  f.DocType,
			Content:  f.Content,
			Origin:   origin,
			Source:   f.Source,
			Status:   JobQueued,
		})
	}
	if len(jobs) == 0 {
		return nil, false, ErrNothingToRun
	}
	return jobs, needsReload, nil
}

// execute is the run goroutine: optional reload stage, then the sequential
// job loop, then summary computation and the session mirror write.
func (o *Orchestrator) execute(run *Run) {
	ctx := context.Background()
	metrics.ActiveBatchRuns.Inc()
	defer metrics.ActiveBatchRuns.Dec()

	run.mu.RLock()
	reloading := run.state == StateReloading
	run.mu.RUnlock()

	if reloading {
		reloadStage(ctx, o.fetcher, run.jobs,
			func(job *JobRecord, content string) {
				run.mu.Lock()
				job.Content = content
				run.mu.Unlock()
			},
			func(p ReloadProgress) {
				run.mu.Lock()
				run.reload = p
				run.mu.Unlock()
			})
	}

	// Jobs still without content after the reload stage are absent from the
	// runnable set; they keep JobQueued and are excluded from the summary.
	run.mu.Lock()
	for _, job := range run.jobs {
		if job.Content != "" {
			run.runnable = append(run.runnable, job)
		}
	}
	runnable := run.runnable
	if !run.cancelled.Load() {
		run.state = StateRunning
	}
	run.mu.Unlock()

	for i, job := range runnable {
		if run.cancelled.Load() {
			break
		}

		if denial := o.runJob(ctx, run, job); denial != nil {
			// Later jobs would hit the same non-retryable denial, so they
			// share the current job's outcome and the run ends here.
			for _, rest := range runnable[i+1:] {
				o.failJob(ctx, run, rest, denial)
			}
			break
		}

		// Fixed pause after every job except the last. The countdown is
		// exposed tick by tick and cancellation is observed on every tick.
		if i < len(runnable)-1 {
			if !o.throttleWait(run, i, len(runnable)) {
				break
			}
		}
	}

	outcome := "completed"
	final := StateCompleted
	if run.cancelled.Load() {
		outcome = "cancelled"
		final = StateCancelled
	}

	now := time.Now().UTC()
	summary := Summarize(run.jobs, now)
	report := FormatReport(summary)

	run.mu.Lock()
	run.state = final
	run.throttle = ThrottleState{}
	run.summary = summary
	run.report = report
	run.mu.Unlock()

	if err := o.sessions.Save(ctx, run.identity, summary, report); err != nil {
		slog.Warn("mirroring batch session", "identity", run.identity.Key(), "error", err)
	}

	metrics.BatchRunsTotal.WithLabelValues(outcome).Inc()
	o.publisher.BatchFinished(ctx, events.BatchEvent{
		RunID:        run.ID,
		Identity:     run.identity.Key(),
		Outcome:      outcome,
		TotalFiles:   summary.TotalFiles,
		SuccessCount: summary.SuccessCount,
		FailCount:    summary.FailCount,
		Timestamp:    now,
	})

	slog.Info("batch run finished",
		"run_id", run.ID,
		"identity", run.identity.Key(),
		"outcome", outcome,
		"succeeded", summary.SuccessCount,
		"failed", summary.FailCount,
	)
}

// runJob admits and executes a single job. Generation errors are folded into
// the job's terminal state; a non-nil return means an admission denial that
// applies to the rest of the run as well.
func (o *Orchestrator) runJob(ctx context.Context, run *Run, job *JobRecord) error {
	id := run.identity

	// Fresh admission check per job: a prior job in this run has already
	// moved the counters, so a cached decision would over-admit.
	usage, err := o.ledger.GetUsage(ctx, id)
	if err != nil {
		o.failJob(ctx, run, job, fmt.Errorf("reading usage: %w", err))
		return nil
	}
	limits := o.ledger.LimitsFor(id.Tier)
	if decision := quota.CheckUsageLimits(usage, limits); !decision.Allowed {
		metrics.QuotaDenialsTotal.WithLabelValues(string(decision.Scope)).Inc()
		denial := fmt.Errorf("quota exhausted mid-batch: %s", decision.Reason)
		o.failJob(ctx, run, job, denial)
		return denial
	}

	run.mu.Lock()
	job.Status = JobGenerating
	run.mu.Unlock()

	start := time.Now()
	result, err := o.generator.Generate(ctx, generation.Request{
		Code:      job.Content,
		DocType:   job.DocType,
		Language:  job.Language,
		Filename:  job.Filename,
		CacheHint: id.Key(),
	})
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		o.failJob(ctx, run, job, err)
		return nil
	}

	now := time.Now().UTC()
	run.mu.Lock()
	job.Status = JobSucceeded
	job.Documentation = result.Documentation
	job.QualityScore = &result.QualityScore
	job.GeneratedAt = &now
	run.mu.Unlock()

	if err := o.ledger.Increment(ctx, id, 1); err != nil {
		metrics.LedgerWriteFailuresTotal.Inc()
		o.publisher.Audit(ctx, events.AuditEvent{
			Identity:  id.Key(),
			EventType: "ledger_write_failed",
			Severity:  "error",
			Details:   err.Error(),
			Timestamp: now,
		})
	}

	metrics.GenerationJobsTotal.WithLabelValues("batch", "succeeded").Inc()
	o.publisher.JobFinished(ctx, events.JobEvent{
		JobID:     job.ID,
		Identity:  id.Key(),
		Filename:  job.Filename,
		DocType:   job.DocType,
		Status:    "succeeded",
		Score:     result.QualityScore.Score,
		Timestamp: now,
	})
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, run *Run, job *JobRecord, err error) {
	slog.Warn("batch job failed",
		"run_id", run.ID, "filename", job.Filename, "error", err)

	run.mu.Lock()
	job.Status = JobFailed
	job.Error = err.Error()
	run.mu.Unlock()

	metrics.GenerationJobsTotal.WithLabelValues("batch", "failed").Inc()
	o.publisher.JobFinished(ctx, events.JobEvent{
		JobID:     job.ID,
		Identity:  run.identity.Key(),
		Filename:  job.Filename,
		DocType:   job.DocType,
		Status:    "failed",
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// throttleWait pauses between jobs, counting down once per tick. Returns
// false when cancellation was observed during the pause.
func (o *Orchestrator) throttleWait(run *Run, index, total int) bool {
	remaining := int(o.delay / o.tick)
	for remaining > 0 {
		if run.cancelled.Load() {
			run.mu.Lock()
			run.throttle = ThrottleState{}
			run.mu.Unlock()
			return false
		}

		run.mu.Lock()
		run.throttle = ThrottleState{
			RemainingSeconds: remaining,
			CurrentIndex:     index + 1,
			Total:            total,
		}
		run.mu.Unlock()

		time.Sleep(o.tick)
		remaining--
	}

	run.mu.Lock()
	run.throttle = ThrottleState{}
	run.mu.Unlock()
	return !run.cancelled.Load()
}

// Cancel requests cooperative cancellation. The in-flight job is not aborted;
// no new job starts once the flag is observed.
func (o *Orchestrator) Cancel(id identity.Identity) error {
	run, err := o.runFor(id)
	if err != nil {
		return err
	}

	run.cancelled.Store(true)
	run.mu.Lock()
	if run.state == StateRunning || run.state == StateReloading {
		run.state = StateCancelling
	}
	run.mu.Unlock()
	return nil
}

// Progress returns a consistent snapshot of the identity's run.
func (o *Orchestrator) Progress(id identity.Identity) (Snapshot, error) {
	run, err := o.runFor(id)
	if err != nil {
		return Snapshot{}, err
	}
	return run.snapshot(), nil
}

// Result returns the summary and report once the run has ended.
func (o *Orchestrator) Result(id identity.Identity) (*BatchRun, string, error) {
	run, err := o.runFor(id)
	if err != nil {
		return nil, "", err
	}

	run.mu.RLock()
	defer run.mu.RUnlock()
	if !run.state.Terminal() {
		return nil, "", fmt.Errorf("batch run still %s", run.state)
	}
	return run.summary, run.report, nil
}

// Reset drops a terminal run and clears its session mirror.
func (o *Orchestrator) Reset(ctx context.Context, id identity.Identity) error {
	o.mu.Lock()
	if run, ok := o.runs[id.Key()]; ok {
		if !o.runState(run).Terminal() {
			o.mu.Unlock()
			return ErrRunActive
		}
		delete(o.runs, id.Key())
	}
	o.mu.Unlock()

	return o.sessions.Clear(ctx, id)
}

func (o *Orchestrator) runFor(id identity.Identity) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[id.Key()]
	if !ok {
		return nil, ErrNoRun
	}
	return run, nil
}

func (o *Orchestrator) runState(run *Run) RunState {
	run.mu.RLock()
	defer run.mu.RUnlock()
	return run.state
}
