package events

import (
	"time"

	"github.com/google/uuid"
)

// Stream and subject layout.
const (
	StreamEvents = "DOCSMITH_EVENTS"

	SubjectJobEvent   = "docsmith.events.job"
	SubjectBatchEvent = "docsmith.events.batch"
	SubjectAuditEvent = "docsmith.events.audit"
)

// JobEvent is published when a generation job reaches a terminal state.
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	Identity  string    `json:"identity"`
	Filename  string    `json:"filename"`
	DocType   string    `json:"doc_type"`
	Status    string    `json:"status"` // succeeded, failed
	Score     int       `json:"score,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchEvent is published when a batch run ends, naturally or by cancellation.
type BatchEvent struct {
	RunID        uuid.UUID `json:"run_id"`
	Identity     string    `json:"identity"`
	Outcome      string    `json:"outcome"` // completed, cancelled
	TotalFiles   int       `json:"total_files"`
	SuccessCount int       `json:"success_count"`
	FailCount    int       `json:"fail_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// AuditEvent records quota-relevant decisions for offline reconciliation.
type AuditEvent struct {
	Identity  string    `json:"identity"`
	EventType string    `json:"event_type"` // quota_denied, usage_migrated, ledger_write_failed
	Severity  string    `json:"severity"`   // info, warn, error
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
