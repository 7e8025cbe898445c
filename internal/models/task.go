package models

import "time"

// TaskStatus is the lifecycle state of a processing task. Statuses advance
// strictly forward; StatusFailed is terminal and reachable from any
// non-terminal status.
type TaskStatus string

const (
	StatusReceived                 TaskStatus = "received"
	StatusProcessingOCR            TaskStatus = "processing_ocr"
	StatusProcessingGeminiExtract  TaskStatus = "processing_gemini_extract"
	StatusProcessingReconciliation TaskStatus = "processing_reconciliation"
	StatusGeneratingReport         TaskStatus = "generating_report"
	StatusCompleted                TaskStatus = "completed"
	StatusFailed                   TaskStatus = "failed"
)

var statusRank = map[TaskStatus]int{
	StatusReceived:                 0,
	StatusProcessingOCR:            1,
	StatusProcessingGeminiExtract:  2,
	StatusProcessingReconciliation: 3,
	StatusGeneratingReport:         4,
	StatusCompleted:                5,
	StatusFailed:                   6,
}

// Rank returns the position of the status in the workflow ordering.
// Unknown statuses rank below every defined one.
func (s TaskStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Terminal reports whether the status has no outgoing transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next respects the
// workflow ordering: forward moves only, with StatusFailed reachable from
// any non-terminal status.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.Rank() > s.Rank() && next.Rank() <= statusRank[StatusCompleted]
}

// LogEntry is one timestamped line of a task's append-only log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// TaskView is an immutable snapshot of a task as held by the ledger.
// The Log slice is a copy owned by the caller.
type TaskView struct {
	ID         string     `json:"task_id"`
	Filename   string     `json:"filename"`
	Status     TaskStatus `json:"status"`
	SourceURI  string     `json:"gcs_uri,omitempty"`
	ResultFile string     `json:"result_file,omitempty"`
	Error      string     `json:"error,omitempty"`
	Log        []LogEntry `json:"logs"`
	CreatedAt  time.Time  `json:"created_at"`
}
