package workflow

import "errors"

// Error taxonomy for pipeline stages. Capability implementations wrap these
// sentinels so the orchestrator and callers can classify failures with
// errors.Is without depending on concrete backends.
var (
	// ErrDependencyUnavailable means an external capability's runtime or
	// library is missing. Fatal for the whole workflow, not retryable.
	ErrDependencyUnavailable = errors.New("required dependency unavailable")
	// ErrSourceNotFound means the referenced source document does not exist.
	ErrSourceNotFound = errors.New("source document not found")
	// ErrExtraction is a capability-specific extraction failure, terminal
	// for the task.
	ErrExtraction = errors.New("extraction failed")
	// ErrRender is an unrecoverable report-rendering failure.
	ErrRender = errors.New("report rendering failed")
	// ErrNotReady is returned when a result is requested before the task
	// has completed.
	ErrNotReady = errors.New("processing not complete or result file not available")
)
