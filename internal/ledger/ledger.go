// Package ledger holds per-task status, result location, and the append-only
// processing log. It is the only shared mutable state in the pipeline: the
// orchestrator writes to it from each task's goroutine while HTTP handlers
// poll it concurrently.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

var (
	// ErrNotFound is returned when a task id is unknown to the store.
	ErrNotFound = errors.New("task not found")
	// ErrExists is returned by Create when the task id is already in use.
	ErrExists = errors.New("task already exists")
	// ErrTransition is returned when a status change would move backward in
	// the workflow ordering.
	ErrTransition = errors.New("invalid status transition")
)

// Store is the ledger contract shared by the orchestrator and the query
// surface. Implementations must be safe for concurrent use; per-task log
// order must match call order.
type Store interface {
	Create(id, filename string) error
	SetSourceURI(id, uri string) error
	Transition(id string, next models.TaskStatus) error
	RecordResult(id, path string) error
	RecordError(id, message string) error
	AppendLog(id, message string) error
	Get(id string) (models.TaskView, error)
}

type task struct {
	filename   string
	status     models.TaskStatus
	sourceURI  string
	resultFile string
	errMsg     string
	log        []models.LogEntry
	createdAt  time.Time
}

// MemoryStore is the in-process Store implementation. Tasks live for the
// lifetime of the process; there is no eviction.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*task
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*task)}
}

// Create registers a new task with status "received" and an empty log.
// Duplicate ids are rejected with ErrExists rather than overwritten, so a
// colliding caller-supplied id surfaces as an error instead of silently
// discarding another task's history.
func (s *MemoryStore) Create(id, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; ok {
		return fmt.Errorf("task %q: %w", id, ErrExists)
	}
	t := &task{
		filename:  filename,
		status:    models.StatusReceived,
		createdAt: time.Now(),
	}
	s.tasks[id] = t
	s.appendLocked(t, fmt.Sprintf("Task initialized with file: %s", filename))
	return nil
}

// SetSourceURI records where the uploaded document lives. The URI is set
// once; later calls on a task that already has one are rejected.
func (s *MemoryStore) SetSourceURI(id, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	if t.sourceURI != "" {
		return fmt.Errorf("task %q: source URI already set", id)
	}
	t.sourceURI = uri
	s.appendLocked(t, fmt.Sprintf("Source document stored at: %s", uri))
	return nil
}

// Transition advances the task status, appending a breadcrumb log line.
// Backward moves and transitions out of a terminal status are rejected.
func (s *MemoryStore) Transition(id string, next models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	if !t.status.CanTransitionTo(next) {
		return fmt.Errorf("task %q: %s -> %s: %w", id, t.status, next, ErrTransition)
	}
	t.status = next
	s.appendLocked(t, fmt.Sprintf("Status changed to: %s", next))
	return nil
}

// RecordResult stores the rendered artifact path. Set exactly once, on
// success only.
func (s *MemoryStore) RecordResult(id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	t.resultFile = path
	s.appendLocked(t, fmt.Sprintf("Result file recorded: %s", path))
	return nil
}

// RecordError marks the task failed and stores the causing message in one
// step. The status move and the error field are updated atomically under the
// store lock. Terminal tasks are immutable: a late failure report against a
// completed or failed task is rejected with ErrTransition.
func (s *MemoryStore) RecordError(id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	if t.status.Terminal() {
		return fmt.Errorf("task %q: %s -> %s: %w", id, t.status, models.StatusFailed, ErrTransition)
	}
	t.errMsg = message
	s.appendLocked(t, fmt.Sprintf("ERROR: %s", message))
	if t.status != models.StatusFailed {
		t.status = models.StatusFailed
		s.appendLocked(t, fmt.Sprintf("Status changed to: %s", models.StatusFailed))
	}
	return nil
}

// AppendLog adds an explicit progress line to the task log.
func (s *MemoryStore) AppendLog(id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	s.appendLocked(t, message)
	return nil
}

// Get returns a snapshot of the task. The returned view owns its log slice;
// later writes to the store do not show through.
func (s *MemoryStore) Get(id string) (models.TaskView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.TaskView{}, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	logCopy := make([]models.LogEntry, len(t.log))
	copy(logCopy, t.log)
	return models.TaskView{
		ID:         id,
		Filename:   t.filename,
		Status:     t.status,
		SourceURI:  t.sourceURI,
		ResultFile: t.resultFile,
		Error:      t.errMsg,
		Log:        logCopy,
		CreatedAt:  t.createdAt,
	}, nil
}

func (s *MemoryStore) appendLocked(t *task, message string) {
	t.log = append(t.log, models.LogEntry{Timestamp: time.Now(), Message: message})
}
