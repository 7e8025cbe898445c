package workflow

import (
	"fmt"

	"github.com/Lllllllleong/pdfreportflow/internal/ledger"
	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

// Service is the read-side surface over the ledger used by polling clients.
type Service struct {
	store ledger.Store
}

// NewService returns a query service over the given store.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// GetStatus returns the task snapshot, or ledger.ErrNotFound.
func (s *Service) GetStatus(taskID string) (models.TaskView, error) {
	return s.store.Get(taskID)
}

// GetLogs returns the task's ordered log entries, or ledger.ErrNotFound.
func (s *Service) GetLogs(taskID string) ([]models.LogEntry, error) {
	view, err := s.store.Get(taskID)
	if err != nil {
		return nil, err
	}
	return view.Log, nil
}

// GetResultPath returns the rendered artifact path. It is valid only once
// the task has completed with a recorded result; otherwise ErrNotReady.
func (s *Service) GetResultPath(taskID string) (string, error) {
	view, err := s.store.Get(taskID)
	if err != nil {
		return "", err
	}
	if view.Status != models.StatusCompleted || view.ResultFile == "" {
		return "", fmt.Errorf("task %q in status %s: %w", taskID, view.Status, ErrNotReady)
	}
	return view.ResultFile, nil
}
