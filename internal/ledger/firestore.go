package ledger

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

// taskRecord is the Firestore shape of a task. Only the queryable fields are
// mirrored; the full log stays in memory.
type taskRecord struct {
	TaskID           string    `firestore:"taskId"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status"`
	SourceURI        string    `firestore:"sourceUri,omitempty"`
	ResultFile       string    `firestore:"resultFile,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

// FirestoreMirror decorates a Store with a best-effort copy of each task
// record in a Firestore collection, so completed and failed tasks survive a
// restart for audit purposes. The in-memory store stays authoritative:
// mirror write failures are logged and never fail the task.
type FirestoreMirror struct {
	inner      Store
	client     *firestore.Client
	collection string
	timeout    time.Duration
}

// NewFirestoreMirror wraps inner with mirroring into the named collection.
func NewFirestoreMirror(inner Store, client *firestore.Client, collection string) *FirestoreMirror {
	return &FirestoreMirror{
		inner:      inner,
		client:     client,
		collection: collection,
		timeout:    10 * time.Second,
	}
}

func (m *FirestoreMirror) Create(id, filename string) error {
	if err := m.inner.Create(id, filename); err != nil {
		return err
	}
	m.sync(id)
	return nil
}

func (m *FirestoreMirror) SetSourceURI(id, uri string) error {
	if err := m.inner.SetSourceURI(id, uri); err != nil {
		return err
	}
	m.sync(id)
	return nil
}

func (m *FirestoreMirror) Transition(id string, next models.TaskStatus) error {
	if err := m.inner.Transition(id, next); err != nil {
		return err
	}
	m.sync(id)
	return nil
}

func (m *FirestoreMirror) RecordResult(id, path string) error {
	if err := m.inner.RecordResult(id, path); err != nil {
		return err
	}
	m.sync(id)
	return nil
}

func (m *FirestoreMirror) RecordError(id, message string) error {
	if err := m.inner.RecordError(id, message); err != nil {
		return err
	}
	m.sync(id)
	return nil
}

// AppendLog is not mirrored; log lines are high-volume and memory-only.
func (m *FirestoreMirror) AppendLog(id, message string) error {
	return m.inner.AppendLog(id, message)
}

func (m *FirestoreMirror) Get(id string) (models.TaskView, error) {
	return m.inner.Get(id)
}

func (m *FirestoreMirror) sync(id string) {
	view, err := m.inner.Get(id)
	if err != nil {
		slog.Error("Firestore mirror: task vanished before sync", "taskId", id, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	rec := taskRecord{
		TaskID:           view.ID,
		OriginalFilename: view.Filename,
		Status:           string(view.Status),
		SourceURI:        view.SourceURI,
		ResultFile:       view.ResultFile,
		ErrorDetails:     view.Error,
		UpdatedAt:        time.Now(),
	}
	if _, err := m.client.Collection(m.collection).Doc(id).Set(ctx, rec); err != nil {
		slog.Warn("Firestore mirror write failed; in-memory ledger remains authoritative.", "taskId", id, "error", err)
	}
}
