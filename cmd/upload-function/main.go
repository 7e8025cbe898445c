package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"

	"github.com/Lllllllleong/pdfreportflow/internal/server"
)

var (
	appInstance *server.App
	once        sync.Once
	initErr     error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the event-driven function with the Functions Framework.
	// "ProcessUploadedPDF" is the entry point name configured in GCP.
	functions.CloudEvent("ProcessUploadedPDF", processUploadedPDF)
}

// main is required by the Go Functions Framework.
func main() {}

// gcsEvent is the subset of the GCS finalize event payload we consume.
type gcsEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// processUploadedPDF starts a workflow for a PDF that landed in the upload
// bucket. The event is acknowledged as soon as the workflow is spawned;
// progress is observable through the ledger only.
func processUploadedPDF(ctx context.Context, e event.Event) error {
	once.Do(func() {
		appInstance, initErr = server.NewApp(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: application initialization failed", "error", initErr)
		return fmt.Errorf("failed to initialize service: %w", initErr)
	}

	var ev gcsEvent
	if err := e.DataAs(&ev); err != nil {
		return fmt.Errorf("failed to decode GCS event: %w", err)
	}
	logCtx := slog.With("gcsBucket", ev.Bucket, "gcsObject", ev.Name)

	if !strings.EqualFold(path.Ext(ev.Name), ".pdf") {
		logCtx.Info("Ignoring non-PDF object.")
		return nil
	}

	taskID := uuid.NewString()
	filename := path.Base(ev.Name)
	if err := appInstance.Store.Create(taskID, filename); err != nil {
		logCtx.Error("Failed to create task.", "error", err)
		return err
	}
	gcsURI := fmt.Sprintf("gs://%s/%s", ev.Bucket, ev.Name)
	if err := appInstance.Store.SetSourceURI(taskID, gcsURI); err != nil {
		logCtx.Error("Failed to record source URI.", "error", err)
		return err
	}

	appInstance.Orchestrator.StartWorkflow(taskID, gcsURI)
	logCtx.Info("Workflow spawned for uploaded object.", "taskId", taskID)
	return nil
}
