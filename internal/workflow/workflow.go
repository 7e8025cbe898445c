// Package workflow drives a task through the ordered extraction stages and
// records every transition in the ledger. Workflows are spawned
// fire-and-forget: the caller holds only a task id and observes progress by
// polling the ledger. There are no per-stage timeouts or cancellation in
// this version; a stuck external call blocks that task's pipeline. The
// context threaded through the stages is the hook for adding deadlines.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/pdfreportflow/internal/ledger"
	"github.com/Lllllllleong/pdfreportflow/internal/models"
	"github.com/Lllllllleong/pdfreportflow/internal/normalize"
	"github.com/Lllllllleong/pdfreportflow/internal/reconcile"
)

// OCRExtractor turns a stored document into raw text.
type OCRExtractor interface {
	ExtractText(ctx context.Context, gcsURI string) (string, error)
}

// StructuredExtractor returns the untrusted structured payload for a stored
// document. The payload shape is not guaranteed; it is validated
// field-by-field by the normalizer.
type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, gcsURI string) (any, error)
}

// ArtifactRenderer turns a canonical document into the report artifact and
// returns its path.
type ArtifactRenderer interface {
	Render(ctx context.Context, doc models.CanonicalDocument, taskID string) (string, error)
}

// Orchestrator owns the stage sequence for every task.
type Orchestrator struct {
	store     ledger.Store
	ocr       OCRExtractor
	extractor StructuredExtractor
	policy    reconcile.Policy
	renderer  ArtifactRenderer
}

// NewOrchestrator wires the capabilities into an orchestrator.
func NewOrchestrator(store ledger.Store, ocr OCRExtractor, extractor StructuredExtractor, policy reconcile.Policy, renderer ArtifactRenderer) *Orchestrator {
	return &Orchestrator{
		store:     store,
		ocr:       ocr,
		extractor: extractor,
		policy:    policy,
		renderer:  renderer,
	}
}

// StartWorkflow spawns the pipeline for the task and returns immediately.
// Errors surface only through the ledger, never to the caller.
func (o *Orchestrator) StartWorkflow(taskID, gcsURI string) {
	go o.run(context.Background(), taskID, gcsURI)
}

// run executes the stages in their fixed order. OCR runs before extraction
// by contract even though the current reconciliation policy ignores its
// output, so a future policy can depend on it without reordering the
// pipeline. Any stage error ends the workflow at the orchestrator boundary:
// the task is marked failed and nothing propagates further.
func (o *Orchestrator) run(ctx context.Context, taskID, gcsURI string) {
	logCtx := slog.With("taskId", taskID, "gcsUri", gcsURI)
	logCtx.Info("Workflow started.")
	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("Workflow panicked.", "panic", r)
			o.fail(logCtx, taskID, fmt.Errorf("internal error: %v", r))
		}
	}()

	o.log(taskID, fmt.Sprintf("Starting workflow with GCS URI: %s", gcsURI))

	// --- Stage 1: OCR ---
	if !o.transition(logCtx, taskID, models.StatusProcessingOCR) {
		return
	}
	o.log(taskID, "Starting OCR processing...")
	ocrText, err := o.ocr.ExtractText(ctx, gcsURI)
	if err != nil {
		o.fail(logCtx, taskID, fmt.Errorf("OCR processing failed: %w", err))
		return
	}
	o.log(taskID, fmt.Sprintf("OCR completed successfully. Extracted %d characters.", len(ocrText)))

	// --- Stage 2: Gemini Extraction ---
	if !o.transition(logCtx, taskID, models.StatusProcessingGeminiExtract) {
		return
	}
	o.log(taskID, "Starting Gemini extraction...")
	raw, err := o.extractor.ExtractStructured(ctx, gcsURI)
	if err != nil {
		o.fail(logCtx, taskID, fmt.Errorf("Gemini extraction failed: %w", err))
		return
	}
	doc, notes := normalize.Normalize(raw)
	for _, note := range notes {
		o.log(taskID, "Normalizer: "+note)
	}
	o.log(taskID, fmt.Sprintf(
		"Gemini extraction completed. Found %d metadata items, %d key-value pairs, %d text sections, and %d tables.",
		len(doc.Metadata), len(doc.KeyValuePairs), len(doc.TextSections), len(doc.Tables)))

	// --- Stage 3: Reconciliation ---
	if !o.transition(logCtx, taskID, models.StatusProcessingReconciliation) {
		return
	}
	o.log(taskID, "Starting Gemini reconciliation...")
	doc, err = o.policy.Reconcile(ctx, doc, ocrText)
	if err != nil {
		o.fail(logCtx, taskID, fmt.Errorf("reconciliation failed: %w", err))
		return
	}
	o.log(taskID, fmt.Sprintf(
		"Reconciliation completed. Final data has %d metadata items, %d key-value pairs, %d text sections, and %d tables.",
		len(doc.Metadata), len(doc.KeyValuePairs), len(doc.TextSections), len(doc.Tables)))

	// --- Stage 4: Report Generation ---
	if !o.transition(logCtx, taskID, models.StatusGeneratingReport) {
		return
	}
	o.log(taskID, "Generating Excel report...")
	resultPath, err := o.renderer.Render(ctx, doc, taskID)
	if err != nil {
		o.fail(logCtx, taskID, fmt.Errorf("report generation failed: %w", err))
		return
	}
	o.log(taskID, fmt.Sprintf("Excel report generated at: %s", resultPath))

	// --- Completion ---
	if err := o.store.RecordResult(taskID, resultPath); err != nil {
		logCtx.Error("Failed to record result path.", "error", err)
		o.fail(logCtx, taskID, err)
		return
	}
	if !o.transition(logCtx, taskID, models.StatusCompleted) {
		return
	}
	o.log(taskID, "Workflow completed successfully!")
	logCtx.Info("Workflow completed successfully.")
}

// transition advances the task status, failing the task if the ledger
// rejects the move. Returns false when the workflow should stop.
func (o *Orchestrator) transition(logCtx *slog.Logger, taskID string, next models.TaskStatus) bool {
	if err := o.store.Transition(taskID, next); err != nil {
		logCtx.Error("Status transition rejected.", "next", next, "error", err)
		o.fail(logCtx, taskID, err)
		return false
	}
	return true
}

func (o *Orchestrator) log(taskID, message string) {
	// A missing task here means the ledger entry was never created; the
	// workflow cannot make progress without it, so only log the anomaly.
	if err := o.store.AppendLog(taskID, message); err != nil {
		slog.Error("Failed to append task log.", "taskId", taskID, "error", err)
	}
}

// fail is the single boundary converting a stage error into a ledger
// `failed` transition plus a log entry.
func (o *Orchestrator) fail(logCtx *slog.Logger, taskID string, cause error) {
	logCtx.Error("Workflow failed.", "error", cause)
	o.log(taskID, fmt.Sprintf("Workflow failed: %v", cause))
	if err := o.store.RecordError(taskID, cause.Error()); err != nil {
		logCtx.Error("CRITICAL: Failed to record task failure in ledger.", "recordError", err)
	}
}
