// Package reconcile merges the structured extraction result with the
// corroborating OCR text into one canonical document.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

// Policy decides how the structured candidate and the OCR text are combined.
// A future implementation may fill gaps in the candidate from the OCR text
// or flag discrepancies between the two sources; the orchestrator only
// depends on this interface, so swapping the policy requires no pipeline
// changes.
type Policy interface {
	Reconcile(ctx context.Context, candidate models.CanonicalDocument, ocrText string) (models.CanonicalDocument, error)
}

// NoopPolicy returns the candidate unchanged. Cross-source merging was found
// to lose table data, so the OCR text is accepted and deliberately ignored;
// it is still threaded through so a real merge can be dropped in later.
type NoopPolicy struct{}

func (NoopPolicy) Reconcile(ctx context.Context, candidate models.CanonicalDocument, ocrText string) (models.CanonicalDocument, error) {
	slog.Debug("Reconciliation is a pass-through; keeping extracted data as-is.", "ocrChars", len(ocrText))
	return candidate, nil
}
