package reconcile

import (
	"context"
	"reflect"
	"testing"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

func TestNoopPolicyReturnsCandidateUnchanged(t *testing.T) {
	candidate := models.CanonicalDocument{
		Metadata:      map[string]any{"document_title": "Doc", "page_count": 3.0},
		KeyValuePairs: map[string]string{"Nome": "Ana"},
		TextSections:  map[string]string{"Intro": "text"},
		Tables: []models.ExtractedTable{
			{Title: "T", Headers: []string{"A"}, Rows: [][]string{{"1"}}},
		},
	}

	got, err := NoopPolicy{}.Reconcile(context.Background(), candidate, "totally different OCR text")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !reflect.DeepEqual(got, candidate) {
		t.Errorf("Reconcile() altered the candidate:\n got %+v\nwant %+v", got, candidate)
	}
}

func TestNoopPolicyIgnoresEmptyOCRText(t *testing.T) {
	candidate := models.NewCanonicalDocument()
	got, err := NoopPolicy{}.Reconcile(context.Background(), candidate, "")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !reflect.DeepEqual(got, candidate) {
		t.Errorf("Reconcile() = %+v, want %+v", got, candidate)
	}
}
