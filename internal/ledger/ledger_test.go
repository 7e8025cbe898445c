package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

func TestCreateInitializesTask(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create("t1", "report.pdf"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	view, err := s.Get("t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Status != models.StatusReceived {
		t.Errorf("status = %s, want %s", view.Status, models.StatusReceived)
	}
	if view.Filename != "report.pdf" {
		t.Errorf("filename = %q, want %q", view.Filename, "report.pdf")
	}
	if len(view.Log) != 1 {
		t.Fatalf("log length = %d, want 1", len(view.Log))
	}
	if !strings.Contains(view.Log[0].Message, "report.pdf") {
		t.Errorf("initial log line %q does not mention the filename", view.Log[0].Message)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create("t1", "a.pdf"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create("t1", "b.pdf"); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate Create() error = %v, want ErrExists", err)
	}
	// The original task must be untouched.
	view, _ := s.Get("t1")
	if view.Filename != "a.pdf" {
		t.Errorf("filename = %q after duplicate create, want %q", view.Filename, "a.pdf")
	}
}

func TestGetUnknownTask(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestTransitionOrdering(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create("t1", "a.pdf"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	steps := []models.TaskStatus{
		models.StatusProcessingOCR,
		models.StatusProcessingGeminiExtract,
		models.StatusProcessingReconciliation,
		models.StatusGeneratingReport,
		models.StatusCompleted,
	}
	for _, next := range steps {
		if err := s.Transition("t1", next); err != nil {
			t.Fatalf("Transition(%s) error = %v", next, err)
		}
	}
	view, _ := s.Get("t1")
	if view.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", view.Status)
	}
	// One breadcrumb per transition plus the creation line.
	if len(view.Log) != len(steps)+1 {
		t.Errorf("log length = %d, want %d", len(view.Log), len(steps)+1)
	}
}

func TestBackwardTransitionRejected(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Create("t1", "a.pdf")
	_ = s.Transition("t1", models.StatusProcessingGeminiExtract)
	if err := s.Transition("t1", models.StatusProcessingOCR); !errors.Is(err, ErrTransition) {
		t.Fatalf("backward Transition() error = %v, want ErrTransition", err)
	}
}

func TestFailedReachableFromAnyNonTerminal(t *testing.T) {
	for _, from := range []models.TaskStatus{
		models.StatusReceived,
		models.StatusProcessingOCR,
		models.StatusProcessingGeminiExtract,
		models.StatusProcessingReconciliation,
		models.StatusGeneratingReport,
	} {
		s := NewMemoryStore()
		_ = s.Create("t1", "a.pdf")
		if from != models.StatusReceived {
			if err := s.Transition("t1", from); err != nil {
				t.Fatalf("setup Transition(%s) error = %v", from, err)
			}
		}
		if err := s.Transition("t1", models.StatusFailed); err != nil {
			t.Errorf("Transition(%s -> failed) error = %v", from, err)
		}
	}
}

func TestFailedIsTerminal(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Create("t1", "a.pdf")
	_ = s.Transition("t1", models.StatusFailed)
	if err := s.Transition("t1", models.StatusCompleted); !errors.Is(err, ErrTransition) {
		t.Fatalf("Transition(failed -> completed) error = %v, want ErrTransition", err)
	}
}

func TestRecordErrorRejectedOnTerminalStatus(t *testing.T) {
	for _, terminal := range []models.TaskStatus{models.StatusCompleted, models.StatusFailed} {
		s := NewMemoryStore()
		_ = s.Create("t1", "a.pdf")
		_ = s.Transition("t1", terminal)
		if err := s.RecordError("t1", "late failure"); !errors.Is(err, ErrTransition) {
			t.Fatalf("RecordError on %s task error = %v, want ErrTransition", terminal, err)
		}
		view, _ := s.Get("t1")
		if view.Status != terminal {
			t.Errorf("status = %s, want %s untouched", view.Status, terminal)
		}
		if view.Error != "" {
			t.Errorf("error = %q set on a %s task", view.Error, terminal)
		}
	}
}

func TestRecordErrorIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Create("t1", "a.pdf")
	_ = s.Transition("t1", models.StatusProcessingOCR)
	if err := s.RecordError("t1", "ocr exploded"); err != nil {
		t.Fatalf("RecordError() error = %v", err)
	}
	view, _ := s.Get("t1")
	if view.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", view.Status)
	}
	if view.Error != "ocr exploded" {
		t.Errorf("error = %q, want %q", view.Error, "ocr exploded")
	}
	var sawError bool
	for _, entry := range view.Log {
		if strings.Contains(entry.Message, "ERROR: ocr exploded") {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("log has no ERROR breadcrumb: %+v", view.Log)
	}
}

func TestRecordResult(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Create("t1", "a.pdf")
	if err := s.RecordResult("t1", "/tmp/t1_report.xlsx"); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}
	view, _ := s.Get("t1")
	if view.ResultFile != "/tmp/t1_report.xlsx" {
		t.Errorf("result file = %q", view.ResultFile)
	}
}

func TestSourceURISetOnce(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Create("t1", "a.pdf")
	if err := s.SetSourceURI("t1", "gs://b/o"); err != nil {
		t.Fatalf("SetSourceURI() error = %v", err)
	}
	if err := s.SetSourceURI("t1", "gs://b/other"); err == nil {
		t.Fatal("second SetSourceURI() succeeded, want error")
	}
}

func TestConcurrentAppendsKeepAllLines(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Create("t1", "a.pdf")
	before, _ := s.Get("t1")

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := s.AppendLog("t1", fmt.Sprintf("writer %d line %d", w, i)); err != nil {
					t.Errorf("AppendLog() error = %v", err)
				}
				// Interleave reads with writes; Get must never race.
				if _, err := s.Get("t1"); err != nil {
					t.Errorf("Get() error = %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	after, _ := s.Get("t1")
	if got, want := len(after.Log), len(before.Log)+writers*perWriter; got != want {
		t.Errorf("log length = %d, want %d", got, want)
	}
}

func TestViewOwnsItsLog(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Create("t1", "a.pdf")
	view, _ := s.Get("t1")
	view.Log[0].Message = "tampered"
	fresh, _ := s.Get("t1")
	if fresh.Log[0].Message == "tampered" {
		t.Fatal("mutating a returned view leaked into the store")
	}
}
