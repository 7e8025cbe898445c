package report

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

func renderAndOpen(t *testing.T, doc models.CanonicalDocument, taskID string) *excelize.File {
	t.Helper()
	r := NewRenderer(t.TempDir())
	path, err := r.Render(context.Background(), doc, taskID)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if filepath.Base(path) != taskID+"_report.xlsx" {
		t.Errorf("artifact name = %s, want %s_report.xlsx", filepath.Base(path), taskID)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind next to %s", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile(%s) error = %v", path, err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestRenderEmptyDocumentProducesInfoSheet(t *testing.T) {
	f := renderAndOpen(t, models.NewCanonicalDocument(), "empty")
	sheets := f.GetSheetList()
	if !reflect.DeepEqual(sheets, []string{"Info"}) {
		t.Fatalf("sheets = %v, want [Info]", sheets)
	}
	rows, err := f.GetRows("Info")
	if err != nil {
		t.Fatalf("GetRows(Info) error = %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "Status" {
		t.Errorf("Info sheet rows = %v", rows)
	}
}

func TestRenderSummarySheet(t *testing.T) {
	doc := models.NewCanonicalDocument()
	doc.Metadata["document_title"] = "Doc"
	doc.KeyValuePairs["Nome"] = "Ana"
	doc.KeyValuePairs["Idade"] = "30"

	f := renderAndOpen(t, doc, "summary")
	sheets := f.GetSheetList()
	if !reflect.DeepEqual(sheets, []string{"Summary"}) {
		t.Fatalf("sheets = %v, want [Summary]", sheets)
	}
	rows, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("GetRows(Summary) error = %v", err)
	}
	want := [][]string{
		{"Field", "Value"},
		{"meta_document_title", "Doc"},
		{"Idade", "30"},
		{"Nome", "Ana"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Summary rows = %v, want %v", rows, want)
	}
}

func TestRenderExcludesRawResponseMarker(t *testing.T) {
	doc := models.NewCanonicalDocument()
	doc.Metadata["raw_response"] = "giant blob"
	doc.KeyValuePairs["raw_response"] = "giant blob"
	doc.KeyValuePairs["keep"] = "me"

	f := renderAndOpen(t, doc, "marker")
	rows, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("GetRows(Summary) error = %v", err)
	}
	for _, row := range rows {
		if len(row) > 0 && strings.Contains(row[0], "raw_response") {
			t.Errorf("raw_response leaked into Summary: %v", row)
		}
	}
	if len(rows) != 2 {
		t.Errorf("Summary rows = %v, want header + keep", rows)
	}
}

func TestRenderTextSectionsSheet(t *testing.T) {
	doc := models.NewCanonicalDocument()
	doc.TextSections["Intro"] = "hello"
	doc.TextSections["Annex"] = "world"

	f := renderAndOpen(t, doc, "sections")
	rows, err := f.GetRows("Text Sections")
	if err != nil {
		t.Fatalf("GetRows(Text Sections) error = %v", err)
	}
	want := [][]string{
		{"Section Title", "Text"},
		{"Annex", "world"},
		{"Intro", "hello"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Text Sections rows = %v, want %v", rows, want)
	}
}

func TestRenderTableSheets(t *testing.T) {
	doc := models.NewCanonicalDocument()
	doc.Tables = []models.ExtractedTable{
		{Headers: []string{"A", "B"}, Rows: [][]string{{"1", "2"}, {"3", "4"}}},
		{Title: "Custos 2024", Headers: []string{"Item"}, Rows: [][]string{{"x"}}},
	}

	f := renderAndOpen(t, doc, "tables")
	sheets := f.GetSheetList()
	want := []string{"Table_1", "Custos_2024"}
	if !reflect.DeepEqual(sheets, want) {
		t.Fatalf("sheets = %v, want %v", sheets, want)
	}
	rows, err := f.GetRows("Table_1")
	if err != nil {
		t.Fatalf("GetRows(Table_1) error = %v", err)
	}
	if len(rows) != 3 || !reflect.DeepEqual(rows[0], []string{"A", "B"}) {
		t.Errorf("Table_1 rows = %v", rows)
	}
}

func TestRenderDisambiguatesCollidingSheetNames(t *testing.T) {
	doc := models.NewCanonicalDocument()
	doc.Tables = []models.ExtractedTable{
		{Title: "Itens!", Headers: []string{"A"}, Rows: [][]string{{"1"}}},
		{Title: "Itens?", Headers: []string{"A"}, Rows: [][]string{{"2"}}},
		{Title: "Itens.", Headers: []string{"A"}, Rows: [][]string{{"3"}}},
	}

	f := renderAndOpen(t, doc, "collide")
	sheets := f.GetSheetList()
	if len(sheets) != 3 {
		t.Fatalf("sheets = %v, want 3 distinct", sheets)
	}
	seen := map[string]bool{}
	for _, name := range sheets {
		if seen[name] {
			t.Fatalf("duplicate sheet name %q in %v", name, sheets)
		}
		seen[name] = true
		if len([]rune(name)) > 31 {
			t.Errorf("sheet name %q exceeds 31 runes", name)
		}
	}
}

func TestRenderTruncatesLongSheetNames(t *testing.T) {
	doc := models.NewCanonicalDocument()
	doc.Tables = []models.ExtractedTable{
		{Title: strings.Repeat("Relatório Financeiro ", 5), Headers: []string{"A"}, Rows: [][]string{{"1"}}},
	}
	f := renderAndOpen(t, doc, "long")
	for _, name := range f.GetSheetList() {
		if len([]rune(name)) > 31 {
			t.Errorf("sheet name %q exceeds 31 runes", name)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	doc := models.NewCanonicalDocument()
	doc.Metadata["b"] = "2"
	doc.Metadata["a"] = "1"
	doc.KeyValuePairs["z"] = "26"
	doc.KeyValuePairs["m"] = "13"
	doc.TextSections["s2"] = "two"
	doc.TextSections["s1"] = "one"

	var firstSheets []string
	var firstSummary [][]string
	for i := 0; i < 3; i++ {
		f := renderAndOpen(t, doc, "det")
		sheets := f.GetSheetList()
		summary, err := f.GetRows("Summary")
		if err != nil {
			t.Fatalf("GetRows(Summary) error = %v", err)
		}
		if i == 0 {
			firstSheets, firstSummary = sheets, summary
			continue
		}
		if !reflect.DeepEqual(sheets, firstSheets) || !reflect.DeepEqual(summary, firstSummary) {
			t.Fatalf("render %d differed: %v / %v", i, sheets, summary)
		}
	}
}
