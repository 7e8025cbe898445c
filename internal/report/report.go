// Package report renders a canonical document into a multi-sheet XLSX
// artifact. Rendering is deterministic: the same document always produces
// the same sheets, in the same order, with the same names.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

// rawResponseKey marks entries that hold an unparsed upstream payload; they
// are excluded from the Summary sheet.
const rawResponseKey = "raw_response"

// maxSheetNameLen is the strictest sheet-name limit across spreadsheet
// formats that open XLSX files.
const maxSheetNameLen = 31

// Renderer writes task reports into OutputDir, creating it on demand.
type Renderer struct {
	OutputDir string
}

// NewRenderer returns a Renderer writing into outputDir.
func NewRenderer(outputDir string) *Renderer {
	return &Renderer{OutputDir: outputDir}
}

// Render writes the report for taskID and returns the artifact path.
// The file is written to a temp name and renamed into place, so a failed
// render never leaves a partial file that looks like a finished report.
func (r *Renderer) Render(ctx context.Context, doc models.CanonicalDocument, taskID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	w := &workbook{f: f, used: map[string]bool{}}

	if err := w.writeSummary(doc); err != nil {
		return "", err
	}
	if err := w.writeTextSections(doc); err != nil {
		return "", err
	}
	if err := w.writeTables(doc); err != nil {
		return "", err
	}
	if w.sheets == 0 {
		// The artifact must never be sheet-less.
		name, err := w.addSheet("Info")
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(name, "A1", &[]any{"Status"}); err != nil {
			return "", fmt.Errorf("failed to write Info sheet: %w", err)
		}
		if err := f.SetSheetRow(name, "A2", &[]any{"No structured data extracted or processed"}); err != nil {
			return "", fmt.Errorf("failed to write Info sheet: %w", err)
		}
		slog.Warn("No data sheets generated, writing default Info sheet.", "taskId", taskID)
	}

	outputPath := filepath.Join(r.OutputDir, fmt.Sprintf("%s_report.xlsx", taskID))
	tmpPath := outputPath + ".tmp"
	if err := f.SaveAs(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write report file %s: %w", outputPath, err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize report file %s: %w", outputPath, err)
	}
	slog.Info("Report rendered.", "taskId", taskID, "path", outputPath, "sheets", w.sheets)
	return outputPath, nil
}

type workbook struct {
	f      *excelize.File
	used   map[string]bool
	sheets int
}

// addSheet creates (or claims, for the first sheet, renames the default)
// a sheet under a collision-free name and returns the name actually used.
func (w *workbook) addSheet(name string) (string, error) {
	name = w.dedupe(name)
	if w.sheets == 0 {
		if err := w.f.SetSheetName(w.f.GetSheetName(0), name); err != nil {
			return "", fmt.Errorf("failed to name sheet %q: %w", name, err)
		}
	} else {
		if _, err := w.f.NewSheet(name); err != nil {
			return "", fmt.Errorf("failed to create sheet %q: %w", name, err)
		}
	}
	w.used[name] = true
	w.sheets++
	return name, nil
}

// dedupe resolves name collisions with deterministic numeric suffixes,
// keeping the result within the sheet-name length limit.
func (w *workbook) dedupe(name string) string {
	if !w.used[name] {
		return name
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		candidate := truncateRunes(name, maxSheetNameLen-utf8.RuneCountInString(suffix)) + suffix
		if !w.used[candidate] {
			return candidate
		}
	}
}

// writeSummary emits the Field/Value sheet with prefixed metadata entries
// followed by key-value pairs. Keys are sorted so output is deterministic
// across map iteration orders. Skipped entirely when both maps are empty.
func (w *workbook) writeSummary(doc models.CanonicalDocument) error {
	rows := [][]any{}
	for _, k := range sortedKeys(doc.Metadata) {
		if k == rawResponseKey {
			continue
		}
		rows = append(rows, []any{"meta_" + k, fmt.Sprint(doc.Metadata[k])})
	}
	for _, k := range sortedKeys(doc.KeyValuePairs) {
		if k == rawResponseKey {
			continue
		}
		rows = append(rows, []any{k, doc.KeyValuePairs[k]})
	}
	if len(rows) == 0 {
		return nil
	}
	name, err := w.addSheet("Summary")
	if err != nil {
		return err
	}
	return w.writeGrid(name, []string{"Field", "Value"}, rows)
}

func (w *workbook) writeTextSections(doc models.CanonicalDocument) error {
	if len(doc.TextSections) == 0 {
		return nil
	}
	rows := [][]any{}
	for _, title := range sortedKeys(doc.TextSections) {
		rows = append(rows, []any{title, doc.TextSections[title]})
	}
	name, err := w.addSheet("Text Sections")
	if err != nil {
		return err
	}
	return w.writeGrid(name, []string{"Section Title", "Text"}, rows)
}

func (w *workbook) writeTables(doc models.CanonicalDocument) error {
	for i, table := range doc.Tables {
		if len(table.Rows) == 0 {
			// Normalization drops these already; guard against producers
			// that skipped it.
			continue
		}
		title := table.Title
		if title == "" {
			title = fmt.Sprintf("Table_%d", i+1)
		}
		name, err := w.addSheet(sanitizeSheetName(title))
		if err != nil {
			return err
		}
		rows := make([][]any, 0, len(table.Rows))
		for _, row := range table.Rows {
			cells := make([]any, len(row))
			for j, c := range row {
				cells[j] = c
			}
			rows = append(rows, cells)
		}
		if err := w.writeGrid(name, table.Headers, rows); err != nil {
			return err
		}
	}
	return nil
}

// writeGrid writes a header row followed by data rows and auto-sizes each
// column to its longest stringified cell.
func (w *workbook) writeGrid(sheet string, headers []string, rows [][]any) error {
	headerCells := make([]any, len(headers))
	widths := make([]int, len(headers))
	for i, h := range headers {
		headerCells[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := w.f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return fmt.Errorf("sheet %q: failed to write header row: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %q: failed to write row %d: %w", sheet, i+2, err)
		}
		for j, c := range row {
			if l := utf8.RuneCountInString(fmt.Sprint(c)); j < len(widths) && l > widths[j] {
				widths[j] = l
			} else if j >= len(widths) {
				// Ragged row wider than the header; size it anyway.
				widths = append(widths, l)
			}
		}
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if err := w.f.SetColWidth(sheet, col, col, float64(width+2)); err != nil {
			return fmt.Errorf("sheet %q: failed to set column width: %w", sheet, err)
		}
	}
	return nil
}

// sanitizeSheetName replaces every non-alphanumeric rune with an underscore
// and truncates to the sheet-name limit.
func sanitizeSheetName(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		if isAlnum(r) {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return truncateRunes(string(out), maxSheetNameLen)
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
