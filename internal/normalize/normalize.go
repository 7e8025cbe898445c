// Package normalize repairs untrusted extraction payloads into the canonical
// document schema. The upstream model is not contractually bound to return
// well-formed JSON, so Normalize is total: any input produces a usable
// CanonicalDocument, and malformed pieces are dropped with a note instead of
// failing the task.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Lllllllleong/pdfreportflow/internal/models"
)

// Normalize converts a raw extraction payload into a CanonicalDocument.
// The returned notes describe every repair made; callers append them to the
// task log. Normalize never returns an error.
func Normalize(raw any) (models.CanonicalDocument, []string) {
	doc := models.NewCanonicalDocument()
	var notes []string

	mapping, ok := raw.(map[string]any)
	if !ok {
		// Free-text (or otherwise non-mapping) responses still carry signal:
		// mine line-oriented "key: value" pairs out of the text.
		notes = append(notes, fmt.Sprintf("payload is not a mapping (%T); falling back to line-oriented key/value parsing", raw))
		text, isText := raw.(string)
		if !isText {
			text = fmt.Sprint(raw)
		}
		doc.KeyValuePairs = parseKeyValueLines(text)
		if len(doc.KeyValuePairs) > 0 {
			notes = append(notes, fmt.Sprintf("derived %d key-value pairs from free text", len(doc.KeyValuePairs)))
		}
		return doc, notes
	}

	doc.Metadata, notes = normalizeMetadata(mapping["metadata"], notes)
	doc.KeyValuePairs, notes = normalizeStringMap(mapping["key_value_pairs"], "key_value_pairs", notes)
	doc.TextSections, notes = normalizeStringMap(mapping["text_sections"], "text_sections", notes)
	doc.Tables, notes = normalizeTables(mapping["tables"], notes)
	return doc, notes
}

func normalizeMetadata(v any, notes []string) (map[string]any, []string) {
	out := map[string]any{}
	switch m := v.(type) {
	case nil:
		// Missing field gets the empty default; not worth a note.
	case map[string]any:
		for k, val := range m {
			out[k] = val
		}
	default:
		notes = append(notes, fmt.Sprintf("metadata is not a mapping (%T); discarded", v))
	}
	return out, notes
}

func normalizeStringMap(v any, field string, notes []string) (map[string]string, []string) {
	out := map[string]string{}
	switch m := v.(type) {
	case nil:
	case map[string]any:
		for k, val := range m {
			out[k] = cellString(val)
		}
	default:
		notes = append(notes, fmt.Sprintf("%s is not a mapping (%T); discarded", field, v))
	}
	return out, notes
}

func normalizeTables(v any, notes []string) ([]models.ExtractedTable, []string) {
	tables := []models.ExtractedTable{}
	var entries []any
	switch t := v.(type) {
	case nil:
		notes = append(notes, "tables field missing; defaulted to empty list")
		return tables, notes
	case []any:
		entries = t
	default:
		notes = append(notes, fmt.Sprintf("tables is not a list (%T); replaced with empty list", v))
		return tables, notes
	}

	for i, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("table %d is not a mapping; dropped", i+1))
			continue
		}
		rawHeaders, ok := m["headers"].([]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("table %d has no headers list; dropped", i+1))
			continue
		}
		rawRows, ok := m["rows"].([]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("table %d has no rows list; dropped", i+1))
			continue
		}

		table := models.ExtractedTable{
			Title:   cellString(m["table_title"]),
			Headers: make([]string, 0, len(rawHeaders)),
			Rows:    [][]string{},
		}
		for _, h := range rawHeaders {
			table.Headers = append(table.Headers, cellString(h))
		}
		for j, rawRow := range rawRows {
			cells, ok := rawRow.([]any)
			if !ok {
				notes = append(notes, fmt.Sprintf("table %d row %d is not a list; dropped", i+1, j+1))
				continue
			}
			row := make([]string, 0, len(cells))
			for _, c := range cells {
				row = append(row, cellString(c))
			}
			table.Rows = append(table.Rows, row)
		}
		if len(table.Rows) == 0 {
			notes = append(notes, fmt.Sprintf("table %d has no usable rows; dropped", i+1))
			continue
		}
		tables = append(tables, table)
	}
	return tables, notes
}

// parseKeyValueLines extracts "key: value" or "key<TAB>value" pairs, one per
// line, keeping only pairs where both sides are non-empty after trimming.
func parseKeyValueLines(text string) map[string]string {
	pairs := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		var key, value string
		switch {
		case strings.Contains(line, ":"):
			parts := strings.SplitN(line, ":", 2)
			key, value = parts[0], parts[1]
		case strings.Contains(line, "\t"):
			parts := strings.SplitN(line, "\t", 2)
			key, value = parts[0], parts[1]
		default:
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			pairs[key] = value
		}
	}
	return pairs
}

// cellString renders a decoded JSON scalar as spreadsheet-ready text.
// JSON numbers arrive as float64; integral values must not grow a decimal
// point on the way through.
func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}
