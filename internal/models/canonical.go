package models

// CanonicalDocument is the normalized, schema-stable representation of a
// document's extracted content. It is the contract between the normalizer,
// the reconciliation policy, and the report renderer. All four fields are
// always non-nil; producers must call NewCanonicalDocument (or guarantee the
// same shape) before handing a document downstream.
type CanonicalDocument struct {
	Metadata      map[string]any    `json:"metadata"`
	KeyValuePairs map[string]string `json:"key_value_pairs"`
	TextSections  map[string]string `json:"text_sections"`
	Tables        []ExtractedTable  `json:"tables"`
}

// ExtractedTable is one table pulled out of the document. Row lengths are
// advisory-matched to Headers; the renderer tolerates ragged rows.
type ExtractedTable struct {
	Title   string     `json:"table_title,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// NewCanonicalDocument returns an empty document with every field
// initialized, so downstream consumers never see a nil map or nil Tables.
func NewCanonicalDocument() CanonicalDocument {
	return CanonicalDocument{
		Metadata:      map[string]any{},
		KeyValuePairs: map[string]string{},
		TextSections:  map[string]string{},
		Tables:        []ExtractedTable{},
	}
}
