package model

// DocType is the coarse document classification produced by the profiler.
type DocType string

const (
	DocTypeFinancial DocType = "financial"
	DocTypeLegal     DocType = "legal"
	DocTypeForm      DocType = "form"
	DocTypeGeneric   DocType = "generic"
	DocTypeUnknown   DocType = "unknown"
)

// DocumentProfile summarises measurable characteristics of a document.
// It is computed once per run and never mutated afterwards.
type DocumentProfile struct {
	SizeBytes    int64   `json:"size_bytes"`
	PageCount    int     `json:"page_count"`
	ScanQuality  float64 `json:"scan_quality"`
	TableDensity float64 `json:"table_density"`
	TextDensity  float64 `json:"text_density"`
	DocType      DocType `json:"doc_type"`
	Complexity   float64 `json:"complexity"`
	Unanalyzable bool    `json:"unanalyzable"`
}

// IsScanned reports whether a meaningful share of pages lack a text layer.
func (p DocumentProfile) IsScanned() bool {
	return p.ScanQuality < 0.8
}

// HasTables reports whether tabular indicators were found.
func (p DocumentProfile) HasTables() bool {
	return p.TableDensity > 0
}

// IsLarge reports whether the document is large by size or page count.
func (p DocumentProfile) IsLarge() bool {
	return p.SizeBytes > 10<<20 || p.PageCount > 50
}
