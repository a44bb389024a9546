package model

import "time"

// Outcome holds the metrics recorded for one run.
type Outcome struct {
	SuccessRate    float64       `json:"success_rate"`
	Confidence     float64       `json:"confidence"`
	Entities       int           `json:"entities"`
	CrossValidated int           `json:"cross_validated"`
	Backend        string        `json:"backend,omitempty"`
	Partial        bool          `json:"partial"`
	Duration       time.Duration `json:"duration"`
}

// PerformanceRecord is one entry in the bounded run history.
type PerformanceRecord struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Profile    DocumentProfile  `json:"profile"`
	Config     ExtractionConfig `json:"config"`
	Outcome    Outcome          `json:"outcome"`
	RecordedAt time.Time        `json:"recorded_at"`
}
