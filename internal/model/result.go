package model

import "time"

// AttemptStatus is the outcome of one backend attempt.
type AttemptStatus string

const (
	AttemptOK      AttemptStatus = "ok"
	AttemptEmpty   AttemptStatus = "empty"
	AttemptFailed  AttemptStatus = "failed"
	AttemptTimeout AttemptStatus = "timeout"
	AttemptSkipped AttemptStatus = "skipped"
)

// BackendAttempt is the diagnostic record for one backend in the chain.
type BackendAttempt struct {
	Backend    string        `json:"backend"`
	Status     AttemptStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	Confidence float64       `json:"confidence"`
	Tables     int           `json:"tables"`
	Duration   time.Duration `json:"duration"`
}

// ExtractionResult is the consolidated output of the orchestrator.
type ExtractionResult struct {
	DocumentID       string            `json:"document_id"`
	Backend          string            `json:"backend,omitempty"`
	Tables           []Table           `json:"tables"`
	Entities         []ExtractedEntity `json:"entities"`
	TableConfidence  float64           `json:"table_confidence"`
	EntityConfidence float64           `json:"entity_confidence"`
	CrossValidated   float64           `json:"cross_validated_fraction"`
	Confidence       float64           `json:"confidence"`
	TextEntities     int               `json:"text_entities"`
	Attempts         []BackendAttempt  `json:"attempts"`
	Partial          bool              `json:"partial"`
	Duration         time.Duration     `json:"duration"`
}
