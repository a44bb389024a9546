package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Archetype is the base strategy chosen for a document.
type Archetype string

const (
	ArchetypeDigitalSimple  Archetype = "digital_simple"
	ArchetypeDigitalComplex Archetype = "digital_complex"
	ArchetypeScannedGood    Archetype = "scanned_good"
	ArchetypeScannedPoor    Archetype = "scanned_poor"
	ArchetypeLarge          Archetype = "large_document"
	ArchetypeFinancial      Archetype = "financial_document"
)

// Tunables are the numeric and boolean knobs a backend reads.
type Tunables struct {
	EdgeTolerance        float64       `json:"edge_tolerance"`
	LineSensitivity      float64       `json:"line_sensitivity"`
	ConfidenceThreshold  float64       `json:"confidence_threshold"`
	Timeout              time.Duration `json:"timeout"`
	MaxPages             int           `json:"max_pages"`
	BackgroundProcessing bool          `json:"background_processing"`
}

// ExtractionConfig is the per-run strategy: an ordered backend chain plus
// tunables. Backends is never empty once the optimizer returns it.
type ExtractionConfig struct {
	Archetype    Archetype           `json:"archetype"`
	Backends     []string            `json:"backends"`
	Tunables     Tunables            `json:"tunables"`
	PerBackend   map[string]Tunables `json:"per_backend,omitempty"`
	AppliedRules []string            `json:"applied_rules,omitempty"`
	HistoryMatch int                 `json:"history_matches"`
}

// For returns the tunables for a backend, falling back to the shared set.
func (c ExtractionConfig) For(backend string) Tunables {
	if t, ok := c.PerBackend[backend]; ok {
		return t
	}
	return c.Tunables
}

// Validate checks structural invariants.
func (c ExtractionConfig) Validate() error {
	if len(c.Backends) == 0 {
		return eris.New("model: extraction config has no backends")
	}
	return nil
}
