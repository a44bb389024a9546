package optimizer

import (
	"time"

	"github.com/sells-group/claimcheck/internal/backend"
	"github.com/sells-group/claimcheck/internal/model"
)

// Thresholds used by archetype selection.
const (
	scannedThreshold     = 0.8
	scannedGoodThreshold = 0.4
	complexTableDensity  = 0.5
	complexScore         = 0.6
)

type archetypeDefaults struct {
	backends []string
	tunables model.Tunables
}

var archetypes = map[model.Archetype]archetypeDefaults{
	model.ArchetypeDigitalSimple: {
		backends: []string{backend.NativeTables, backend.LayoutGrid, backend.PdfToText},
		tunables: model.Tunables{EdgeTolerance: 3, LineSensitivity: 0.5, ConfidenceThreshold: 0.8, Timeout: 30 * time.Second, MaxPages: 200},
	},
	model.ArchetypeDigitalComplex: {
		backends: []string{backend.LayoutGrid, backend.NativeTables, backend.LLMTables, backend.PdfToText},
		tunables: model.Tunables{EdgeTolerance: 2, LineSensitivity: 0.6, ConfidenceThreshold: 0.75, Timeout: 60 * time.Second, MaxPages: 200},
	},
	model.ArchetypeScannedGood: {
		backends: []string{backend.MistralOCR, backend.PdfToText, backend.LayoutGrid},
		tunables: model.Tunables{EdgeTolerance: 3, LineSensitivity: 0.5, ConfidenceThreshold: 0.7, Timeout: 90 * time.Second, MaxPages: 100},
	},
	model.ArchetypeScannedPoor: {
		backends: []string{backend.MistralOCR, backend.LLMTables, backend.PdfToText, backend.LayoutGrid},
		tunables: model.Tunables{EdgeTolerance: 4, LineSensitivity: 0.4, ConfidenceThreshold: 0.6, Timeout: 120 * time.Second, MaxPages: 50, BackgroundProcessing: true},
	},
	model.ArchetypeLarge: {
		backends: []string{backend.NativeTables, backend.LayoutGrid, backend.PdfToText},
		tunables: model.Tunables{EdgeTolerance: 3, LineSensitivity: 0.5, ConfidenceThreshold: 0.75, Timeout: 120 * time.Second, MaxPages: 100},
	},
	model.ArchetypeFinancial: {
		backends: []string{backend.NativeTables, backend.LayoutGrid, backend.LLMTables, backend.MistralOCR},
		tunables: model.Tunables{EdgeTolerance: 2, LineSensitivity: 0.7, ConfidenceThreshold: 0.85, Timeout: 60 * time.Second, MaxPages: 200},
	},
}

// fullChain is used when nothing is known about the document.
var fullChain = []string{backend.MistralOCR, backend.LLMTables, backend.PdfToText, backend.LayoutGrid, backend.NativeTables}

// Classify picks the base archetype. Rules are checked in order and the
// first match wins.
func Classify(p model.DocumentProfile) model.Archetype {
	switch {
	case p.Unanalyzable:
		return model.ArchetypeScannedPoor
	case p.DocType == model.DocTypeFinancial:
		return model.ArchetypeFinancial
	case p.IsLarge():
		return model.ArchetypeLarge
	case p.ScanQuality < scannedThreshold && p.ScanQuality >= scannedGoodThreshold:
		return model.ArchetypeScannedGood
	case p.ScanQuality < scannedGoodThreshold:
		return model.ArchetypeScannedPoor
	case p.TableDensity >= complexTableDensity || p.Complexity >= complexScore:
		return model.ArchetypeDigitalComplex
	default:
		return model.ArchetypeDigitalSimple
	}
}

func baseConfig(p model.DocumentProfile) model.ExtractionConfig {
	a := Classify(p)
	d := archetypes[a]
	chain := d.backends
	if p.Unanalyzable {
		chain = fullChain
	}
	return model.ExtractionConfig{
		Archetype: a,
		Backends:  append([]string(nil), chain...),
		Tunables:  d.tunables,
	}
}
