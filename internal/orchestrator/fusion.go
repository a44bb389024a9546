package orchestrator

import (
	"sort"
	"strings"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

// Weights combine table confidence, entity confidence and the
// cross-validated fraction into one global confidence. They are
// calibration parameters, not derived constants.
type Weights struct {
	Table  float64
	Entity float64
	Cross  float64
}

// DefaultWeights returns 0.4 table, 0.4 entity, 0.2 cross-validation.
func DefaultWeights() Weights {
	return Weights{Table: 0.4, Entity: 0.4, Cross: 0.2}
}

// WeightsFromConfig reads the fusion weights, falling back to the defaults
// when none are set.
func WeightsFromConfig(cfg config.OrchestratorConfig) Weights {
	w := Weights{Table: cfg.TableWeight, Entity: cfg.EntityWeight, Cross: cfg.CrossWeight}
	if w.Table < 0 || w.Entity < 0 || w.Cross < 0 || w.Table+w.Entity+w.Cross <= 0 {
		return DefaultWeights()
	}
	return w
}

// Fuse returns the weighted mean of the three signals, in [0, 1].
func (w Weights) Fuse(table, entity, cross float64) float64 {
	sum := w.Table + w.Entity + w.Cross
	if sum <= 0 {
		return 0
	}
	v := (w.Table*table + w.Entity*entity + w.Cross*cross) / sum
	return max(0, min(1, v))
}

// CrossValidate merges entities from a structured source with entities
// from the plain-text pass. Every text entity whose key also appears in
// the structured set is marked cross-validated and gets the higher of the
// two confidences plus boost, capped at 1. Structured entities with no
// text counterpart are appended unchanged. It returns the merged list,
// sorted by confidence, and the cross-validated fraction.
func CrossValidate(structured, text []model.ExtractedEntity, boost float64) ([]model.ExtractedEntity, float64) {
	bestStructured := map[string]float64{}
	for _, e := range structured {
		k := e.Key()
		if c, ok := bestStructured[k]; !ok || e.Confidence > c {
			bestStructured[k] = e.Confidence
		}
	}

	out := make([]model.ExtractedEntity, 0, len(structured)+len(text))
	inText := map[string]bool{}
	validated := 0
	for _, e := range text {
		k := e.Key()
		inText[k] = true
		if sc, ok := bestStructured[k]; ok {
			e.Confidence = min(1, max(e.Confidence, sc)+boost)
			e.CrossValidated = true
			validated++
		}
		out = append(out, e)
	}
	for _, e := range structured {
		if !inText[e.Key()] {
			e.CrossValidated = false
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) == 0 {
		return nil, 0
	}
	return out, float64(validated) / float64(len(out))
}

// TablesText renders tables as layout text for entity extraction: cells
// separated by wide gaps, rows by newlines, tables by blank lines.
func TablesText(tables []model.Table) string {
	var sb strings.Builder
	for i, t := range tables {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		for j, row := range t.Rows {
			if j > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(strings.Join(row, "    "))
		}
	}
	return sb.String()
}

func meanConfidence(ents []model.ExtractedEntity) float64 {
	if len(ents) == 0 {
		return 0
	}
	var sum float64
	for _, e := range ents {
		sum += e.Confidence
	}
	return sum / float64(len(ents))
}
