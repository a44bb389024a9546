package dialog

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/sells-group/claimcheck/internal/model"
)

// Remediation transforms a concept list. The implementations in this file
// are the complete set; Apply never mutates its input.
type Remediation interface {
	Kind() string
	Apply(concepts []model.NormativeConcept) []model.NormativeConcept
	rank() int
}

// CorrectAmount sets one concept's amount to the catalog tariff.
type CorrectAmount struct {
	Index  int
	Amount decimal.Decimal
}

func (CorrectAmount) Kind() string { return "correct_amount" }
func (CorrectAmount) rank() int    { return 1 }

func (r CorrectAmount) Apply(concepts []model.NormativeConcept) []model.NormativeConcept {
	out := slices.Clone(concepts)
	if r.Index >= 0 && r.Index < len(out) {
		out[r.Index].Amount = r.Amount
	}
	return out
}

// SpreadAcrossDays moves concepts to other days. Assignment maps a concept
// index to its new day.
type SpreadAcrossDays struct {
	Day        int
	Assignment map[int]int
}

func (SpreadAcrossDays) Kind() string { return "spread_days" }
func (SpreadAcrossDays) rank() int    { return 2 }

func (r SpreadAcrossDays) Apply(concepts []model.NormativeConcept) []model.NormativeConcept {
	out := slices.Clone(concepts)
	for i, day := range r.Assignment {
		if i >= 0 && i < len(out) {
			out[i].Day = day
		}
	}
	return out
}

// SubstituteUmbrella replaces the concepts an umbrella numeral subsumes
// with one umbrella concept at the position of the first replaced one.
type SubstituteUmbrella struct {
	Numeral  string
	Tariff   decimal.Decimal
	Day      int
	Replaces []int
}

func (SubstituteUmbrella) Kind() string { return "substitute_umbrella" }
func (SubstituteUmbrella) rank() int    { return 3 }

func (r SubstituteUmbrella) Apply(concepts []model.NormativeConcept) []model.NormativeConcept {
	out := make([]model.NormativeConcept, 0, len(concepts))
	inserted := false
	for i, c := range concepts {
		if !slices.Contains(r.Replaces, i) {
			out = append(out, c)
			continue
		}
		if inserted {
			continue
		}
		out = append(out, model.NormativeConcept{
			Numeral:  r.Numeral,
			Amount:   r.Tariff,
			Location: c.Location,
			Day:      r.Day,
		})
		inserted = true
	}
	return out
}

// DropConcepts removes concepts by index.
type DropConcepts struct {
	Indexes []int
}

func (DropConcepts) Kind() string { return "drop_concepts" }
func (DropConcepts) rank() int    { return 4 }

func (r DropConcepts) Apply(concepts []model.NormativeConcept) []model.NormativeConcept {
	out := make([]model.NormativeConcept, 0, len(concepts))
	for i, c := range concepts {
		if !slices.Contains(r.Indexes, i) {
			out = append(out, c)
		}
	}
	return out
}

func describe(r Remediation, concepts []model.NormativeConcept) string {
	switch r := r.(type) {
	case CorrectAmount:
		return fmt.Sprintf("correct concept %d (%s) to the catalog tariff %s",
			r.Index, concepts[r.Index].Numeral, r.Amount.StringFixed(2))
	case SpreadAcrossDays:
		return fmt.Sprintf("move %d concepts from day %d to later days", len(r.Assignment), r.Day)
	case SubstituteUmbrella:
		return fmt.Sprintf("claim umbrella numeral %s (%s) instead of %d concepts on day %d",
			r.Numeral, r.Tariff.StringFixed(2), len(r.Replaces), r.Day)
	case DropConcepts:
		if len(r.Indexes) == 1 {
			return fmt.Sprintf("drop concept %d (%s)", r.Indexes[0], concepts[r.Indexes[0]].Numeral)
		}
		return fmt.Sprintf("drop concepts %v", r.Indexes)
	default:
		return r.Kind()
	}
}
