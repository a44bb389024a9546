package pipeline

import (
	"sort"

	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/model"
)

// DefaultDeriveWindow is the distance in bytes within which an amount
// must follow a numeral to be paired with it.
const DefaultDeriveWindow = 80

// DeriveConcepts pairs numerals with the amounts that follow them in the
// document text, using DefaultDeriveWindow.
func DeriveConcepts(entities []model.ExtractedEntity, location string) []model.NormativeConcept {
	return DeriveConceptsWithin(entities, location, DefaultDeriveWindow)
}

// DeriveConceptsWithin pairs each numeral with the nearest amount that
// starts after it, within window bytes and before the next numeral. Each
// amount is used at most once. Only entities found in the plain-text pass
// are considered because only their positions refer to the document text.
func DeriveConceptsWithin(entities []model.ExtractedEntity, location string, window int) []model.NormativeConcept {
	var numerals, amounts []model.ExtractedEntity
	for _, e := range entities {
		if e.Source != extract.SourceText {
			continue
		}
		switch e.Kind {
		case model.EntityNumeral:
			numerals = append(numerals, e)
		case model.EntityAmount:
			amounts = append(amounts, e)
		}
	}
	byPosition := func(s []model.ExtractedEntity) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Position < s[j].Position })
	}
	byPosition(numerals)
	byPosition(amounts)

	used := make([]bool, len(amounts))
	var out []model.NormativeConcept
	for i, n := range numerals {
		end := n.Position + len(n.Raw)
		limit := end + window
		if i+1 < len(numerals) {
			limit = min(limit, numerals[i+1].Position)
		}
		for j, a := range amounts {
			if used[j] || a.Position < end {
				continue
			}
			if a.Position > limit {
				break
			}
			used[j] = true
			out = append(out, model.NormativeConcept{
				Numeral:  n.Value,
				Amount:   a.Amount,
				Location: location,
			})
			break
		}
	}
	return out
}
