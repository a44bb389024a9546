package rules

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sells-group/claimcheck/internal/model"
)

// Validate checks concepts against the catalog for a target location. It
// is a pure function of its arguments.
//
// Each concept is checked on its own first: the numeral must exist, apply
// at the concept's location and claim exactly the catalog tariff. Concepts
// that pass are summed per day, and any day whose total exceeds the
// location's daily limit invalidates the set.
func Validate(cat *Catalog, concepts []model.NormativeConcept, location string) model.ValidationResult {
	target := normalizeLocation(location)
	res := model.ValidationResult{
		Valid:       true,
		Location:    target,
		Total:       decimal.Zero,
		DayTotals:   map[int]decimal.Decimal{},
		GroupTotals: map[string]decimal.Decimal{},
		Violations:  []model.Violation{},
		Warnings:    []string{},
		Suggestions: []model.Suggestion{},
		Accepted:    []model.NormativeConcept{},
	}

	targetLoc, targetKnown := cat.Location(target)
	if !targetKnown {
		res.Violations = append(res.Violations, model.Violation{
			Kind:     model.ViolationUnknownLocation,
			Index:    -1,
			Location: target,
			Message:  fmt.Sprintf("location %q is not in the catalog", target),
		})
	} else if targetLoc.HasLimit {
		res.DailyLimit = targetLoc.DailyLimit
	}

	// accepted indexes per day, in input order
	byDay := map[int][]int{}

	for i, c := range concepts {
		id := NormalizeID(c.Numeral)
		loc := target
		if c.Location != "" {
			loc = normalizeLocation(c.Location)
		}

		def, ok := cat.Numeral(id)
		if !ok {
			res.Violations = append(res.Violations, model.Violation{
				Kind:     model.ViolationUndefinedNumeral,
				Index:    i,
				Numeral:  id,
				Location: loc,
				Day:      c.Day,
				Claimed:  c.Amount,
				Message:  fmt.Sprintf("numeral %s is not defined in the catalog", id),
			})
			continue
		}

		if loc != target {
			if _, known := cat.Location(loc); !known {
				res.Violations = append(res.Violations, model.Violation{
					Kind:     model.ViolationUnknownLocation,
					Index:    i,
					Numeral:  id,
					Location: loc,
					Day:      c.Day,
					Claimed:  c.Amount,
					Message:  fmt.Sprintf("concept %d: location %q is not in the catalog", i, loc),
				})
				continue
			}
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("concept %d (%s) claims location %q while the claim is for %q", i, id, loc, target))
		} else if !targetKnown {
			continue
		}

		rule, ok := def.At(loc)
		if !ok || !rule.Applicable {
			res.Violations = append(res.Violations, model.Violation{
				Kind:     model.ViolationNotApplicable,
				Index:    i,
				Numeral:  id,
				Location: loc,
				Day:      c.Day,
				Claimed:  c.Amount,
				Message:  fmt.Sprintf("numeral %s does not apply at %s", id, loc),
			})
			continue
		}

		if !c.Amount.Equal(rule.Tariff) {
			res.Violations = append(res.Violations, model.Violation{
				Kind:     model.ViolationAmountMismatch,
				Index:    i,
				Numeral:  id,
				Location: loc,
				Day:      c.Day,
				Claimed:  c.Amount,
				Expected: rule.Tariff,
				Message: fmt.Sprintf("numeral %s at %s: claimed %s, tariff is %s",
					id, loc, c.Amount.StringFixed(2), rule.Tariff.StringFixed(2)),
			})
			continue
		}

		res.Accepted = append(res.Accepted, c)
		res.Total = res.Total.Add(c.Amount)
		res.DayTotals[c.Day] = res.DayTotals[c.Day].Add(c.Amount)
		if def.Group != "" {
			res.GroupTotals[def.Group] = res.GroupTotals[def.Group].Add(c.Amount)
		}
		byDay[c.Day] = append(byDay[c.Day], i)
	}

	res.Warnings = append(res.Warnings, exclusionWarnings(cat, concepts)...)

	if targetKnown && targetLoc.HasLimit {
		for _, day := range sortedDays(byDay) {
			total := res.DayTotals[day]
			if !total.GreaterThan(targetLoc.DailyLimit) {
				continue
			}
			res.Violations = append(res.Violations, model.Violation{
				Kind:     model.ViolationDailyLimitExceeded,
				Index:    -1,
				Location: target,
				Day:      day,
				Claimed:  total,
				Expected: targetLoc.DailyLimit,
				Message: fmt.Sprintf("day %d total %s exceeds the %s daily limit of %s",
					day, total.StringFixed(2), target, targetLoc.DailyLimit.StringFixed(2)),
			})
			res.Suggestions = append(res.Suggestions,
				limitSuggestions(cat, concepts, byDay[day], day, total, target, targetLoc.DailyLimit)...)
		}
	}

	res.Valid = len(res.Violations) == 0
	return res
}

// exclusionWarnings flags umbrella numerals claimed on the same day as
// numerals they subsume, and per-day numerals claimed twice in one day.
func exclusionWarnings(cat *Catalog, concepts []model.NormativeConcept) []string {
	type dayNumeral struct {
		day int
		id  string
	}
	seen := map[dayNumeral]int{}
	days := map[int][]string{}
	for _, c := range concepts {
		id := NormalizeID(c.Numeral)
		if _, ok := cat.Numeral(id); !ok {
			continue
		}
		k := dayNumeral{c.Day, id}
		if seen[k] == 0 {
			days[c.Day] = append(days[c.Day], id)
		}
		seen[k]++
	}

	var out []string
	for _, day := range sortedDays(days) {
		for _, id := range days[day] {
			def, _ := cat.Numeral(id)
			if def.Unit == UnitPerDay && seen[dayNumeral{day, id}] > 1 {
				out = append(out, fmt.Sprintf("day %d: per-day numeral %s claimed %d times", day, id, seen[dayNumeral{day, id}]))
			}
			if !def.Umbrella {
				continue
			}
			for _, other := range days[day] {
				if def.Covers(other) {
					out = append(out, fmt.Sprintf("day %d: umbrella numeral %s claimed together with %s, which it subsumes", day, id, other))
				}
			}
		}
	}
	return out
}

// limitSuggestions proposes ways to bring one day under the limit: a
// proportional reduction, spreading over more days, and an umbrella
// substitution when one fits.
func limitSuggestions(cat *Catalog, concepts []model.NormativeConcept, idx []int, day int, total decimal.Decimal, location string, limit decimal.Decimal) []model.Suggestion {
	excess := total.Sub(limit)
	out := []model.Suggestion{{
		Kind:        model.SuggestReduce,
		Day:         day,
		Excess:      excess,
		Adjustments: proportionalCuts(concepts, idx, total, excess),
		Message:     fmt.Sprintf("reduce day %d by %s, proportionally across %d concepts", day, excess.StringFixed(2), len(idx)),
	}}

	if days, ok := SpreadDays(concepts, idx, limit); ok && days > 1 {
		out = append(out, model.Suggestion{
			Kind:    model.SuggestSpreadDays,
			Day:     day,
			Excess:  excess,
			Days:    days,
			Message: fmt.Sprintf("spread day %d across %d days", day, days),
		})
	}

	if s, ok := umbrellaSubstitution(cat, concepts, idx, day, total, location, limit); ok {
		s.Excess = excess
		out = append(out, s)
	}
	return out
}

// proportionalCuts splits excess across concepts by their share of total,
// rounded to cents, with the rounding remainder on the last concept.
func proportionalCuts(concepts []model.NormativeConcept, idx []int, total, excess decimal.Decimal) []model.Adjustment {
	if len(idx) == 0 || !total.IsPositive() {
		return nil
	}
	out := make([]model.Adjustment, 0, len(idx))
	remaining := excess
	for n, i := range idx {
		cut := remaining
		if n < len(idx)-1 {
			cut = excess.Mul(concepts[i].Amount).Div(total).Round(2)
			remaining = remaining.Sub(cut)
		}
		out = append(out, model.Adjustment{Index: i, Reduce: cut})
	}
	return out
}

// SpreadDays returns how many days first-fit-decreasing packing needs to
// keep every day under limit. ok is false when a single concept exceeds
// the limit on its own.
func SpreadDays(concepts []model.NormativeConcept, idx []int, limit decimal.Decimal) (int, bool) {
	bins := PackDays(concepts, idx, limit)
	if bins == nil {
		return 0, false
	}
	return len(bins), true
}

// PackDays assigns the concepts at idx to day bins with first-fit
// decreasing. It returns nil when some concept alone exceeds limit.
func PackDays(concepts []model.NormativeConcept, idx []int, limit decimal.Decimal) [][]int {
	order := append([]int(nil), idx...)
	sort.SliceStable(order, func(a, b int) bool {
		return concepts[order[a]].Amount.GreaterThan(concepts[order[b]].Amount)
	})

	var bins [][]int
	var loads []decimal.Decimal
	for _, i := range order {
		amt := concepts[i].Amount
		if amt.GreaterThan(limit) {
			return nil
		}
		placed := false
		for b := range bins {
			if !loads[b].Add(amt).GreaterThan(limit) {
				bins[b] = append(bins[b], i)
				loads[b] = loads[b].Add(amt)
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, []int{i})
			loads = append(loads, amt)
		}
	}
	return bins
}

// umbrellaSubstitution finds the applicable umbrella numeral that, replacing
// the concepts it subsumes, brings the day total lowest while staying
// within the limit. Ties go to the lowest numeral id.
func umbrellaSubstitution(cat *Catalog, concepts []model.NormativeConcept, idx []int, day int, total decimal.Decimal, location string, limit decimal.Decimal) (model.Suggestion, bool) {
	var (
		best      model.Suggestion
		bestTotal decimal.Decimal
		found     bool
	)
	for _, id := range cat.IDs() {
		def, _ := cat.Numeral(id)
		if !def.Umbrella {
			continue
		}
		rule, ok := def.At(location)
		if !ok || !rule.Applicable {
			continue
		}
		var replaced []int
		covered := decimal.Zero
		for _, i := range idx {
			if def.Covers(NormalizeID(concepts[i].Numeral)) {
				replaced = append(replaced, i)
				covered = covered.Add(concepts[i].Amount)
			}
		}
		if len(replaced) == 0 || !rule.Tariff.LessThan(covered) {
			continue
		}
		newTotal := total.Sub(covered).Add(rule.Tariff)
		if newTotal.GreaterThan(limit) {
			continue
		}
		if found && !newTotal.LessThan(bestTotal) {
			continue
		}
		found, bestTotal = true, newTotal
		best = model.Suggestion{
			Kind:     model.SuggestUmbrella,
			Day:      day,
			Numeral:  id,
			Tariff:   rule.Tariff,
			Replaces: replaced,
			Message: fmt.Sprintf("claim umbrella numeral %s (%s) instead of %d subsumed concepts on day %d",
				id, rule.Tariff.StringFixed(2), len(replaced), day),
		}
	}
	return best, found
}

func sortedDays[T any](m map[int]T) []int {
	out := make([]int, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
