package backend

import (
	"strings"
	"unicode"

	"github.com/sells-group/claimcheck/internal/model"
)

// nonNumericPenalty scales tables that carry no numeric cell at all.
const nonNumericPenalty = 0.5

// TableConfidence scores extracted tables in [0, 1]. Each table scores
// fill ratio × column consistency × numeric presence; the result is the
// mean over tables. No tables scores 0.
func TableConfidence(tables []model.Table) float64 {
	if len(tables) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tables {
		sum += tableScore(t)
	}
	return sum / float64(len(tables))
}

func tableScore(t model.Table) float64 {
	cols := t.Columns()
	if len(t.Rows) == 0 || cols == 0 {
		return 0
	}

	counts := map[int]int{}
	filled, numeric := 0, false
	for _, row := range t.Rows {
		counts[len(row)]++
		for _, c := range row {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			filled++
			if !numeric && hasDigit(c) {
				numeric = true
			}
		}
	}
	modal := 0
	for _, n := range counts {
		modal = max(modal, n)
	}

	fill := float64(filled) / float64(len(t.Rows)*cols)
	consistency := float64(modal) / float64(len(t.Rows))
	score := fill * consistency
	if !numeric {
		score *= nonNumericPenalty
	}
	return score
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
