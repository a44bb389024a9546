package optimizer

import (
	"time"

	"github.com/sells-group/claimcheck/internal/model"
)

// adjustment is a condition and the change it applies. Adjustments run in
// order on the same config, so later ones build on earlier ones.
type adjustment struct {
	name  string
	when  func(p model.DocumentProfile) bool
	apply func(t *model.Tunables)
}

var adjustments = []adjustment{
	{
		name: "large_document",
		when: func(p model.DocumentProfile) bool { return p.IsLarge() },
		apply: func(t *model.Tunables) {
			t.Timeout = t.Timeout*2 + 60*time.Second
			t.MaxPages = min(t.MaxPages, 50)
		},
	},
	{
		name: "poor_text_quality",
		when: func(p model.DocumentProfile) bool {
			return !p.Unanalyzable && (p.ScanQuality < 0.5 || p.TextDensity < 0.05)
		},
		apply: func(t *model.Tunables) {
			t.ConfidenceThreshold -= 0.1
			t.BackgroundProcessing = true
		},
	},
	{
		name: "complex_tables",
		when: func(p model.DocumentProfile) bool { return p.TableDensity >= 0.5 },
		apply: func(t *model.Tunables) {
			t.LineSensitivity += 0.2
			t.Timeout += 30 * time.Second
		},
	},
	{
		name: "high_complexity",
		when: func(p model.DocumentProfile) bool { return p.Complexity >= 0.7 },
		apply: func(t *model.Tunables) {
			t.EdgeTolerance++
		},
	},
	{
		name: "financial_precision",
		when: func(p model.DocumentProfile) bool { return p.DocType == model.DocTypeFinancial },
		apply: func(t *model.Tunables) {
			t.ConfidenceThreshold += 0.05
		},
	},
}

func applyAdjustments(p model.DocumentProfile, cfg *model.ExtractionConfig) {
	for _, a := range adjustments {
		if !a.when(p) {
			continue
		}
		a.apply(&cfg.Tunables)
		cfg.AppliedRules = append(cfg.AppliedRules, a.name)
	}
}

// Bounds for every tunable.
const (
	minEdgeTolerance   = 1.0
	maxEdgeTolerance   = 10.0
	minLineSensitivity = 0.05
	maxLineSensitivity = 1.0
	minThreshold       = 0.1
	maxThreshold       = 0.99
	minTimeout         = 5 * time.Second
	maxTimeout         = 600 * time.Second
	minPages           = 1
	maxPages           = 1000
)

// Clamp forces every tunable into its bounds.
func Clamp(t model.Tunables) model.Tunables {
	t.EdgeTolerance = clampFloat(t.EdgeTolerance, minEdgeTolerance, maxEdgeTolerance)
	t.LineSensitivity = clampFloat(t.LineSensitivity, minLineSensitivity, maxLineSensitivity)
	t.ConfidenceThreshold = clampFloat(t.ConfidenceThreshold, minThreshold, maxThreshold)
	t.Timeout = max(minTimeout, min(maxTimeout, t.Timeout))
	t.MaxPages = max(minPages, min(maxPages, t.MaxPages))
	return t
}

func clampFloat(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	return max(lo, min(hi, v))
}
