// Package optimizer chooses an extraction strategy for a document from its
// profile and the history of earlier runs.
package optimizer

import (
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/backend"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

// Similarity weights.
const (
	numericWeight     = 0.6
	booleanWeight     = 0.2
	categoricalWeight = 0.2
)

// remoteMinTimeout is the per-backend timeout floor for network backends.
const remoteMinTimeout = 60 * time.Second

// Optimizer maps profiles to extraction configs. It holds no mutable
// state; identical inputs give identical outputs.
type Optimizer struct {
	similarityThreshold float64
	successThreshold    float64
}

// New creates an Optimizer, using defaults for zero thresholds.
func New(cfg config.OptimizerConfig) *Optimizer {
	o := &Optimizer{similarityThreshold: 0.8, successThreshold: 0.7}
	if cfg.SimilarityThreshold > 0 {
		o.similarityThreshold = cfg.SimilarityThreshold
	}
	if cfg.SuccessThreshold > 0 {
		o.successThreshold = cfg.SuccessThreshold
	}
	return o
}

// Optimize returns the config for a profile: the archetype defaults, then
// the adjustment rules, then history blending, then clamping. The backend
// list is never empty.
func (o *Optimizer) Optimize(p model.DocumentProfile, history []model.PerformanceRecord) model.ExtractionConfig {
	cfg := baseConfig(p)
	applyAdjustments(p, &cfg)

	matched := o.matching(p, history)
	if len(matched) > 0 {
		blend(&cfg, matched)
	}

	cfg.Tunables = Clamp(cfg.Tunables)
	cfg.PerBackend = perBackend(cfg)
	if len(cfg.Backends) == 0 {
		cfg.Backends = append([]string(nil), fullChain...)
	}

	zap.L().Debug("optimizer: selected config",
		zap.String("archetype", string(cfg.Archetype)),
		zap.Strings("backends", cfg.Backends),
		zap.Strings("rules", cfg.AppliedRules),
		zap.Int("history_matches", cfg.HistoryMatch),
	)
	return cfg
}

func (o *Optimizer) matching(p model.DocumentProfile, history []model.PerformanceRecord) []model.PerformanceRecord {
	var out []model.PerformanceRecord
	for _, rec := range history {
		if rec.Outcome.SuccessRate < o.successThreshold {
			continue
		}
		if Similarity(p, rec.Profile) < o.similarityThreshold {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Similarity scores two profiles in [0, 1]: a weighted mix of numeric
// closeness, agreement of derived flags, and document type match.
func Similarity(a, b model.DocumentProfile) float64 {
	numeric := (ratioCloseness(float64(a.PageCount), float64(b.PageCount)) +
		ratioCloseness(float64(a.SizeBytes), float64(b.SizeBytes)) +
		unitCloseness(a.ScanQuality, b.ScanQuality) +
		unitCloseness(a.TableDensity, b.TableDensity) +
		unitCloseness(a.TextDensity, b.TextDensity) +
		unitCloseness(a.Complexity, b.Complexity)) / 6

	flags := [][2]bool{
		{a.IsScanned(), b.IsScanned()},
		{a.HasTables(), b.HasTables()},
		{a.IsLarge(), b.IsLarge()},
		{a.Unanalyzable, b.Unanalyzable},
	}
	agree := 0
	for _, f := range flags {
		if f[0] == f[1] {
			agree++
		}
	}
	boolean := float64(agree) / float64(len(flags))

	categorical := 0.0
	if a.DocType == b.DocType {
		categorical = 1
	}
	return numericWeight*numeric + booleanWeight*boolean + categoricalWeight*categorical
}

func ratioCloseness(a, b float64) float64 {
	hi := math.Max(math.Max(a, b), 1)
	return 1 - math.Abs(a-b)/hi
}

func unitCloseness(a, b float64) float64 {
	return 1 - math.Min(1, math.Abs(a-b))
}

// blend averages the current tunables with those recorded by matching
// runs, takes a majority vote on the background flag (ties keep the
// current value) and moves the backend that succeeded most often to the
// front of the chain.
func blend(cfg *model.ExtractionConfig, matched []model.PerformanceRecord) {
	n := float64(len(matched) + 1)
	cur := cfg.Tunables

	edge, line, thr := cur.EdgeTolerance, cur.LineSensitivity, cur.ConfidenceThreshold
	timeout := int64(cur.Timeout)
	pages := cur.MaxPages
	bgVotes := 0
	if cur.BackgroundProcessing {
		bgVotes++
	}
	wins := map[string]int{}

	for _, rec := range matched {
		t := rec.Config.Tunables
		edge += t.EdgeTolerance
		line += t.LineSensitivity
		thr += t.ConfidenceThreshold
		timeout += int64(t.Timeout)
		pages += t.MaxPages
		if t.BackgroundProcessing {
			bgVotes++
		}
		if rec.Outcome.Backend != "" {
			wins[rec.Outcome.Backend]++
		}
	}

	cfg.Tunables = model.Tunables{
		EdgeTolerance:        edge / n,
		LineSensitivity:      line / n,
		ConfidenceThreshold:  thr / n,
		Timeout:              time.Duration(timeout / int64(n)),
		MaxPages:             int(math.Round(float64(pages) / n)),
		BackgroundProcessing: cur.BackgroundProcessing,
	}
	switch {
	case float64(bgVotes) > n/2:
		cfg.Tunables.BackgroundProcessing = true
	case float64(bgVotes) < n/2:
		cfg.Tunables.BackgroundProcessing = false
	}

	if best := topBackend(wins, cfg.Backends); best != "" {
		cfg.Backends = promote(cfg.Backends, best)
	}
	cfg.HistoryMatch = len(matched)
	cfg.AppliedRules = append(cfg.AppliedRules, "history_blend")
}

// topBackend picks the backend with the most wins. Ties go to the one
// earlier in chain, then to the lexically smaller name.
func topBackend(wins map[string]int, chain []string) string {
	names := make([]string, 0, len(wins))
	for name := range wins {
		if backend.Known(name) {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		if wins[a] != wins[b] {
			return wins[b] - wins[a]
		}
		ia, ib := slices.Index(chain, a), slices.Index(chain, b)
		if ia < 0 {
			ia = len(chain)
		}
		if ib < 0 {
			ib = len(chain)
		}
		if ia != ib {
			return ia - ib
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func promote(chain []string, name string) []string {
	out := make([]string, 0, len(chain)+1)
	out = append(out, name)
	for _, b := range chain {
		if b != name {
			out = append(out, b)
		}
	}
	return out
}

// perBackend gives network backends a longer timeout than the shared one.
func perBackend(cfg model.ExtractionConfig) map[string]model.Tunables {
	out := map[string]model.Tunables{}
	for _, b := range cfg.Backends {
		if !backend.IsRemote(b) || cfg.Tunables.Timeout >= remoteMinTimeout {
			continue
		}
		t := cfg.Tunables
		t.Timeout = remoteMinTimeout
		out[b] = Clamp(t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
