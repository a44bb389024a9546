package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/model"
)

// HistoryLister is the store method the collector needs.
type HistoryLister interface {
	ListRecords(ctx context.Context) ([]model.PerformanceRecord, error)
}

// ArchetypeStats aggregates runs that used one archetype.
type ArchetypeStats struct {
	Archetype     model.Archetype `json:"archetype"`
	Runs          int             `json:"runs"`
	AvgSuccess    float64         `json:"avg_success"`
	AvgConfidence float64         `json:"avg_confidence"`
}

// Snapshot is a point-in-time summary of the performance history.
type Snapshot struct {
	Runs          int              `json:"runs"`
	Partial       int              `json:"partial"`
	AvgSuccess    float64          `json:"avg_success"`
	AvgConfidence float64          `json:"avg_confidence"`
	AvgDuration   time.Duration    `json:"avg_duration"`
	Archetypes    []ArchetypeStats `json:"archetypes"`
	BackendWins   map[string]int   `json:"backend_wins"`
	LookbackHours int              `json:"lookback_hours"`
	CollectedAt   time.Time        `json:"collected_at"`
}

// Collector summarises the performance store.
type Collector struct {
	store HistoryLister
	now   func() time.Time
}

// NewCollector creates a collector over st.
func NewCollector(st HistoryLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect summarises records newer than the lookback window.
// lookbackHours <= 0 includes the whole history.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	records, err := c.store.ListRecords(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "metrics: list records")
	}

	now := c.now().UTC()
	snap := &Snapshot{
		BackendWins:   map[string]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	type acc struct {
		runs             int
		success, confSum float64
	}
	byArchetype := map[model.Archetype]*acc{}
	var totalDuration time.Duration

	for _, r := range records {
		if lookbackHours > 0 && r.RecordedAt.Before(cutoff) {
			continue
		}
		snap.Runs++
		if r.Outcome.Partial {
			snap.Partial++
		}
		snap.AvgSuccess += r.Outcome.SuccessRate
		snap.AvgConfidence += r.Outcome.Confidence
		totalDuration += r.Outcome.Duration
		if r.Outcome.Backend != "" {
			snap.BackendWins[r.Outcome.Backend]++
		}

		a, ok := byArchetype[r.Config.Archetype]
		if !ok {
			a = &acc{}
			byArchetype[r.Config.Archetype] = a
		}
		a.runs++
		a.success += r.Outcome.SuccessRate
		a.confSum += r.Outcome.Confidence
	}

	if snap.Runs > 0 {
		n := float64(snap.Runs)
		snap.AvgSuccess /= n
		snap.AvgConfidence /= n
		snap.AvgDuration = totalDuration / time.Duration(snap.Runs)
	}
	for name, a := range byArchetype {
		snap.Archetypes = append(snap.Archetypes, ArchetypeStats{
			Archetype:     name,
			Runs:          a.runs,
			AvgSuccess:    a.success / float64(a.runs),
			AvgConfidence: a.confSum / float64(a.runs),
		})
	}
	sort.Slice(snap.Archetypes, func(i, j int) bool {
		if snap.Archetypes[i].Runs != snap.Archetypes[j].Runs {
			return snap.Archetypes[i].Runs > snap.Archetypes[j].Runs
		}
		return snap.Archetypes[i].Archetype < snap.Archetypes[j].Archetype
	})
	return snap, nil
}
