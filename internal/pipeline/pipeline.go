// Package pipeline wires profiling, configuration, extraction, validation
// and learning into one run per document.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/dialog"
	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/metrics"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/optimizer"
	"github.com/sells-group/claimcheck/internal/orchestrator"
	"github.com/sells-group/claimcheck/internal/profile"
	"github.com/sells-group/claimcheck/internal/rules"
	"github.com/sells-group/claimcheck/internal/store"
)

// ErrNoCatalog is returned when a claim is given but no catalog is loaded.
var ErrNoCatalog = eris.New("pipeline: no catalog loaded")

// Phase status values.
const (
	PhaseComplete = "complete"
	PhaseFailed   = "failed"
	PhaseSkipped  = "skipped"
)

// Phase records how one step of a run went.
type Phase struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Claim asks the runner to validate concepts against the catalog after
// extraction. Concepts are asserted by the caller; Derive adds concepts
// paired from the extracted entities. Resolve, when set, applies that
// dialog option and re-validates.
type Claim struct {
	Location string                   `json:"location"`
	Concepts []model.NormativeConcept `json:"concepts,omitempty"`
	Derive   bool                     `json:"derive,omitempty"`
	Resolve  string                   `json:"resolve,omitempty"`
}

// Report is the full outcome of one document run.
type Report struct {
	DocumentID string                   `json:"document_id"`
	Path       string                   `json:"path,omitempty"`
	Profile    model.DocumentProfile    `json:"profile"`
	Config     model.ExtractionConfig   `json:"config"`
	Extraction *model.ExtractionResult  `json:"extraction"`
	Concepts   []model.NormativeConcept `json:"concepts,omitempty"`
	Validation *model.ValidationResult  `json:"validation,omitempty"`
	Prompt     *dialog.Prompt           `json:"prompt,omitempty"`
	Resolution *dialog.Resolution       `json:"resolution,omitempty"`
	// Unremediable is set when validation failed and no automatic
	// remediation exists.
	Unremediable bool                `json:"unremediable,omitempty"`
	Learned      []model.PatternRule `json:"learned,omitempty"`
	RecordID     string              `json:"record_id,omitempty"`
	Phases       []Phase             `json:"phases"`
}

// Runner executes document runs. It is safe for concurrent use; learning
// and pattern persistence are serialized.
type Runner struct {
	store     store.Store
	optimizer *optimizer.Optimizer
	orch      *orchestrator.Orchestrator
	extractor *extract.Extractor
	catalog   *rules.Catalog
	dialog    *dialog.Manager
	metrics   *metrics.Metrics
	location  string

	learnMu sync.Mutex
}

// Deps bundles the collaborators of a Runner. Catalog and Metrics may be
// nil.
type Deps struct {
	Store           store.Store
	Optimizer       *optimizer.Optimizer
	Orchestrator    *orchestrator.Orchestrator
	Extractor       *extract.Extractor
	Catalog         *rules.Catalog
	Metrics         *metrics.Metrics
	DefaultLocation string
}

// New creates a Runner.
func New(d Deps) *Runner {
	r := &Runner{
		store:     d.Store,
		optimizer: d.Optimizer,
		orch:      d.Orchestrator,
		extractor: d.Extractor,
		catalog:   d.Catalog,
		metrics:   d.Metrics,
		location:  d.DefaultLocation,
	}
	if d.Catalog != nil {
		r.dialog = dialog.New(d.Catalog)
	}
	return r
}

// Run processes one document. Extraction problems never fail the run;
// they show up in the report. Validation runs only when claim is non-nil.
// Learning and the performance record happen after everything else, and
// the record is written even when ctx was cancelled.
func (r *Runner) Run(ctx context.Context, doc *model.Document, claim *Claim) (*Report, error) {
	if doc == nil {
		return nil, eris.New("pipeline: nil document")
	}
	if claim != nil && r.catalog == nil {
		return nil, ErrNoCatalog
	}

	log := zap.L().With(zap.String("document", doc.ID))
	log.Info("pipeline: starting run", zap.String("path", doc.Path), zap.Int("pages", len(doc.Pages)))

	rep := &Report{DocumentID: doc.ID, Path: doc.Path}

	trackPhase := func(name string, fn func() error) {
		start := time.Now()
		err := fn()
		ph := Phase{Name: name, Status: PhaseComplete, DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			ph.Status = PhaseFailed
			ph.Error = err.Error()
			log.Warn("pipeline: phase failed", zap.String("phase", name), zap.Error(err))
		} else {
			log.Debug("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", ph.DurationMs))
		}
		rep.Phases = append(rep.Phases, ph)
	}

	trackPhase("profile", func() error {
		rep.Profile = profile.Profile(doc)
		return nil
	})

	var history []model.PerformanceRecord
	trackPhase("history", func() error {
		var err error
		history, err = r.store.ListRecords(ctx)
		return eris.Wrap(err, "pipeline: load history")
	})

	trackPhase("optimize", func() error {
		rep.Config = r.optimizer.Optimize(rep.Profile, history)
		return nil
	})

	trackPhase("extract", func() error {
		rep.Extraction = r.orch.Run(ctx, doc, rep.Config)
		return nil
	})

	if claim != nil {
		trackPhase("validate", func() error {
			return r.validate(rep, claim)
		})
	} else {
		rep.Phases = append(rep.Phases, Phase{Name: "validate", Status: PhaseSkipped})
	}

	// Learning and recording must not be cut short by the caller going away.
	finishCtx := context.WithoutCancel(ctx)
	trackPhase("learn", func() error {
		return r.learn(finishCtx, rep)
	})
	trackPhase("record", func() error {
		return r.record(finishCtx, doc, rep)
	})

	log.Info("pipeline: run complete",
		zap.String("archetype", string(rep.Config.Archetype)),
		zap.String("backend", rep.Extraction.Backend),
		zap.Float64("confidence", rep.Extraction.Confidence),
		zap.Int("entities", len(rep.Extraction.Entities)),
		zap.Bool("partial", rep.Extraction.Partial),
	)
	return rep, nil
}

func (r *Runner) validate(rep *Report, claim *Claim) error {
	loc := claim.Location
	if loc == "" {
		loc = r.location
	}

	concepts := append([]model.NormativeConcept(nil), claim.Concepts...)
	if claim.Derive {
		concepts = append(concepts, DeriveConcepts(rep.Extraction.Entities, loc)...)
	}
	rep.Concepts = concepts

	res := rules.Validate(r.catalog, concepts, loc)
	rep.Validation = &res
	if res.Valid {
		r.metrics.RecordValidation("valid")
		return nil
	}

	prompt, err := r.dialog.Prompt(res, concepts)
	if err != nil {
		if eris.Is(err, dialog.ErrNoRemediation) {
			rep.Unremediable = true
			r.metrics.RecordValidation("unremediable")
			return nil
		}
		return err
	}
	rep.Prompt = prompt
	r.metrics.RecordValidation("prompted")

	if claim.Resolve == "" {
		return nil
	}
	resolution, err := r.dialog.Resolve(prompt, claim.Resolve, concepts)
	if err != nil {
		return err
	}
	rep.Resolution = resolution
	if resolution.Result.Valid {
		r.metrics.RecordValidation("resolved")
	}
	return nil
}

// learn feeds the run's entities back into the pattern library and
// persists new patterns and updated counters.
func (r *Runner) learn(ctx context.Context, rep *Report) error {
	r.learnMu.Lock()
	defer r.learnMu.Unlock()

	rep.Learned = r.extractor.Learn(rep.Extraction.Entities)
	if err := r.store.AppendPatterns(ctx, rep.Learned); err != nil {
		return eris.Wrap(err, "pipeline: persist learned patterns")
	}
	return eris.Wrap(r.store.UpdatePatternStats(ctx, r.extractor.LearnedPatterns()), "pipeline: update pattern stats")
}

func (r *Runner) record(ctx context.Context, doc *model.Document, rep *Report) error {
	rec := model.PerformanceRecord{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Profile:    rep.Profile,
		Config:     rep.Config,
		Outcome:    OutcomeOf(rep.Extraction),
		RecordedAt: time.Now().UTC(),
	}
	if err := r.store.AppendRecord(ctx, rec); err != nil {
		return eris.Wrap(err, "pipeline: append performance record")
	}
	rep.RecordID = rec.ID
	return nil
}

// OutcomeOf summarises a result for the performance log. The success rate
// is the share of executed backend attempts that produced tables or
// completed cleanly without any; skipped attempts are not counted.
func OutcomeOf(res *model.ExtractionResult) model.Outcome {
	if res == nil {
		return model.Outcome{}
	}
	out := model.Outcome{
		Confidence: res.Confidence,
		Entities:   len(res.Entities),
		Backend:    res.Backend,
		Partial:    res.Partial,
		Duration:   res.Duration,
	}
	for _, e := range res.Entities {
		if e.CrossValidated {
			out.CrossValidated++
		}
	}

	executed, ok := 0, 0
	for _, a := range res.Attempts {
		switch a.Status {
		case model.AttemptSkipped:
			continue
		case model.AttemptOK, model.AttemptEmpty:
			ok++
		}
		executed++
	}
	if executed > 0 {
		out.SuccessRate = float64(ok) / float64(executed)
	}
	return out
}
