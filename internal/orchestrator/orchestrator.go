// Package orchestrator runs the configured backend chain for a document,
// extracts entities from plain text alongside it, and reconciles the two.
package orchestrator

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/claimcheck/internal/backend"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/metrics"
	"github.com/sells-group/claimcheck/internal/model"
)

const (
	defaultRunBudget = 180 * time.Second
	defaultBoost     = 0.15
)

// Orchestrator is safe for concurrent use by multiple document runs. It
// keeps no state between runs, so one document's failures never change the
// chain another document sees.
type Orchestrator struct {
	registry  *backend.Registry
	extractor *extract.Extractor
	metrics   *metrics.Metrics
	budget    time.Duration
	boost     float64
	weights   Weights
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records attempts and runs.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator.
func New(reg *backend.Registry, ex *extract.Extractor, cfg config.OrchestratorConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		extractor: ex,
		budget:    defaultRunBudget,
		boost:     defaultBoost,
		weights:   WeightsFromConfig(cfg),
	}
	if cfg.RunBudgetSecs > 0 {
		o.budget = time.Duration(cfg.RunBudgetSecs) * time.Second
	}
	if cfg.CrossValidationBoost > 0 {
		o.boost = cfg.CrossValidationBoost
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type chainOutcome struct {
	best     *backend.Result
	attempts []model.BackendAttempt
	ran      bool
}

// Run extracts tables and entities from doc. Backend failures never
// surface as errors; they are recorded in Attempts. When the run budget
// runs out or ctx is cancelled, the best result so far is returned with
// Partial set.
func (o *Orchestrator) Run(ctx context.Context, doc *model.Document, cfg model.ExtractionConfig) *model.ExtractionResult {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	var chain chainOutcome
	var textEnts []model.ExtractedEntity

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		chain = o.runChain(gctx, doc, cfg)
		return nil
	})
	g.Go(func() error {
		textEnts = o.extractor.Extract(doc.Text(cfg.Tunables.MaxPages), extract.SourceText)
		return nil
	})
	_ = g.Wait()

	res := &model.ExtractionResult{
		DocumentID:   doc.ID,
		Attempts:     chain.attempts,
		TextEntities: len(textEnts),
		Partial:      runCtx.Err() != nil,
	}

	var structured []model.ExtractedEntity
	if chain.best != nil {
		res.Backend = chain.best.Backend
		res.Tables = chain.best.Tables
		res.TableConfidence = chain.best.Confidence
		structured = o.extractor.Extract(TablesText(chain.best.Tables), chain.best.Backend)
	}

	if chain.ran {
		res.Entities, res.CrossValidated = CrossValidate(structured, textEnts, o.boost)
	} else if len(cfg.Backends) > 0 {
		zap.L().Warn("orchestrator: every backend failed",
			zap.String("document", doc.ID),
			zap.Int("attempts", len(chain.attempts)),
		)
	}
	res.EntityConfidence = meanConfidence(res.Entities)
	res.Confidence = o.weights.Fuse(res.TableConfidence, res.EntityConfidence, res.CrossValidated)
	res.Duration = time.Since(start)

	if res.Partial {
		zap.L().Warn("orchestrator: run ended early",
			zap.String("document", doc.ID),
			zap.Duration("budget", o.budget),
			zap.Error(runCtx.Err()),
		)
	}
	o.metrics.RecordRun(cfg.Archetype, res)
	return res
}

// runChain tries each backend in order and keeps the highest-confidence
// result. It stops at the first result above that backend's threshold.
func (o *Orchestrator) runChain(ctx context.Context, doc *model.Document, cfg model.ExtractionConfig) chainOutcome {
	var out chainOutcome
	for i, name := range cfg.Backends {
		if err := ctx.Err(); err != nil {
			for _, rest := range cfg.Backends[i:] {
				out.attempts = append(out.attempts, o.skip(rest, err.Error()))
			}
			break
		}

		b := o.registry.Get(name)
		if b == nil {
			out.attempts = append(out.attempts, o.skip(name, "backend not registered"))
			continue
		}

		t := cfg.For(name)
		started := time.Now()
		res, err := o.attempt(ctx, b, doc, t)
		a := model.BackendAttempt{Backend: name, Duration: time.Since(started)}

		switch {
		case err == nil:
			a.Status = model.AttemptOK
			a.Confidence = res.Confidence
			a.Tables = len(res.Tables)
			out.ran = true
			if out.best == nil || res.Confidence > out.best.Confidence {
				out.best = res
			}
		case eris.Is(err, backend.ErrNoTables):
			a.Status = model.AttemptEmpty
			out.ran = true
		case eris.Is(ctx.Err(), context.Canceled):
			// Caller cancellation says nothing about the backend.
			a.Status = model.AttemptSkipped
			a.Error = "cancelled: " + err.Error()
		case eris.Is(err, context.DeadlineExceeded):
			a.Status = model.AttemptTimeout
			a.Error = err.Error()
		default:
			a.Status = model.AttemptFailed
			a.Error = err.Error()
		}
		if a.Status == model.AttemptTimeout || a.Status == model.AttemptFailed {
			zap.L().Warn("orchestrator: backend failed, falling back",
				zap.String("document", doc.ID),
				zap.String("backend", name),
				zap.String("status", string(a.Status)),
				zap.Error(err),
			)
		}
		out.attempts = append(out.attempts, a)
		o.metrics.RecordAttempt(a)

		if a.Status == model.AttemptOK && res.Confidence > t.ConfidenceThreshold {
			zap.L().Debug("orchestrator: confidence threshold met",
				zap.String("document", doc.ID),
				zap.String("backend", name),
				zap.Float64("confidence", res.Confidence),
				zap.Float64("threshold", t.ConfidenceThreshold),
			)
			break
		}
	}
	return out
}

type attemptResult struct {
	res *backend.Result
	err error
}

// attempt runs one backend in its own goroutine bounded by the backend
// timeout. A backend that ignores ctx is abandoned when the timeout fires;
// a panic is converted to an error.
func (o *Orchestrator) attempt(ctx context.Context, b backend.Backend, doc *model.Document, t model.Tunables) (*backend.Result, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	ch := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- attemptResult{err: eris.Errorf("orchestrator: backend %s panicked: %v", b.Name(), r)}
			}
		}()
		res, err := b.Extract(ctx, doc, t)
		if err == nil && res == nil {
			err = eris.Wrap(backend.ErrNoTables, b.Name())
		}
		ch <- attemptResult{res: res, err: err}
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) skip(name, reason string) model.BackendAttempt {
	a := model.BackendAttempt{Backend: name, Status: model.AttemptSkipped, Error: reason}
	o.metrics.RecordAttempt(a)
	return a
}
