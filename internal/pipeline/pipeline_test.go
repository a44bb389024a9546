package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/backend"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/metrics"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/optimizer"
	"github.com/sells-group/claimcheck/internal/orchestrator"
	"github.com/sells-group/claimcheck/internal/rules"
	"github.com/sells-group/claimcheck/internal/source"
	"github.com/sells-group/claimcheck/internal/store"
)

const claimText = "Comprobación de viáticos conforme al numeral 8.4.19 importe $22.00 MXN por cena"

func testCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	cat, err := rules.LoadCatalog(filepath.Join("..", "rules", "testdata", "catalog.yaml"))
	require.NoError(t, err)
	return cat
}

func textDoc(id, text string) *model.Document {
	return &model.Document{
		ID:        id,
		Path:      id + ".txt",
		SizeBytes: int64(len(text)),
		Pages:     []model.Page{{Number: 1, Text: text, HasTextLayer: true}},
	}
}

type testEnv struct {
	runner  *Runner
	store   store.Store
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, st store.Store, cat *rules.Catalog) testEnv {
	t.Helper()
	if st == nil {
		st = store.NewMemory(10)
	}
	reg := backend.NewRegistry()
	reg.Register(backend.NewNative())
	reg.Register(backend.NewLayout())

	m := metrics.New(prometheus.NewRegistry())
	ex := extract.New(extract.DefaultOptions(), nil)
	r := New(Deps{
		Store:           st,
		Optimizer:       optimizer.New(config.OptimizerConfig{}),
		Orchestrator:    orchestrator.New(reg, ex, config.OrchestratorConfig{}, orchestrator.WithMetrics(m)),
		Extractor:       ex,
		Catalog:         cat,
		Metrics:         m,
		DefaultLocation: "nacional",
	})
	return testEnv{runner: r, store: st, metrics: m}
}

func phaseStatus(rep *Report, name string) string {
	for _, p := range rep.Phases {
		if p.Name == name {
			return p.Status
		}
	}
	return ""
}

func TestRunExtractOnly(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rep, err := env.runner.Run(context.Background(), textDoc("doc-1", claimText), nil)
	require.NoError(t, err)

	require.NotNil(t, rep.Extraction)
	assert.NotEmpty(t, rep.Extraction.Entities)
	assert.Nil(t, rep.Validation)
	assert.Equal(t, PhaseSkipped, phaseStatus(rep, "validate"))
	assert.Equal(t, PhaseComplete, phaseStatus(rep, "record"))
	assert.NotEmpty(t, rep.Config.Backends)

	recs, err := env.store.ListRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rep.RecordID, recs[0].ID)
	assert.Equal(t, "doc-1", recs[0].DocumentID)
	assert.Equal(t, rep.Config.Archetype, recs[0].Config.Archetype)
}

func TestRunLearnsAndPersistsPatterns(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rep, err := env.runner.Run(context.Background(), textDoc("doc-1", claimText), nil)
	require.NoError(t, err)
	require.NotEmpty(t, rep.Learned)

	stored, err := env.store.LoadPatterns(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, len(rep.Learned))
	assert.Equal(t, rep.Learned[0].Template, stored[0].Template)

	// A second run over the same text learns nothing new.
	rep2, err := env.runner.Run(context.Background(), textDoc("doc-2", claimText), nil)
	require.NoError(t, err)
	assert.Empty(t, rep2.Learned)
}

func TestRunDeriveAndResolve(t *testing.T) {
	env := newTestEnv(t, nil, testCatalog(t))

	rep, err := env.runner.Run(context.Background(), textDoc("doc-1", claimText), &Claim{Derive: true, Resolve: "correct-0"})
	require.NoError(t, err)

	require.Len(t, rep.Concepts, 1)
	assert.Equal(t, "8.4.19", rep.Concepts[0].Numeral)
	assert.True(t, decimal.RequireFromString("22").Equal(rep.Concepts[0].Amount))
	assert.Equal(t, "nacional", rep.Concepts[0].Location)

	require.NotNil(t, rep.Validation)
	assert.False(t, rep.Validation.Valid)
	assert.True(t, rep.Validation.HasKind(model.ViolationAmountMismatch))

	require.NotNil(t, rep.Prompt)
	require.NotNil(t, rep.Resolution)
	assert.True(t, rep.Resolution.Result.Valid)
	assert.True(t, decimal.RequireFromString("20").Equal(rep.Resolution.Concepts[0].Amount))

	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.Validations.WithLabelValues("prompted")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.Validations.WithLabelValues("resolved")), 0.001)
}

func TestRunAssertedConceptsValid(t *testing.T) {
	env := newTestEnv(t, nil, testCatalog(t))
	claim := &Claim{
		Location: "nacional",
		Concepts: []model.NormativeConcept{{Numeral: "9.1", Amount: decimal.RequireFromString("10.00")}},
	}

	rep, err := env.runner.Run(context.Background(), textDoc("doc-1", "Taxi aeropuerto"), claim)
	require.NoError(t, err)
	require.NotNil(t, rep.Validation)
	assert.True(t, rep.Validation.Valid)
	assert.Nil(t, rep.Prompt)
	assert.False(t, rep.Unremediable)
}

func TestRunUnremediable(t *testing.T) {
	env := newTestEnv(t, nil, testCatalog(t))
	claim := &Claim{Concepts: []model.NormativeConcept{{Numeral: "99.9", Amount: decimal.RequireFromString("1.00")}}}

	rep, err := env.runner.Run(context.Background(), textDoc("doc-1", "sin montos"), claim)
	require.NoError(t, err)
	assert.True(t, rep.Unremediable)
	assert.Nil(t, rep.Prompt)
	assert.True(t, rep.Validation.HasKind(model.ViolationUndefinedNumeral))
}

func TestRunUnknownResolveOption(t *testing.T) {
	env := newTestEnv(t, nil, testCatalog(t))

	rep, err := env.runner.Run(context.Background(), textDoc("doc-1", claimText), &Claim{Derive: true, Resolve: "nope"})
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, phaseStatus(rep, "validate"))
	assert.Nil(t, rep.Resolution)
	assert.NotNil(t, rep.Prompt)
}

func TestRunClaimWithoutCatalog(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, err := env.runner.Run(context.Background(), textDoc("doc-1", claimText), &Claim{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoCatalog))
}

func TestRunCancelledStillRecords(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := env.runner.Run(ctx, textDoc("doc-1", claimText), nil)
	require.NoError(t, err)
	assert.True(t, rep.Extraction.Partial)

	recs, err := env.store.ListRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Outcome.Partial)
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) AppendRecord(context.Context, model.PerformanceRecord) error {
	return errors.New("disk full")
}

func TestRunStoreFailureIsReported(t *testing.T) {
	env := newTestEnv(t, failingStore{store.NewMemory(10)}, nil)

	rep, err := env.runner.Run(context.Background(), textDoc("doc-1", claimText), nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, phaseStatus(rep, "record"))
	assert.Empty(t, rep.RecordID)
}

func TestRunUsesHistory(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	for i := range 3 {
		_, err := env.runner.Run(context.Background(), textDoc("doc", claimText), nil)
		require.NoError(t, err, "run %d", i)
	}
	recs, err := env.store.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Contains(t, recs[2].Config.AppliedRules, "history_blend")
}

func TestOutcomeOf(t *testing.T) {
	res := &model.ExtractionResult{
		Backend:    "layout_grid",
		Confidence: 0.8,
		Entities: []model.ExtractedEntity{
			{Kind: model.EntityAmount, CrossValidated: true},
			{Kind: model.EntityNumeral},
		},
		Attempts: []model.BackendAttempt{
			{Backend: "native_tables", Status: model.AttemptEmpty},
			{Backend: "pdftotext", Status: model.AttemptFailed},
			{Backend: "layout_grid", Status: model.AttemptOK},
			{Backend: "mistral_ocr", Status: model.AttemptSkipped},
		},
	}
	out := OutcomeOf(res)
	assert.InDelta(t, 2.0/3.0, out.SuccessRate, 0.0001)
	assert.Equal(t, 2, out.Entities)
	assert.Equal(t, 1, out.CrossValidated)
	assert.Equal(t, "layout_grid", out.Backend)

	assert.Zero(t, OutcomeOf(&model.ExtractionResult{}).SuccessRate)
	assert.Equal(t, model.Outcome{}, OutcomeOf(nil))
}

func TestRunBatch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte(claimText), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("Hospedaje importe $15.00 MXN"), 0o644))
	missing := filepath.Join(dir, "missing.txt")

	load := func(ctx context.Context, path string) (*model.Document, error) {
		return source.Open(ctx, path, source.Options{})
	}
	items := env.runner.RunBatch(context.Background(), []string{a, missing, b}, load, nil, 2)

	require.Len(t, items, 3)
	assert.Equal(t, a, items[0].Path)
	assert.NotNil(t, items[0].Report)
	assert.Empty(t, items[0].Err)
	assert.Nil(t, items[1].Report)
	assert.Contains(t, items[1].Err, "source: stat")
	assert.NotNil(t, items[2].Report)

	recs, err := env.store.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
