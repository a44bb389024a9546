package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/backend"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/metrics"
	"github.com/sells-group/claimcheck/internal/model"
)

type fakeBackend struct {
	name   string
	tables []model.Table
	err    error
	delay  time.Duration
	panics bool
	calls  atomic.Int32
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Extract(ctx context.Context, _ *model.Document, _ model.Tunables) (*backend.Result, error) {
	f.calls.Add(1)
	if f.panics {
		panic("corrupt xref table")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Result{Backend: f.name, Tables: f.tables, Confidence: backend.TableConfidence(f.tables)}, nil
}

var (
	claimTable = []model.Table{{Page: 1, Rows: [][]string{{"Hospedaje", "$350.00 MXN"}}}}
	wordTable  = []model.Table{{Page: 1, Rows: [][]string{{"a", "b"}, {"c", "d"}}}}
	raggedRows = []model.Table{{Page: 1, Rows: [][]string{{"Hospedaje", "$350.00 MXN"}, {"x"}}}}

	claimDoc = &model.Document{ID: "doc-1", Pages: []model.Page{{
		Number:       1,
		HasTextLayer: true,
		Text:         "Hospedaje importe $350.00 MXN conforme al numeral 8.4.17",
	}}}
)

func newTestOrchestrator(backends ...backend.Backend) *Orchestrator {
	reg := backend.NewRegistry()
	for _, b := range backends {
		reg.Register(b)
	}
	return New(reg, extract.New(extract.DefaultOptions(), nil), config.OrchestratorConfig{})
}

func chainConfig(names ...string) model.ExtractionConfig {
	return model.ExtractionConfig{
		Archetype: model.ArchetypeDigitalSimple,
		Backends:  names,
		Tunables:  model.Tunables{ConfidenceThreshold: 0.8, Timeout: time.Second, MaxPages: 10},
	}
}

func statuses(attempts []model.BackendAttempt) []model.AttemptStatus {
	out := make([]model.AttemptStatus, len(attempts))
	for i, a := range attempts {
		out[i] = a.Status
	}
	return out
}

func TestRun_StopsAtThreshold(t *testing.T) {
	a := &fakeBackend{name: "a", tables: claimTable}
	b := &fakeBackend{name: "b", tables: claimTable}
	o := newTestOrchestrator(a, b)

	res := o.Run(context.Background(), claimDoc, chainConfig("a", "b"))

	assert.Equal(t, "a", res.Backend)
	assert.Equal(t, int32(0), b.calls.Load())
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, model.AttemptOK, res.Attempts[0].Status)
	assert.InDelta(t, 1.0, res.TableConfidence, 0.001)
	assert.False(t, res.Partial)
}

func TestRun_CrossValidation(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{name: "a", tables: claimTable})
	res := o.Run(context.Background(), claimDoc, chainConfig("a"))

	var amount, numeral *model.ExtractedEntity
	for i := range res.Entities {
		switch res.Entities[i].Kind {
		case model.EntityAmount:
			amount = &res.Entities[i]
		case model.EntityNumeral:
			numeral = &res.Entities[i]
		}
	}
	require.NotNil(t, amount)
	require.NotNil(t, numeral)

	assert.True(t, amount.CrossValidated)
	assert.Equal(t, extract.SourceText, amount.Source)
	assert.InDelta(t, 1.0, amount.Confidence, 0.001)
	assert.False(t, numeral.CrossValidated)
	assert.InDelta(t, 0.5, res.CrossValidated, 0.001)
	assert.Equal(t, 2, res.TextEntities)

	w := DefaultWeights()
	assert.InDelta(t, w.Fuse(res.TableConfidence, res.EntityConfidence, res.CrossValidated), res.Confidence, 0.0001)
}

func TestRun_FallbackChain(t *testing.T) {
	failing := &fakeBackend{name: "failing", err: errors.New("parse error")}
	panicky := &fakeBackend{name: "panicky", panics: true}
	slow := &fakeBackend{name: "slow", delay: 5 * time.Second, tables: claimTable}
	good := &fakeBackend{name: "good", tables: claimTable}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	o := newTestOrchestrator(failing, panicky, slow, good)
	o.metrics = m

	cfg := chainConfig("failing", "panicky", "slow", "good")
	cfg.PerBackend = map[string]model.Tunables{"slow": {ConfidenceThreshold: 0.8, Timeout: 20 * time.Millisecond}}

	res := o.Run(context.Background(), claimDoc, cfg)

	assert.Equal(t, []model.AttemptStatus{model.AttemptFailed, model.AttemptFailed, model.AttemptTimeout, model.AttemptOK}, statuses(res.Attempts))
	assert.Contains(t, res.Attempts[1].Error, "panicked")
	assert.Equal(t, "good", res.Backend)
	assert.False(t, res.Partial)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BackendAttempts.WithLabelValues("slow", "timeout")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("digital_simple", "false")), 0.001)
}

func TestRun_KeepsBestBelowThreshold(t *testing.T) {
	a := &fakeBackend{name: "a", tables: wordTable}
	b := &fakeBackend{name: "b", tables: raggedRows}
	o := newTestOrchestrator(a, b)

	res := o.Run(context.Background(), claimDoc, chainConfig("a", "b"))

	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, "a", res.Backend)
	assert.InDelta(t, 0.5, res.TableConfidence, 0.001)
}

func TestRun_AllBackendsFail(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{name: "a", err: errors.New("boom")}, &fakeBackend{name: "b", err: errors.New("bang")})

	res := o.Run(context.Background(), claimDoc, chainConfig("a", "b"))

	assert.Empty(t, res.Entities)
	assert.Empty(t, res.Tables)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, "boom", res.Attempts[0].Error)
	assert.Equal(t, 2, res.TextEntities)
	assert.Zero(t, res.Confidence)
}

func TestRun_NoTablesIsNotFailure(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{name: "a", err: backend.ErrNoTables})

	res := o.Run(context.Background(), claimDoc, chainConfig("a"))

	assert.Equal(t, []model.AttemptStatus{model.AttemptEmpty}, statuses(res.Attempts))
	assert.Len(t, res.Entities, 2, "text entities survive when no tables exist")
	assert.Zero(t, res.CrossValidated)
}

func TestRun_UnregisteredBackendSkipped(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{name: "a", tables: claimTable})

	res := o.Run(context.Background(), claimDoc, chainConfig("missing", "a"))

	assert.Equal(t, []model.AttemptStatus{model.AttemptSkipped, model.AttemptOK}, statuses(res.Attempts))
	assert.Equal(t, "backend not registered", res.Attempts[0].Error)
}

func TestRun_BudgetExhausted(t *testing.T) {
	slow := &fakeBackend{name: "slow", delay: 5 * time.Second}
	next := &fakeBackend{name: "next", tables: claimTable}
	o := newTestOrchestrator(slow, next)
	o.budget = 50 * time.Millisecond

	cfg := chainConfig("slow", "next")
	cfg.Tunables.Timeout = 10 * time.Second

	start := time.Now()
	res := o.Run(context.Background(), claimDoc, cfg)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Partial)
	assert.Equal(t, []model.AttemptStatus{model.AttemptTimeout, model.AttemptSkipped}, statuses(res.Attempts))
	assert.Equal(t, int32(0), next.calls.Load())
}

func TestRun_Cancelled(t *testing.T) {
	a := &fakeBackend{name: "a", tables: claimTable}
	o := newTestOrchestrator(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := o.Run(ctx, claimDoc, chainConfig("a"))

	assert.True(t, res.Partial)
	assert.Equal(t, []model.AttemptStatus{model.AttemptSkipped}, statuses(res.Attempts))
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestRun_FailuresDoNotCarryAcrossDocuments(t *testing.T) {
	flaky := &fakeBackend{name: "flaky", err: errors.New("503")}
	good := &fakeBackend{name: "good", tables: claimTable}
	o := newTestOrchestrator(flaky, good)

	for range 3 {
		res := o.Run(context.Background(), claimDoc, chainConfig("flaky", "good"))
		assert.Equal(t, model.AttemptFailed, res.Attempts[0].Status)
	}

	flaky.err = nil
	flaky.tables = claimTable
	other := &model.Document{ID: "doc-2", Pages: claimDoc.Pages}
	res := o.Run(context.Background(), other, chainConfig("flaky", "good"))

	assert.Equal(t, int32(4), flaky.calls.Load())
	assert.Equal(t, []model.AttemptStatus{model.AttemptOK}, statuses(res.Attempts))
	assert.Equal(t, "flaky", res.Backend)
}

func TestRun_CancelledMidAttemptIsSkipped(t *testing.T) {
	slow := &fakeBackend{name: "slow", delay: 5 * time.Second}
	next := &fakeBackend{name: "next", tables: claimTable}
	o := newTestOrchestrator(slow, next)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	res := o.Run(ctx, claimDoc, chainConfig("slow", "next"))

	assert.True(t, res.Partial)
	assert.Equal(t, []model.AttemptStatus{model.AttemptSkipped, model.AttemptSkipped}, statuses(res.Attempts))
	assert.Contains(t, res.Attempts[0].Error, "cancelled")
	assert.Equal(t, int32(0), next.calls.Load())

	o.registry.Register(&fakeBackend{name: "slow", tables: claimTable})
	again := o.Run(context.Background(), claimDoc, chainConfig("slow", "next"))
	assert.Equal(t, model.AttemptOK, again.Attempts[0].Status)
	assert.Equal(t, "slow", again.Backend)
}
