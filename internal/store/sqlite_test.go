package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/model"
)

func newTestSQLiteStore(t *testing.T, capacity int) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, capacity)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(doc string) model.PerformanceRecord {
	return model.PerformanceRecord{
		DocumentID: doc,
		Profile: model.DocumentProfile{
			PageCount:   3,
			ScanQuality: 1,
			DocType:     model.DocTypeFinancial,
		},
		Config: model.ExtractionConfig{
			Archetype: model.ArchetypeFinancial,
			Backends:  []string{"native_tables", "layout_grid"},
			Tunables:  model.Tunables{ConfidenceThreshold: 0.8, Timeout: 30 * time.Second, MaxPages: 100},
		},
		Outcome: model.Outcome{SuccessRate: 1, Confidence: 0.9, Entities: 4, Backend: "layout_grid"},
	}
}

func TestSQLite_Patterns_AppendAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := st.AppendPatterns(ctx, []model.PatternRule{
		{Template: `(?i)cuota\s+diaria(?P<num>\d+)`, Kind: model.EntityAmount, CreatedAt: created},
		{Template: `(?i)gasto(?P<num>\d+)`, Kind: model.EntityAmount, CreatedAt: created.Add(time.Hour)},
	})
	require.NoError(t, err)

	// Re-appending an existing template is a no-op.
	require.NoError(t, st.AppendPatterns(ctx, []model.PatternRule{
		{Template: `(?i)gasto(?P<num>\d+)`, Kind: model.EntityAmount, Uses: 99},
	}))

	got, err := st.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, `(?i)cuota\s+diaria(?P<num>\d+)`, got[0].Template)
	assert.Equal(t, model.EntityAmount, got[0].Kind)
	assert.Equal(t, model.OriginLearned, got[0].Origin)
	assert.True(t, created.Equal(got[0].CreatedAt))
	assert.EqualValues(t, 0, got[1].Uses)
}

func TestSQLite_Patterns_UpdateStats(t *testing.T) {
	st := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	tmpl := `(?i)hospedaje(?P<num>\d+)`
	require.NoError(t, st.AppendPatterns(ctx, []model.PatternRule{{Template: tmpl, Kind: model.EntityAmount}}))
	require.NoError(t, st.UpdatePatternStats(ctx, []model.PatternRule{
		{Template: tmpl, Uses: 7, Successes: 5},
		{Template: "not-stored", Uses: 1},
	}))

	got, err := st.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 7, got[0].Uses)
	assert.EqualValues(t, 5, got[0].Successes)
}

func TestSQLite_Patterns_Empty(t *testing.T) {
	st := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	require.NoError(t, st.AppendPatterns(ctx, nil))
	require.NoError(t, st.UpdatePatternStats(ctx, nil))
	got, err := st.LoadPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_Records_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	require.NoError(t, st.AppendRecord(ctx, testRecord("doc-1")))

	got, err := st.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].RecordedAt.IsZero())
	assert.Equal(t, "doc-1", got[0].DocumentID)
	assert.Equal(t, model.DocTypeFinancial, got[0].Profile.DocType)
	assert.Equal(t, []string{"native_tables", "layout_grid"}, got[0].Config.Backends)
	assert.Equal(t, 30*time.Second, got[0].Config.Tunables.Timeout)
	assert.InDelta(t, 0.9, got[0].Outcome.Confidence, 0.0001)
}

func TestSQLite_Records_EvictOldest(t *testing.T) {
	st := newTestSQLiteStore(t, 3)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, st.AppendRecord(ctx, testRecord(fmt.Sprintf("doc-%d", i))))
	}

	got, err := st.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "doc-2", got[0].DocumentID)
	assert.Equal(t, "doc-3", got[1].DocumentID)
	assert.Equal(t, "doc-4", got[2].DocumentID)
}

func TestSQLite_Records_ConcurrentAppend(t *testing.T) {
	st := newTestSQLiteStore(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, st.AppendRecord(ctx, testRecord(fmt.Sprintf("doc-%d", i))))
		}()
	}
	wg.Wait()

	got, err := st.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, storeConfig("memory", "", 5))
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)
	require.NoError(t, st.Close())

	st, err = Open(ctx, storeConfig("sqlite", filepath.Join(t.TempDir(), "open.db"), 5))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.AppendRecord(ctx, testRecord("doc")))
	require.NoError(t, st.Close())

	_, err = Open(ctx, storeConfig("oracle", "", 5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
