package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

func storeConfig(driver, url string, capacity int) config.StoreConfig {
	return config.StoreConfig{Driver: driver, DatabaseURL: url, PerformanceCap: capacity}
}

func TestMemory_Patterns(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.AppendPatterns(ctx, []model.PatternRule{
		{Template: "a(?P<num>\\d+)", Kind: model.EntityAmount, Origin: model.OriginBase},
		{Template: "a(?P<num>\\d+)", Kind: model.EntityAmount},
	}))
	require.NoError(t, m.UpdatePatternStats(ctx, []model.PatternRule{{Template: "a(?P<num>\\d+)", Uses: 3, Successes: 2}}))

	got, err := m.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.OriginLearned, got[0].Origin)
	assert.EqualValues(t, 3, got[0].Uses)

	// Callers get a copy.
	got[0].Uses = 100
	again, _ := m.LoadPatterns(ctx)
	assert.EqualValues(t, 3, again[0].Uses)
}

func TestMemory_RecordsCapped(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	for i := range 4 {
		require.NoError(t, m.AppendRecord(ctx, model.PerformanceRecord{DocumentID: fmt.Sprintf("d%d", i)}))
	}

	got, err := m.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d2", got[0].DocumentID)
	assert.Equal(t, "d3", got[1].DocumentID)
	assert.NotEmpty(t, got[0].ID)
}

func TestMemory_DefaultCap(t *testing.T) {
	m := NewMemory(-1)
	ctx := context.Background()
	for range DefaultPerformanceCap + 5 {
		require.NoError(t, m.AppendRecord(ctx, model.PerformanceRecord{}))
	}
	got, _ := m.ListRecords(ctx)
	assert.Len(t, got, DefaultPerformanceCap)
}
