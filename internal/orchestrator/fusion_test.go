package orchestrator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

func amountEntity(value string, conf float64, source string) model.ExtractedEntity {
	return model.ExtractedEntity{
		Kind:       model.EntityAmount,
		Value:      value,
		Amount:     decimal.RequireFromString(value),
		Currency:   "MXN",
		Confidence: conf,
		Source:     source,
	}
}

func TestCrossValidate(t *testing.T) {
	structured := []model.ExtractedEntity{
		amountEntity("35.00", 0.9, "layout_grid"),
		amountEntity("35.00", 0.6, "layout_grid"),
		amountEntity("99.00", 0.7, "layout_grid"),
	}
	text := []model.ExtractedEntity{
		amountEntity("35.00", 0.5, "text"),
		amountEntity("35.00", 0.55, "text"),
		amountEntity("12.00", 0.8, "text"),
	}

	merged, frac := CrossValidate(structured, text, 0.15)
	require.Len(t, merged, 4)
	assert.InDelta(t, 0.5, frac, 0.0001)

	var validated int
	for _, e := range merged {
		switch e.Value {
		case "35.00":
			assert.True(t, e.CrossValidated)
			assert.InDelta(t, 1.0, e.Confidence, 0.0001)
			validated++
		case "99.00":
			assert.False(t, e.CrossValidated)
			assert.Equal(t, "layout_grid", e.Source)
			assert.InDelta(t, 0.7, e.Confidence, 0.0001)
		case "12.00":
			assert.False(t, e.CrossValidated)
			assert.InDelta(t, 0.8, e.Confidence, 0.0001)
		}
	}
	assert.Equal(t, 2, validated, "repeated claims keep one entity each")

	for i := 1; i < len(merged); i++ {
		assert.GreaterOrEqual(t, merged[i-1].Confidence, merged[i].Confidence)
	}
}

func TestCrossValidate_ConfidenceNeverDrops(t *testing.T) {
	structured := []model.ExtractedEntity{amountEntity("10.00", 0.4, "native_tables")}
	text := []model.ExtractedEntity{amountEntity("10.00", 0.95, "text")}

	merged, _ := CrossValidate(structured, text, 0)
	require.Len(t, merged, 1)
	assert.GreaterOrEqual(t, merged[0].Confidence, 0.95)
	assert.GreaterOrEqual(t, merged[0].Confidence, 0.4)
}

func TestCrossValidate_CurrencyMustMatch(t *testing.T) {
	usd := amountEntity("35.00", 0.7, "layout_grid")
	usd.Currency = "USD"
	merged, frac := CrossValidate([]model.ExtractedEntity{usd}, []model.ExtractedEntity{amountEntity("35.00", 0.7, "text")}, 0.15)
	assert.Len(t, merged, 2)
	assert.Zero(t, frac)
}

func TestCrossValidate_Empty(t *testing.T) {
	merged, frac := CrossValidate(nil, nil, 0.15)
	assert.Nil(t, merged)
	assert.Zero(t, frac)
}

func TestWeights(t *testing.T) {
	w := DefaultWeights()
	assert.InDelta(t, 0.72, w.Fuse(1, 0.8, 0.2), 0.0001)
	assert.InDelta(t, 0, w.Fuse(0, 0, 0), 0.0001)
	assert.InDelta(t, 1, w.Fuse(1, 1, 1), 0.0001)

	custom := WeightsFromConfig(config.OrchestratorConfig{TableWeight: 1, EntityWeight: 1, CrossWeight: 0})
	assert.InDelta(t, 0.5, custom.Fuse(1, 0, 1), 0.0001, "weights are normalised")

	assert.Equal(t, DefaultWeights(), WeightsFromConfig(config.OrchestratorConfig{}))
	assert.Equal(t, DefaultWeights(), WeightsFromConfig(config.OrchestratorConfig{TableWeight: -1, EntityWeight: 2}))
}

func TestTablesText(t *testing.T) {
	got := TablesText([]model.Table{
		{Rows: [][]string{{"Hotel", "350.00"}, {"Comida", "120.00"}}},
		{Rows: [][]string{{"Taxi", "80.00"}}},
	})
	assert.Equal(t, "Hotel    350.00\nComida    120.00\n\nTaxi    80.00", got)
	assert.Empty(t, TablesText(nil))
}
