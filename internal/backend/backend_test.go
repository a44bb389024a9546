package backend

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

var testTunables = model.Tunables{EdgeTolerance: 3, LineSensitivity: 0.5, MaxPages: 10}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get(LayoutGrid))

	r.Register(NewLayout())
	r.Register(NewNative())
	assert.Equal(t, []string{LayoutGrid, NativeTables}, r.List())
	assert.Equal(t, LayoutGrid, r.Get(LayoutGrid).Name())
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, []string{LayoutGrid, NativeTables, PdfToText}, FromConfig(cfg).List())

	cfg.OCR.MistralKey = "m-key"
	cfg.LLM.AnthropicKey = "a-key"
	assert.Equal(t, []string{LayoutGrid, LLMTables, MistralOCR, NativeTables, PdfToText}, FromConfig(cfg).List())
}

func TestKnownAndRemote(t *testing.T) {
	assert.True(t, Known(MistralOCR))
	assert.False(t, Known("tabula"))
	assert.True(t, IsRemote(LLMTables))
	assert.False(t, IsRemote(LayoutGrid))
}

func TestNativeExtract(t *testing.T) {
	doc := &model.Document{Pages: []model.Page{
		{Number: 1, Tables: []model.Table{{Page: 1, Rows: [][]string{{"Hotel", "350.00"}, {"Comida", "120.00"}}}}},
		{Number: 2, Tables: []model.Table{{Page: 2, Rows: [][]string{{"Taxi", "80.00"}}}}},
	}}

	res, err := NewNative().Extract(context.Background(), doc, model.Tunables{MaxPages: 1})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, NativeTables, res.Tables[0].Source)
	assert.Equal(t, NativeTables, res.Backend)
	assert.InDelta(t, 1.0, res.Confidence, 0.001)

	_, err = NewNative().Extract(context.Background(), &model.Document{}, testTunables)
	assert.True(t, eris.Is(err, ErrNoTables))
}

func TestLayoutExtract(t *testing.T) {
	grid := "Concepto    Importe\nHotel       350.00\nComida      120.00\n"
	doc := &model.Document{Pages: []model.Page{
		{Number: 1, Text: grid},
		{Number: 2, Text: grid},
	}}

	res, err := NewLayout().Extract(context.Background(), doc, testTunables)
	require.NoError(t, err)
	assert.Len(t, res.Tables, 2)
	assert.Equal(t, 2, res.Tables[1].Page)

	res, err = NewLayout().Extract(context.Background(), doc, model.Tunables{EdgeTolerance: 3, LineSensitivity: 0.5, MaxPages: 1})
	require.NoError(t, err)
	assert.Len(t, res.Tables, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLayout().Extract(ctx, doc, testTunables)
	assert.ErrorIs(t, err, context.Canceled)
}
