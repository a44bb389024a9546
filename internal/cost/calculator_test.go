package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		OCR: map[string]OCRRate{
			"ocr": {PerThousandPages: 1.00},
		},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{"haiku input only", "haiku", 1_000_000, 0, 0.80},
		{"haiku mixed", "haiku", 500_000, 100_000, 0.40 + 0.40},
		{"sonnet output", "sonnet", 0, 1_000_000, 15.00},
		{"unknown model", "gpt", 1_000_000, 1_000_000, 0},
		{"zero tokens", "sonnet", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Claude(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestOCR(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.012, calc.OCR("ocr", 12), 1e-9)
	assert.Zero(t, calc.OCR("ocr", 0))
	assert.Zero(t, calc.OCR("unknown", 100))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Contains(t, rates.OCR, "mistral-ocr-latest")
	for name, r := range rates.Anthropic {
		assert.Greater(t, r.Output, r.Input, name)
	}
}
