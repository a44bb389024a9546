// Package cost estimates the spend of the remote extraction backends.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OCR       map[string]OCRRate   `yaml:"ocr" mapstructure:"ocr"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// OCRRate holds per-model OCR pricing.
type OCRRate struct {
	PerThousandPages float64 `yaml:"per_thousand_pages" mapstructure:"per_thousand_pages"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one message call. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// OCR computes the cost of processing pages with an OCR model.
func (c *Calculator) OCR(model string, pages int) float64 {
	rate, ok := c.rates.OCR[model]
	if !ok || pages <= 0 {
		return 0
	}
	return float64(pages) / 1000 * rate.PerThousandPages
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		OCR: map[string]OCRRate{
			"mistral-ocr-latest": {PerThousandPages: 1.00},
		},
	}
}
