package extract

import (
	"strings"

	"golang.org/x/text/currency"
)

// symbolCurrencies maps unambiguous symbols to ISO codes. "$" is absent on
// purpose: it is resolved from context or the local default.
var symbolCurrencies = map[string]string{
	"us$": "USD",
	"u$s": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"s/":  "PEN",
	"s/.": "PEN",
}

// currencyWords maps folded currency words to ISO codes.
var currencyWords = map[string]string{
	"pesos":   "MXN",
	"peso":    "MXN",
	"m.n":     "MXN",
	"mxn":     "MXN",
	"dolares": "USD",
	"dolar":   "USD",
	"dollars": "USD",
	"dollar":  "USD",
	"usd":     "USD",
	"euros":   "EUR",
	"euro":    "EUR",
	"eur":     "EUR",
	"soles":   "PEN",
	"libras":  "GBP",
	"pounds":  "GBP",
}

// explicitCurrency resolves a currency token taken from the match itself.
// ok is false for an empty token or the bare "$" sign.
func explicitCurrency(token string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" || t == "$" {
		return "", false
	}
	if code, ok := symbolCurrencies[t]; ok {
		return code, true
	}
	if u, err := currency.ParseISO(strings.ToUpper(t)); err == nil {
		return u.String(), true
	}
	return "", false
}

// inferCurrency picks the currency word nearest to offset in the folded
// context; ok is false when the context mentions none.
func inferCurrency(foldedCtx string, offset int) (string, bool) {
	best, bestDist := "", -1
	for _, w := range wordsWithOffsets(foldedCtx) {
		code, ok := currencyWords[w.text]
		if !ok {
			continue
		}
		d := w.start - offset
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = code, d
		}
	}
	return best, bestDist >= 0
}

type word struct {
	text  string
	start int
}

func wordsWithOffsets(s string) []word {
	var out []word
	start := -1
	for i, r := range s {
		isWord := r == '.' || (r >= 'a' && r <= 'z') || r > 0x7f
		if isWord && start < 0 {
			start = i
		}
		if !isWord && start >= 0 {
			out = append(out, word{text: strings.Trim(s[start:i], "."), start: start})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, word{text: strings.Trim(s[start:], "."), start: start})
	}
	return out
}
