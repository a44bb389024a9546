package extract

import (
	"strings"
)

// Confidence scoring constants.
const (
	baseConfidence      = 0.5
	keywordBonus        = 0.1
	keywordBonusCap     = 0.3
	currencyBonus       = 0.15
	groupingBonus       = 0.1
	numeralBase         = 0.6
	numeralKeyword      = 0.25
	numeralContext      = 0.1
	roleConfidence      = 0.6
	referenceConfidence = 0.65
)

// domainKeywords are folded terms whose presence near a match raises
// confidence.
var domainKeywords = []string{
	"viatico", "hospedaje", "alimentacion", "alimentos", "transporte",
	"pasaje", "tarifa", "importe", "monto", "total", "cuota", "comision",
	"per diem", "lodging", "meals", "allowance", "numeral", "gasto",
}

// keywordHits counts domain keyword occurrences in a folded context.
func keywordHits(foldedCtx string) int {
	n := 0
	for _, kw := range domainKeywords {
		n += strings.Count(foldedCtx, kw)
	}
	return n
}

// AmountConfidence scores an amount match: a base, a capped bonus per
// nearby domain keyword, a bonus for an explicit currency marker and a
// bonus for digit-grouped formatting. The result is clamped to [0, 1].
func AmountConfidence(keywords int, explicitCurrency, grouped bool) float64 {
	c := baseConfidence + min(float64(keywords)*keywordBonus, keywordBonusCap)
	if explicitCurrency {
		c += currencyBonus
	}
	if grouped {
		c += groupingBonus
	}
	return clamp01(c)
}

// NumeralConfidence scores a citation match.
func NumeralConfidence(keywordAnchored bool, keywords int) float64 {
	c := numeralBase
	if keywordAnchored {
		c += numeralKeyword
	}
	if keywords > 0 {
		c += numeralContext
	}
	return clamp01(c)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
