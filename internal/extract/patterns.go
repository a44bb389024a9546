package extract

import (
	"regexp"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/model"
)

// numberPattern matches a formatted amount: digit groups with thousands
// separators (a single plain space counts), or a plain run of digits, with an
// optional 1-2 digit fraction.
const numberPattern = `\d{1,3}(?:[.,\x{00A0}\x{202F}' ]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`

// currencyPrefix matches a symbol or ISO code written before an amount.
const currencyPrefix = `US\$|U\$S|S/\.?|\$|€|£|¥|MXN|USD|EUR|GBP|PEN|COP|CLP|ARS|JPY`

// numeralPattern matches a hierarchical citation N, N.N, N.N.N or N.N.N.N.
const numeralPattern = `\d{1,3}(?:\.\d{1,3}){0,3}`

// rule is a compiled pattern plus its live counters.
type rule struct {
	re        *regexp.Regexp
	template  string
	kind      model.EntityKind
	origin    model.PatternOrigin
	createdAt time.Time
	uses      atomic.Int64
	successes atomic.Int64
}

func (r *rule) snapshot() model.PatternRule {
	return model.PatternRule{
		Template:  r.template,
		Kind:      r.kind,
		Origin:    r.origin,
		Uses:      r.uses.Load(),
		Successes: r.successes.Load(),
		CreatedAt: r.createdAt,
	}
}

func compileRule(pr model.PatternRule) (*rule, error) {
	re, err := regexp.Compile(pr.Template)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: compile pattern %q", pr.Template)
	}
	if pr.Kind == model.EntityAmount && re.SubexpIndex("num") < 0 {
		return nil, eris.Errorf("extract: amount pattern %q has no num group", pr.Template)
	}
	r := &rule{
		re:        re,
		template:  pr.Template,
		kind:      pr.Kind,
		origin:    pr.Origin,
		createdAt: pr.CreatedAt,
	}
	r.uses.Store(pr.Uses)
	r.successes.Store(pr.Successes)
	return r, nil
}

// basePatterns is the built-in library. Every amount template exposes a
// "num" group and optionally a "cur" group.
var basePatterns = []model.PatternRule{
	// $1,234.56 / € 35,00 / MXN 1.500
	{Kind: model.EntityAmount, Template: `(?P<cur>` + currencyPrefix + `)\s?(?P<num>` + numberPattern + `)`},
	// 1,234.56 MXN
	{Kind: model.EntityAmount, Template: `(?P<num>` + numberPattern + `)\s?(?P<cur>MXN|USD|EUR|GBP|PEN|COP|CLP|ARS|JPY)\b`},
	// 350.00 pesos
	{Kind: model.EntityAmount, Template: `(?i)(?P<num>` + numberPattern + `)\s*(?:pesos|d[oó]lares|dollars|euros|soles|libras|pounds)\b`},
	// importe: 35.00 / total $35.00
	{Kind: model.EntityAmount, Template: `(?i)(?:importe|monto|total|subtotal|tarifa|cuota|cantidad|vi[aá]ticos?|amount|fee|cost|rate)\s*(?:de\s+|of\s+)?[:=]?\s*(?P<cur>` + currencyPrefix + `)?\s?(?P<num>` + numberPattern + `)`},

	// numeral 8.4.17 / artículo 12 / section 3.2
	{Kind: model.EntityNumeral, Template: `(?i)(?:numerale?s?|art[ií]culos?|arts?\.|articles?|secci[oó]n|sections?|fracci[oó]n|inciso|§)\s*(?:no\.\s*)?(?P<num>` + numeralPattern + `)`},
	// bare 8.4.17 or 8.4.17.2
	{Kind: model.EntityNumeral, Template: `(?P<num>\d{1,3}(?:\.\d{1,3}){2,3})`},

	{Kind: model.EntityRole, Template: `(?i)(?P<num>(?:sub)?director(?:a)?\s+general(?:\s+adjunt[oa])?|(?:sub)?director(?:a)?\s+de\s+área|jefe\s+de\s+(?:departamento|unidad)|coordinador(?:a)?\s+general|secretari[oa]\s+de\s+estado|servidor(?:a)?\s+p[uú]blic[oa]|comisionad[oa]|personal\s+operativo|enlace)`},

	{Kind: model.EntityReference, Template: `(?i)(?:oficio|folio|expediente|referencia|ref\.)\s*(?:no\.?|n[uú]m\.?|#)?\s*:?\s*(?P<num>[A-Z0-9][A-Z0-9/\-.]{2,40}[A-Z0-9])`},
}

// newBaseRules compiles the built-in library. It panics on a bad template
// since the library is a compile-time constant.
func newBaseRules() []*rule {
	out := make([]*rule, 0, len(basePatterns))
	for _, pr := range basePatterns {
		pr.Origin = model.OriginBase
		r, err := compileRule(pr)
		if err != nil {
			panic(err)
		}
		out = append(out, r)
	}
	return out
}
