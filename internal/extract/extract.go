// Package extract finds monetary amounts, regulation numerals, roles and
// document references in free text using a base regular-expression library
// plus patterns learned from earlier high-confidence extractions.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

// SourceText is the source id stamped on entities found in plain text.
const SourceText = "text"

// Options configures an Extractor.
type Options struct {
	ContextWindow   int
	MaxAmount       decimal.Decimal
	YearMin         int
	YearMax         int
	DefaultCurrency string
	LearnThreshold  float64
	DedupDistance   int
}

// DefaultOptions returns the options used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		ContextWindow:   80,
		MaxAmount:       decimal.NewFromInt(10_000_000),
		YearMin:         1900,
		YearMax:         2100,
		DefaultCurrency: "MXN",
		LearnThreshold:  0.85,
		DedupDistance:   40,
	}
}

// OptionsFromConfig converts config values, keeping defaults for zero values.
func OptionsFromConfig(cfg config.ExtractConfig) Options {
	o := DefaultOptions()
	if cfg.ContextWindow > 0 {
		o.ContextWindow = cfg.ContextWindow
	}
	if cfg.MaxAmount > 0 {
		o.MaxAmount = decimal.NewFromFloat(cfg.MaxAmount)
	}
	if cfg.YearMin > 0 {
		o.YearMin = cfg.YearMin
	}
	if cfg.YearMax > 0 {
		o.YearMax = cfg.YearMax
	}
	if cfg.DefaultCurrency != "" {
		o.DefaultCurrency = strings.ToUpper(cfg.DefaultCurrency)
	}
	if cfg.LearnThreshold > 0 {
		o.LearnThreshold = cfg.LearnThreshold
	}
	if cfg.DedupDistance > 0 {
		o.DedupDistance = cfg.DedupDistance
	}
	return o
}

// Extractor is safe for concurrent use. The learned set only grows, and
// only through Learn.
type Extractor struct {
	opts Options
	base []*rule

	mu        sync.RWMutex
	learned   []*rule
	templates map[string]struct{}
}

// New builds an Extractor from the base library plus previously learned
// patterns. Learned patterns that no longer compile are skipped.
func New(opts Options, learned []model.PatternRule) *Extractor {
	e := &Extractor{
		opts:      opts,
		base:      newBaseRules(),
		templates: make(map[string]struct{}),
	}
	for _, r := range e.base {
		e.templates[r.template] = struct{}{}
	}
	for _, pr := range learned {
		if _, dup := e.templates[pr.Template]; dup {
			continue
		}
		pr.Origin = model.OriginLearned
		r, err := compileRule(pr)
		if err != nil {
			zap.L().Warn("extract: skipping learned pattern", zap.String("template", pr.Template), zap.Error(err))
			continue
		}
		e.learned = append(e.learned, r)
		e.templates[pr.Template] = struct{}{}
	}
	return e
}

// Options returns the extractor configuration.
func (e *Extractor) Options() Options {
	return e.opts
}

// Extract runs every pattern over text with the configured context window.
func (e *Extractor) Extract(text, source string) []model.ExtractedEntity {
	return e.ExtractWindow(text, source, e.opts.ContextWindow)
}

// ExtractWindow runs every pattern over text and returns deduplicated
// entities sorted by confidence, highest first.
func (e *Extractor) ExtractWindow(text, source string, window int) []model.ExtractedEntity {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if window < 0 {
		window = 0
	}

	var out []model.ExtractedEntity
	for _, r := range e.rules() {
		for _, loc := range r.re.FindAllStringSubmatchIndex(text, -1) {
			r.uses.Add(1)
			ent, ok := e.build(text, r, loc, source, window)
			if !ok {
				continue
			}
			r.successes.Add(1)
			out = append(out, ent)
		}
	}

	out = dedupe(out, e.opts.DedupDistance)
	sortByConfidence(out)
	return out
}

func (e *Extractor) rules() []*rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*rule, 0, len(e.base)+len(e.learned))
	out = append(out, e.base...)
	return append(out, e.learned...)
}

func (e *Extractor) build(text string, r *rule, loc []int, source string, window int) (model.ExtractedEntity, bool) {
	numIdx := r.re.SubexpIndex("num")
	if numIdx < 0 || loc[2*numIdx] < 0 {
		return model.ExtractedEntity{}, false
	}
	start, end := loc[2*numIdx], loc[2*numIdx+1]
	raw := text[start:end]

	ctxStart, ctxEnd := contextBounds(text, loc[0], loc[1], window)
	ctx := text[ctxStart:ctxEnd]
	folded := Fold(ctx)
	hits := keywordHits(folded)

	ent := model.ExtractedEntity{
		Kind:     r.kind,
		Raw:      raw,
		Source:   source,
		Context:  ctx,
		Position: start,
		Pattern:  r.template,
	}

	switch r.kind {
	case model.EntityAmount:
		if !isolated(text, start, end) {
			return ent, false
		}
		amount, err := NormalizeAmount(raw)
		if err != nil || !e.plausible(amount, raw) {
			return ent, false
		}
		var curTok string
		if ci := r.re.SubexpIndex("cur"); ci >= 0 && loc[2*ci] >= 0 {
			curTok = text[loc[2*ci]:loc[2*ci+1]]
		}
		ent.Amount = amount
		ent.Value = amount.StringFixed(2)
		ent.Currency = e.resolveCurrency(curTok, folded, len(Fold(text[ctxStart:start])))
		ent.Confidence = AmountConfidence(hits, curTok != "", isGrouped(raw))
		ent.Lead = leadTokens(text[:start])

	case model.EntityNumeral:
		if !isolated(text, start, end) {
			return ent, false
		}
		anchored := loc[0] != start
		if !anchored && thousandsLike(raw) {
			return ent, false
		}
		n := ParseNumeral(raw)
		ent.Value = n.ID
		ent.Level = n.Level
		ent.Parent = n.Parent
		ent.Confidence = NumeralConfidence(anchored, hits)

	case model.EntityRole:
		ent.Value = strings.Join(strings.Fields(Fold(raw)), " ")
		ent.Confidence = roleConfidence
		if hits > 0 {
			ent.Confidence = clamp01(roleConfidence + keywordBonus)
		}

	case model.EntityReference:
		ent.Value = strings.ToUpper(raw)
		ent.Confidence = referenceConfidence

	default:
		return ent, false
	}
	return ent, true
}

// plausible applies the validity filter: positive, under the ceiling, and
// not an integer inside the calendar-year range.
func (e *Extractor) plausible(amount decimal.Decimal, raw string) bool {
	if !amount.IsPositive() {
		return false
	}
	if e.opts.MaxAmount.IsPositive() && amount.GreaterThan(e.opts.MaxAmount) {
		return false
	}
	if !hasFraction(raw) && amount.IsInteger() {
		y := amount.IntPart()
		if y >= int64(e.opts.YearMin) && y <= int64(e.opts.YearMax) {
			return false
		}
	}
	return true
}

func (e *Extractor) resolveCurrency(token, foldedCtx string, offset int) string {
	if code, ok := explicitCurrency(token); ok {
		return code
	}
	if code, ok := inferCurrency(foldedCtx, offset); ok {
		return code
	}
	return e.opts.DefaultCurrency
}

// contextBounds widens [start,end) by window bytes on each side, snapped to
// rune boundaries.
func contextBounds(text string, start, end, window int) (int, int) {
	lo := max(0, start-window)
	hi := min(len(text), end+window)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return lo, hi
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// isolated rejects matches that are a fragment of a longer number,
// including one whose thousands groups continue after a space.
func isolated(text string, start, end int) bool {
	if start > 0 {
		p := text[start-1]
		if isDigit(p) {
			return false
		}
		if (p == '.' || p == ',') && start > 1 && isDigit(text[start-2]) {
			return false
		}
	}
	if end < len(text) {
		n := text[end]
		if isDigit(n) {
			return false
		}
		if (n == '.' || n == ',') && end+1 < len(text) && isDigit(text[end+1]) {
			return false
		}
		if n == ' ' && spaceGroupAt(text, end+1) {
			return false
		}
	}
	return true
}

// spaceGroupAt reports whether exactly three digits start at i, as in the
// tail of "1 234,56".
func spaceGroupAt(text string, i int) bool {
	if i+3 > len(text) {
		return false
	}
	for j := i; j < i+3; j++ {
		if !isDigit(text[j]) {
			return false
		}
	}
	return i+3 == len(text) || !isDigit(text[i+3])
}

// thousandsLike reports dotted strings whose trailing segments are all
// three digits long, such as 1.234.567.
func thousandsLike(s string) bool {
	segs := strings.Split(s, ".")
	if len(segs) < 2 {
		return false
	}
	for _, seg := range segs[1:] {
		if len(seg) != 3 {
			return false
		}
	}
	return true
}

var leadWordRE = regexp.MustCompile(`\p{L}+`)

// leadTokens returns up to three words immediately preceding a match.
func leadTokens(prefix string) string {
	if len(prefix) > 80 {
		cut := len(prefix) - 80
		for cut < len(prefix) && !utf8.RuneStart(prefix[cut]) {
			cut++
		}
		prefix = prefix[cut:]
	}
	// Only words on the same line as the match count.
	if i := strings.LastIndexAny(prefix, "\n\f"); i >= 0 {
		prefix = prefix[i+1:]
	}
	words := leadWordRE.FindAllString(prefix, -1)
	if len(words) > 3 {
		words = words[len(words)-3:]
	}
	return strings.Join(words, " ")
}

// dedupe merges entities with the same key whose positions lie within
// distance bytes, keeping the highest-confidence instance.
func dedupe(in []model.ExtractedEntity, distance int) []model.ExtractedEntity {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Position < in[j].Position })
	out := make([]model.ExtractedEntity, 0, len(in))
	for _, e := range in {
		merged := false
		key := e.Key()
		for i := range out {
			if out[i].Key() != key || abs(out[i].Position-e.Position) > distance {
				continue
			}
			if e.Confidence > out[i].Confidence {
				out[i] = e
			}
			merged = true
			break
		}
		if !merged {
			out = append(out, e)
		}
	}
	return out
}

func sortByConfidence(ents []model.ExtractedEntity) {
	sort.SliceStable(ents, func(i, j int) bool {
		if ents[i].Confidence != ents[j].Confidence {
			return ents[i].Confidence > ents[j].Confidence
		}
		return ents[i].Position < ents[j].Position
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
