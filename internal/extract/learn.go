package extract

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/model"
)

// Learn derives a pattern from the words preceding each amount extracted
// with confidence at or above the learn threshold. New patterns are added
// to the learned set and returned so the caller can persist them.
// Learn must run after extraction for a document has completed.
func (e *Extractor) Learn(entities []model.ExtractedEntity) []model.PatternRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	var added []model.PatternRule
	for _, ent := range entities {
		if ent.Kind != model.EntityAmount || ent.Confidence < e.opts.LearnThreshold || ent.Lead == "" {
			continue
		}
		tmpl := learnedTemplate(ent.Lead)
		if _, dup := e.templates[tmpl]; dup {
			continue
		}
		pr := model.PatternRule{
			Template:  tmpl,
			Kind:      model.EntityAmount,
			Origin:    model.OriginLearned,
			CreatedAt: time.Now().UTC(),
		}
		r, err := compileRule(pr)
		if err != nil {
			zap.L().Debug("extract: learned template does not compile", zap.String("template", tmpl), zap.Error(err))
			continue
		}
		e.learned = append(e.learned, r)
		e.templates[tmpl] = struct{}{}
		added = append(added, pr)

		zap.L().Info("extract: learned pattern",
			zap.String("lead", ent.Lead),
			zap.Float64("confidence", ent.Confidence),
		)
	}
	return added
}

// learnedTemplate anchors an amount on the given lead words.
func learnedTemplate(lead string) string {
	words := strings.Fields(lead)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return `(?i)` + strings.Join(quoted, `\s+`) + `[\s:=\-]*(?P<cur>` + currencyPrefix + `)?\s?(?P<num>` + numberPattern + `)`
}

// Patterns returns the base and learned libraries with live counters.
func (e *Extractor) Patterns() []model.PatternRule {
	rules := e.rules()
	out := make([]model.PatternRule, len(rules))
	for i, r := range rules {
		out[i] = r.snapshot()
	}
	return out
}

// LearnedPatterns returns only the learned library.
func (e *Extractor) LearnedPatterns() []model.PatternRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.PatternRule, len(e.learned))
	for i, r := range e.learned {
		out[i] = r.snapshot()
	}
	return out
}
