// Package dialog turns a failed validation into ranked remediation options
// and re-validates the concept list once an option is chosen.
package dialog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/rules"
)

var (
	// ErrNoRemediation means a violation has no safe automatic fix.
	ErrNoRemediation = eris.New("dialog: no automatic remediation")
	// ErrUnknownOption means the selected option id is not in the prompt.
	ErrUnknownOption = eris.New("dialog: unknown option")
)

// Option is one selectable resolution.
type Option struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Description string      `json:"description"`
	Remediation Remediation `json:"-"`
}

// Prompt asks the user to pick a resolution. Options are ordered from least
// to most disruptive.
type Prompt struct {
	Kind     model.ViolationKind `json:"kind"`
	Message  string              `json:"message"`
	Location string              `json:"location"`
	Options  []Option            `json:"options"`
}

// Option looks up an option by id.
func (p *Prompt) Option(id string) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Resolution is the outcome of applying one option.
type Resolution struct {
	Option   Option                   `json:"option"`
	Concepts []model.NormativeConcept `json:"concepts"`
	Result   model.ValidationResult   `json:"result"`
	// Prompt is set when the new set is still invalid but remediable.
	Prompt *Prompt `json:"prompt,omitempty"`
}

// Manager builds prompts against a catalog.
type Manager struct {
	cat *rules.Catalog
}

// New returns a Manager for cat.
func New(cat *rules.Catalog) *Manager {
	return &Manager{cat: cat}
}

type candidate struct {
	opt   Option
	rank  int
	order int
}

// Prompt returns nil for a valid result. It fails with ErrNoRemediation
// when any violation is of a kind that has no defined remediation.
func (m *Manager) Prompt(res model.ValidationResult, concepts []model.NormativeConcept) (*Prompt, error) {
	if res.Valid {
		return nil, nil
	}

	var hard []string
	for _, v := range res.Violations {
		if v.Kind == model.ViolationUndefinedNumeral || v.Kind == model.ViolationUnknownLocation {
			hard = append(hard, v.Message)
		}
	}
	if len(hard) > 0 {
		return nil, eris.Wrapf(ErrNoRemediation, "%s", strings.Join(hard, "; "))
	}

	var cands []candidate
	add := func(id string, r Remediation) {
		cands = append(cands, candidate{
			opt:   Option{ID: id, Kind: r.Kind(), Description: describe(r, concepts), Remediation: r},
			rank:  r.rank(),
			order: len(cands),
		})
	}

	for _, v := range res.Violations {
		switch v.Kind {
		case model.ViolationAmountMismatch:
			add(fmt.Sprintf("correct-%d", v.Index), CorrectAmount{Index: v.Index, Amount: v.Expected})
			add(fmt.Sprintf("drop-%d", v.Index), DropConcepts{Indexes: []int{v.Index}})

		case model.ViolationNotApplicable:
			add(fmt.Sprintf("drop-%d", v.Index), DropConcepts{Indexes: []int{v.Index}})

		case model.ViolationDailyLimitExceeded:
			idx := acceptedOnDay(res, concepts, v.Day)
			if spread, ok := spreadRemediation(concepts, idx, v.Day, v.Expected); ok {
				add(fmt.Sprintf("spread-d%d", v.Day), spread)
			}
			for _, s := range res.Suggestions {
				if s.Kind == model.SuggestUmbrella && s.Day == v.Day {
					add(fmt.Sprintf("umbrella-d%d", v.Day), SubstituteUmbrella{
						Numeral: s.Numeral, Tariff: s.Tariff, Day: s.Day, Replaces: s.Replaces,
					})
				}
			}
			if drop := dropUntilUnder(concepts, idx, v.Claimed, v.Expected); len(drop) > 0 {
				add(fmt.Sprintf("drop-d%d", v.Day), DropConcepts{Indexes: drop})
			}

		default:
			return nil, eris.Wrapf(ErrNoRemediation, "violation kind %s", v.Kind)
		}
	}
	if len(cands) == 0 {
		return nil, eris.Wrap(ErrNoRemediation, "no options for the violations")
	}

	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].rank != cands[b].rank {
			return cands[a].rank < cands[b].rank
		}
		return cands[a].order < cands[b].order
	})
	p := &Prompt{
		Kind:     res.Violations[0].Kind,
		Location: res.Location,
		Message:  summarize(res),
	}
	seen := map[string]bool{}
	for _, c := range cands {
		if seen[c.opt.ID] {
			continue
		}
		seen[c.opt.ID] = true
		p.Options = append(p.Options, c.opt)
	}
	return p, nil
}

// Resolve applies the chosen option and re-validates at the prompt's
// location.
func (m *Manager) Resolve(p *Prompt, optionID string, concepts []model.NormativeConcept) (*Resolution, error) {
	if p == nil {
		return nil, eris.Wrap(ErrUnknownOption, "no prompt")
	}
	opt, ok := p.Option(optionID)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownOption, "option %q", optionID)
	}

	next := opt.Remediation.Apply(concepts)
	res := rules.Validate(m.cat, next, p.Location)
	out := &Resolution{Option: opt, Concepts: next, Result: res}

	zap.L().Info("dialog: applied remediation",
		zap.String("option", opt.ID),
		zap.String("kind", opt.Kind),
		zap.Bool("valid", res.Valid),
	)

	if !res.Valid {
		np, err := m.Prompt(res, next)
		if err != nil && !eris.Is(err, ErrNoRemediation) {
			return nil, err
		}
		out.Prompt = np
	}
	return out, nil
}

// acceptedOnDay returns indexes of concepts on day that have no
// per-concept violation.
func acceptedOnDay(res model.ValidationResult, concepts []model.NormativeConcept, day int) []int {
	bad := map[int]bool{}
	for _, v := range res.Violations {
		if v.Index >= 0 {
			bad[v.Index] = true
		}
	}
	var out []int
	for i, c := range concepts {
		if c.Day == day && !bad[i] {
			out = append(out, i)
		}
	}
	return out
}

// spreadRemediation packs a day's concepts into day bins. The first bin
// stays on the original day; later bins move past the last used day.
func spreadRemediation(concepts []model.NormativeConcept, idx []int, day int, limit decimal.Decimal) (SpreadAcrossDays, bool) {
	bins := rules.PackDays(concepts, idx, limit)
	if len(bins) < 2 {
		return SpreadAcrossDays{}, false
	}
	last := 0
	for _, c := range concepts {
		last = max(last, c.Day)
	}
	assign := map[int]int{}
	for b, bin := range bins[1:] {
		for _, i := range bin {
			assign[i] = last + 1 + b
		}
	}
	return SpreadAcrossDays{Day: day, Assignment: assign}, true
}

// dropUntilUnder removes the most recently claimed concepts until the day
// total fits.
func dropUntilUnder(concepts []model.NormativeConcept, idx []int, total, limit decimal.Decimal) []int {
	var drop []int
	for i := len(idx) - 1; i >= 0 && total.GreaterThan(limit); i-- {
		drop = append(drop, idx[i])
		total = total.Sub(concepts[idx[i]].Amount)
	}
	slices.Sort(drop)
	return drop
}

func summarize(res model.ValidationResult) string {
	msgs := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("%d violation(s): %s", len(res.Violations), strings.Join(msgs, "; "))
}
