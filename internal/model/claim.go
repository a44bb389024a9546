package model

import "github.com/shopspring/decimal"

// NormativeConcept is one claimed line: a numeral, the amount claimed for
// it, and where it was incurred. Day buckets concepts for daily limits.
type NormativeConcept struct {
	Numeral  string          `json:"numeral"`
	Amount   decimal.Decimal `json:"amount"`
	Location string          `json:"location,omitempty"`
	Day      int             `json:"day,omitempty"`
}

// ViolationKind enumerates rule failures.
type ViolationKind int

const (
	ViolationUndefinedNumeral ViolationKind = iota
	ViolationNotApplicable
	ViolationAmountMismatch
	ViolationDailyLimitExceeded
	ViolationUnknownLocation
)

var violationKindLabels = [...]string{
	ViolationUndefinedNumeral:   "undefined_numeral",
	ViolationNotApplicable:      "not_applicable",
	ViolationAmountMismatch:     "amount_mismatch",
	ViolationDailyLimitExceeded: "daily_limit_exceeded",
	ViolationUnknownLocation:    "unknown_location",
}

func (k ViolationKind) String() string {
	if int(k) >= 0 && int(k) < len(violationKindLabels) {
		return violationKindLabels[k]
	}
	return "unknown"
}

// MarshalText renders the label in JSON output.
func (k ViolationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Violation is a rule failure. Index is the concept position, or -1 for
// aggregate violations.
type Violation struct {
	Kind     ViolationKind   `json:"kind"`
	Index    int             `json:"index"`
	Numeral  string          `json:"numeral,omitempty"`
	Location string          `json:"location,omitempty"`
	Day      int             `json:"day"`
	Claimed  decimal.Decimal `json:"claimed"`
	Expected decimal.Decimal `json:"expected"`
	Message  string          `json:"message"`
}

// SuggestionKind enumerates the proposals attached to a limit violation.
type SuggestionKind string

const (
	SuggestReduce     SuggestionKind = "reduce"
	SuggestSpreadDays SuggestionKind = "spread_days"
	SuggestUmbrella   SuggestionKind = "substitute_umbrella"
)

// Adjustment is a proportional reduction for one concept.
type Adjustment struct {
	Index  int             `json:"index"`
	Reduce decimal.Decimal `json:"reduce"`
}

// Suggestion is advisory output on aggregate violations. Replaces and
// Tariff are set for umbrella substitutions.
type Suggestion struct {
	Kind        SuggestionKind  `json:"kind"`
	Message     string          `json:"message"`
	Day         int             `json:"day"`
	Excess      decimal.Decimal `json:"excess"`
	Days        int             `json:"days,omitempty"`
	Numeral     string          `json:"numeral,omitempty"`
	Tariff      decimal.Decimal `json:"tariff,omitzero"`
	Replaces    []int           `json:"replaces,omitempty"`
	Adjustments []Adjustment    `json:"adjustments,omitempty"`
}

// ValidationResult is the outcome of validating a concept set.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	Location    string                     `json:"location"`
	Total       decimal.Decimal            `json:"total"`
	DailyLimit  decimal.Decimal            `json:"daily_limit"`
	DayTotals   map[int]decimal.Decimal    `json:"day_totals,omitempty"`
	GroupTotals map[string]decimal.Decimal `json:"group_totals,omitempty"`
	Violations  []Violation                `json:"violations"`
	Warnings    []string                   `json:"warnings"`
	Suggestions []Suggestion               `json:"suggestions"`
	Accepted    []NormativeConcept         `json:"accepted"`
}

// HasKind reports whether any violation has the given kind.
func (r ValidationResult) HasKind(k ViolationKind) bool {
	for _, v := range r.Violations {
		if v.Kind == k {
			return true
		}
	}
	return false
}
