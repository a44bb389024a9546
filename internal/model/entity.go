package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityKind classifies an extracted entity.
type EntityKind string

const (
	EntityAmount    EntityKind = "amount"
	EntityNumeral   EntityKind = "numeral"
	EntityRole      EntityKind = "role"
	EntityReference EntityKind = "reference"
)

// ExtractedEntity is one entity found in a document.
//
// Value is the normalised string form for every kind; Amount is set only
// for EntityAmount. Lead holds up to three words preceding the match and
// feeds pattern learning.
type ExtractedEntity struct {
	Kind           EntityKind      `json:"kind"`
	Value          string          `json:"value"`
	Amount         decimal.Decimal `json:"amount,omitzero"`
	Currency       string          `json:"currency,omitempty"`
	Raw            string          `json:"raw"`
	Source         string          `json:"source"`
	Context        string          `json:"context"`
	Confidence     float64         `json:"confidence"`
	Position       int             `json:"position"`
	Level          int             `json:"level,omitempty"`
	Parent         string          `json:"parent,omitempty"`
	Pattern        string          `json:"pattern,omitempty"`
	Lead           string          `json:"lead,omitempty"`
	CrossValidated bool            `json:"cross_validated"`
}

// Key identifies an entity for deduplication and cross-validation.
func (e ExtractedEntity) Key() string {
	if e.Kind == EntityAmount {
		return string(e.Kind) + "|" + e.Amount.Round(2).StringFixed(2) + "|" + e.Currency
	}
	return string(e.Kind) + "|" + e.Value
}

// PatternOrigin tells base patterns from learned ones.
type PatternOrigin string

const (
	OriginBase    PatternOrigin = "base"
	OriginLearned PatternOrigin = "learned"
)

// PatternRule is a regular-expression template in the pattern library.
type PatternRule struct {
	Template  string        `json:"template"`
	Kind      EntityKind    `json:"kind"`
	Origin    PatternOrigin `json:"origin"`
	Uses      int64         `json:"uses"`
	Successes int64         `json:"successes"`
	CreatedAt time.Time     `json:"created_at"`
}
