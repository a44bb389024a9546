// Package rules loads the normative catalog and validates claimed concepts
// against it.
package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"
)

// ErrMalformedCatalog is returned when the catalog fails structural checks.
var ErrMalformedCatalog = eris.New("rules: malformed catalog")

// Unit tells whether a tariff is paid per service or once per day.
type Unit string

const (
	UnitPerService Unit = "per_service"
	UnitPerDay     Unit = "per_day"
)

// LocationRule is a numeral's applicability and tariff at one location.
type LocationRule struct {
	Applicable bool
	Tariff     decimal.Decimal
}

// NumeralDefinition is one catalog entry.
type NumeralDefinition struct {
	ID          string
	Description string
	Unit        Unit
	Group       string
	Umbrella    bool
	Subsumes    []string
	Locations   map[string]LocationRule
}

// At returns the rule for a location.
func (d NumeralDefinition) At(location string) (LocationRule, bool) {
	r, ok := d.Locations[location]
	return r, ok
}

// Covers reports whether an umbrella numeral subsumes id.
func (d NumeralDefinition) Covers(id string) bool {
	for _, s := range d.Subsumes {
		if s == id {
			return true
		}
	}
	return false
}

// Location is a location context. HasLimit is false when no daily limit
// is declared.
type Location struct {
	ID         string
	DailyLimit decimal.Decimal
	HasLimit   bool
}

// Catalog is a read-only index of numeral definitions keyed by id.
type Catalog struct {
	Currency  string
	locations map[string]Location
	numerals  map[string]NumeralDefinition
	ids       []string
}

// Numeral looks up a definition by id.
func (c *Catalog) Numeral(id string) (NumeralDefinition, bool) {
	d, ok := c.numerals[NormalizeID(id)]
	return d, ok
}

// Location looks up a location by id.
func (c *Catalog) Location(id string) (Location, bool) {
	l, ok := c.locations[normalizeLocation(id)]
	return l, ok
}

// IDs returns the numeral ids in sorted order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Locations returns the location ids in sorted order.
func (c *Catalog) Locations() []string {
	out := make([]string, 0, len(c.locations))
	for id := range c.locations {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NormalizeID trims whitespace and stray dots from a numeral id.
func NormalizeID(id string) string {
	return strings.Trim(strings.TrimSpace(id), ".")
}

func normalizeLocation(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

type rawCatalog struct {
	Currency  string                 `yaml:"currency"`
	Locations map[string]rawLocation `yaml:"locations"`
	Numerals  map[string]rawNumeral  `yaml:"numerals"`
}

type rawLocation struct {
	DailyLimit string `yaml:"daily_limit"`
}

type rawNumeral struct {
	Description string                     `yaml:"description"`
	Unit        string                     `yaml:"unit"`
	Group       string                     `yaml:"group"`
	Umbrella    bool                       `yaml:"umbrella"`
	Subsumes    []string                   `yaml:"subsumes"`
	Locations   map[string]rawLocationRule `yaml:"locations"`
}

type rawLocationRule struct {
	Applicable bool   `yaml:"applicable"`
	Tariff     string `yaml:"tariff"`
}

// LoadCatalog reads and validates a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates a YAML catalog. Every structural problem is
// reported at once; the error wraps ErrMalformedCatalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(ErrMalformedCatalog, "parse yaml: %v", err)
	}

	var errs []string
	cat := &Catalog{
		locations: make(map[string]Location, len(raw.Locations)),
		numerals:  make(map[string]NumeralDefinition, len(raw.Numerals)),
	}

	cur := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if cur == "" {
		errs = append(errs, "currency is required")
	} else if _, err := currency.ParseISO(cur); err != nil {
		errs = append(errs, fmt.Sprintf("currency %q is not an ISO 4217 code", raw.Currency))
	}
	cat.Currency = cur

	if len(raw.Locations) == 0 {
		errs = append(errs, "at least one location is required")
	}
	for id, rl := range raw.Locations {
		key := normalizeLocation(id)
		loc := Location{ID: key}
		if strings.TrimSpace(rl.DailyLimit) != "" {
			d, err := decimal.NewFromString(strings.TrimSpace(rl.DailyLimit))
			switch {
			case err != nil:
				errs = append(errs, fmt.Sprintf("location %s: daily_limit %q is not a number", id, rl.DailyLimit))
			case !d.IsPositive():
				errs = append(errs, fmt.Sprintf("location %s: daily_limit must be > 0", id))
			default:
				loc.DailyLimit, loc.HasLimit = d, true
			}
		}
		cat.locations[key] = loc
	}

	if len(raw.Numerals) == 0 {
		errs = append(errs, "at least one numeral is required")
	}
	for rawID, rn := range raw.Numerals {
		id := NormalizeID(rawID)
		if id == "" {
			errs = append(errs, "numeral with empty id")
			continue
		}
		def := NumeralDefinition{
			ID:          id,
			Description: rn.Description,
			Unit:        Unit(rn.Unit),
			Group:       rn.Group,
			Umbrella:    rn.Umbrella,
			Locations:   make(map[string]LocationRule, len(rn.Locations)),
		}
		if def.Unit == "" {
			def.Unit = UnitPerService
		}
		if def.Unit != UnitPerService && def.Unit != UnitPerDay {
			errs = append(errs, fmt.Sprintf("numeral %s: unit %q must be per_service or per_day", id, rn.Unit))
		}
		if len(rn.Subsumes) > 0 && !rn.Umbrella {
			errs = append(errs, fmt.Sprintf("numeral %s: subsumes requires umbrella: true", id))
		}
		if rn.Umbrella && len(rn.Subsumes) == 0 {
			errs = append(errs, fmt.Sprintf("numeral %s: umbrella must list subsumed numerals", id))
		}
		for _, s := range rn.Subsumes {
			def.Subsumes = append(def.Subsumes, NormalizeID(s))
		}
		if len(rn.Locations) == 0 {
			errs = append(errs, fmt.Sprintf("numeral %s: no locations", id))
		}
		for locID, lr := range rn.Locations {
			key := normalizeLocation(locID)
			if _, ok := cat.locations[key]; !ok {
				errs = append(errs, fmt.Sprintf("numeral %s: unknown location %s", id, locID))
			}
			rule := LocationRule{Applicable: lr.Applicable}
			if lr.Applicable {
				d, err := decimal.NewFromString(strings.TrimSpace(lr.Tariff))
				switch {
				case err != nil:
					errs = append(errs, fmt.Sprintf("numeral %s at %s: tariff %q is not a number", id, locID, lr.Tariff))
				case !d.IsPositive():
					errs = append(errs, fmt.Sprintf("numeral %s at %s: tariff must be > 0", id, locID))
				default:
					rule.Tariff = d
				}
			}
			def.Locations[key] = rule
		}
		if _, dup := cat.numerals[id]; dup {
			errs = append(errs, fmt.Sprintf("numeral %s: defined more than once", id))
		}
		cat.numerals[id] = def
		cat.ids = append(cat.ids, id)
	}

	for _, id := range cat.ids {
		for _, s := range cat.numerals[id].Subsumes {
			if s == id {
				errs = append(errs, fmt.Sprintf("numeral %s: subsumes itself", id))
				continue
			}
			if _, ok := cat.numerals[s]; !ok {
				errs = append(errs, fmt.Sprintf("numeral %s: subsumes unknown numeral %s", id, s))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, eris.Wrapf(ErrMalformedCatalog, "%s", strings.Join(errs, "; "))
	}
	sort.Strings(cat.ids)
	return cat, nil
}
