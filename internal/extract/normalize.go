package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

var (
	twoDigitTailRE = regexp.MustCompile(`,\d{2}$`)
	groupedRE      = regexp.MustCompile(`\d{1,3}(?:[.,\x{00A0}\x{202F}' ]\d{3})+`)
	decimalTailRE  = regexp.MustCompile(`[.,]\d{2}$`)
)

// NormalizeAmount converts a formatted number into a decimal.
//
// Separator rules:
//   - comma and period both present: the right-most one is the decimal
//     separator, the other is a thousands separator;
//   - only commas: a comma followed by exactly two digits at the end is the
//     decimal separator, every other comma groups thousands;
//   - only periods: several periods, or a single period followed by exactly
//     three digits after a 1-3 digit non-zero integer part, group thousands;
//     otherwise the period is the decimal separator.
//
// Spaces, apostrophes and currency symbols are ignored.
func NormalizeAmount(raw string) (decimal.Decimal, error) {
	intPart, frac, err := splitAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	num := intPart
	if frac != "" {
		num += "." + frac
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "extract: parse %q", raw)
	}
	return d, nil
}

// splitAmount returns the integer digits and the fractional digits of raw.
func splitAmount(raw string) (string, string, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return "", "", eris.Errorf("extract: no digits in %q", raw)
	}

	var intPart, frac string
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		last := max(lastComma, lastDot)
		intPart, frac = s[:last], s[last+1:]
		if strings.ContainsAny(frac, ".,") {
			return "", "", eris.Errorf("extract: malformed separators in %q", raw)
		}
	case lastComma >= 0:
		if twoDigitTailRE.MatchString(s) {
			intPart, frac = s[:lastComma], s[lastComma+1:]
		} else {
			intPart = s
		}
	case lastDot >= 0:
		intPart, frac = splitPeriods(s)
	default:
		intPart = s
	}

	intPart = digitsOnly(intPart)
	if intPart == "" {
		intPart = "0"
	}
	return intPart, frac, nil
}

func splitPeriods(s string) (string, string) {
	segs := strings.Split(s, ".")
	last := segs[len(segs)-1]
	if len(segs) > 2 {
		if len(last) == 3 {
			return s, ""
		}
		return strings.Join(segs[:len(segs)-1], ""), last
	}
	head := segs[0]
	if len(last) == 3 && len(head) >= 1 && len(head) <= 3 && head[0] != '0' {
		return s, ""
	}
	return head, last
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// hasFraction reports whether raw carries a decimal part.
func hasFraction(raw string) bool {
	_, frac, err := splitAmount(raw)
	return err == nil && frac != ""
}

// isGrouped reports digit-grouped formatting: a thousands separator or a
// two-digit decimal tail.
func isGrouped(raw string) bool {
	return groupedRE.MatchString(raw) || decimalTailRE.MatchString(raw)
}
