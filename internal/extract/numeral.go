package extract

import (
	"strconv"
	"strings"
)

// Numeral is a parsed hierarchical citation.
type Numeral struct {
	ID       string
	Segments []int
	Level    int
	Parent   string
}

// ParseNumeral splits a dotted citation. Level is the number of
// separators; Parent drops the last segment and is empty at level 0.
// Leading zeros are removed so "08.04" and "8.4" compare equal.
func ParseNumeral(s string) Numeral {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "."), ".")
	segs := make([]int, 0, len(parts))
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			clean = append(clean, p)
			continue
		}
		segs = append(segs, n)
		clean = append(clean, strconv.Itoa(n))
	}
	n := Numeral{
		ID:       strings.Join(clean, "."),
		Segments: segs,
		Level:    len(clean) - 1,
	}
	if n.Level > 0 {
		n.Parent = strings.Join(clean[:len(clean)-1], ".")
	}
	return n
}

// IsAncestor reports whether a is a strict ancestor of b.
func IsAncestor(a, b string) bool {
	return a != "" && strings.HasPrefix(b, a+".")
}
