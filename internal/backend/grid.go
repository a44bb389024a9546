package backend

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/claimcheck/internal/model"
)

var (
	pipeRowRE       = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	pipeSeparatorRE = regexp.MustCompile(`^\s*\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)*\|?\s*$`)
)

// minGap is the smallest column gap accepted regardless of edge tolerance.
const minGap = 2

// DetectTables finds tables in a page of layout text. Markdown pipe tables
// are taken as-is. Other tables are blocks of consecutive lines that split
// into two or more cells on runs of at least EdgeTolerance spaces (or
// tabs); a block is kept when it has two or more lines and the share of
// lines with the block's most common cell count reaches LineSensitivity.
func DetectTables(text string, page int, source string, t model.Tunables) []model.Table {
	gap := max(minGap, int(math.Round(t.EdgeTolerance)))
	splitter := regexp.MustCompile(`\t+| {` + strconv.Itoa(gap) + `,}`)

	var tables []model.Table
	var block, pipes [][]string

	flushBlock := func() {
		if len(block) >= 2 && consistency(block) >= t.LineSensitivity {
			tables = append(tables, model.Table{Page: page, Source: source, Rows: block})
		}
		block = nil
	}
	flushPipes := func() {
		if len(pipes) >= 2 {
			tables = append(tables, model.Table{Page: page, Source: source, Rows: pipes})
		}
		pipes = nil
	}

	for line := range strings.SplitSeq(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if pipeRowRE.MatchString(trimmed) {
			flushBlock()
			if !pipeSeparatorRE.MatchString(trimmed) {
				pipes = append(pipes, pipeCells(trimmed))
			}
			continue
		}
		flushPipes()

		cells := splitCells(splitter, trimmed)
		if len(cells) < 2 {
			flushBlock()
			continue
		}
		block = append(block, cells)
	}
	flushBlock()
	flushPipes()
	return tables
}

func splitCells(re *regexp.Regexp, line string) []string {
	if line == "" {
		return nil
	}
	parts := re.Split(line, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pipeCells(line string) []string {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// consistency is the share of rows having the most common cell count.
func consistency(rows [][]string) float64 {
	counts := map[int]int{}
	best := 0
	for _, r := range rows {
		counts[len(r)]++
		best = max(best, counts[len(r)])
	}
	return float64(best) / float64(len(rows))
}
