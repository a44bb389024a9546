// Package profile measures a document before extraction: how much of it
// has a usable text layer, how tabular it looks, and what kind of document
// it is.
package profile

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/model"
)

// Scoring constants.
const (
	// A page needs this many non-space characters to count as having text.
	MinUsableChars = 20
	// Tabular indicators per page that saturate table density.
	indicatorsPerPageCap = 10.0
	// Characters per page that saturate text density.
	charsPerPageCap = 3000.0
	// Pages at which the page-count term of complexity saturates.
	complexityPageCap = 100.0

	complexityPageWeight  = 0.3
	complexityTableWeight = 0.4
	complexityScanWeight  = 0.3

	// Minimum keyword hits before a document type is assigned.
	minTypeHits = 3
)

// Profile computes a DocumentProfile. A nil or page-less document yields a
// zeroed profile flagged Unanalyzable; Profile never fails.
func Profile(doc *model.Document) model.DocumentProfile {
	if doc == nil || len(doc.Pages) == 0 {
		p := model.DocumentProfile{DocType: model.DocTypeUnknown, Unanalyzable: true}
		if doc != nil {
			p.SizeBytes = doc.SizeBytes
		}
		return p
	}

	p := model.DocumentProfile{
		SizeBytes:    doc.SizeBytes,
		PageCount:    len(doc.Pages),
		ScanQuality:  ScanQuality(doc.Pages),
		TableDensity: TableDensity(doc.Pages),
		TextDensity:  TextDensity(doc.Pages),
		DocType:      Classify(doc.Text(0)),
	}
	p.Complexity = Complexity(p.PageCount, p.TableDensity, p.ScanQuality)
	return p
}

// ScanQuality is the fraction of pages with a usable text layer.
func ScanQuality(pages []model.Page) float64 {
	if len(pages) == 0 {
		return 0
	}
	usable := 0
	for _, pg := range pages {
		if pg.HasTextLayer && nonSpace(pg.Text) >= MinUsableChars {
			usable++
		}
	}
	return float64(usable) / float64(len(pages))
}

// TableDensity counts tabular indicators (native tables, column-aligned
// lines, pipe-table rows) normalised by page count, saturating at 1.
func TableDensity(pages []model.Page) float64 {
	if len(pages) == 0 {
		return 0
	}
	n := 0
	for _, pg := range pages {
		n += len(pg.Tables) * 3
		for _, line := range strings.Split(pg.Text, "\n") {
			if isTabularLine(line) {
				n++
			}
		}
	}
	return math.Min(1, float64(n)/float64(len(pages))/indicatorsPerPageCap)
}

// TextDensity is the mean non-space characters per page relative to a
// full page of prose, saturating at 1.
func TextDensity(pages []model.Page) float64 {
	if len(pages) == 0 {
		return 0
	}
	total := 0
	for _, pg := range pages {
		total += nonSpace(pg.Text)
	}
	return math.Min(1, float64(total)/float64(len(pages))/charsPerPageCap)
}

// Complexity weighs page count, table density and the share of pages
// without a text layer.
func Complexity(pages int, tableDensity, scanQuality float64) float64 {
	c := complexityPageWeight*math.Min(1, float64(pages)/complexityPageCap) +
		complexityTableWeight*clamp01(tableDensity) +
		complexityScanWeight*(1-clamp01(scanQuality))
	return clamp01(c)
}

var typeKeywords = []struct {
	t        model.DocType
	keywords []string
}{
	{model.DocTypeFinancial, []string{
		"importe", "subtotal", "total", "factura", "iva", "viatico", "pago",
		"monto", "tarifa", "comprobante", "invoice", "amount", "balance",
	}},
	{model.DocTypeLegal, []string{
		"articulo", "numeral", "fraccion", "lineamiento", "reglamento",
		"decreto", "ley ", "clausula", "article", "section", "clause",
	}},
	{model.DocTypeForm, []string{
		"nombre:", "firma", "fecha:", "rfc", "curp", "folio", "solicitud",
		"name:", "signature", "date:",
	}},
}

// Classify assigns a coarse document type by keyword counts. Ties resolve
// in the order financial, legal, form.
func Classify(text string) model.DocType {
	if strings.TrimSpace(text) == "" {
		return model.DocTypeUnknown
	}
	folded := extract.Fold(text)
	best, bestHits := model.DocTypeGeneric, 0
	for _, tk := range typeKeywords {
		hits := 0
		for _, kw := range tk.keywords {
			hits += strings.Count(folded, kw)
		}
		if hits >= minTypeHits && hits > bestHits {
			best, bestHits = tk.t, hits
		}
	}
	return best
}

var (
	columnGapRE = regexp.MustCompile(` {2,}|\t+`)
	pipeRowRE   = regexp.MustCompile(`^\s*\|.*\|.*\|\s*$`)
)

// isTabularLine reports lines with at least two column gaps or a pipe-table
// row.
func isTabularLine(line string) bool {
	if pipeRowRE.MatchString(line) {
		return true
	}
	return len(columnGapRE.FindAllStringIndex(strings.TrimSpace(line), -1)) >= 2
}

func nonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
