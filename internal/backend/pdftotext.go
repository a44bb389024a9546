package backend

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/model"
)

// PdfToTextBackend re-renders the PDF with pdftotext in layout mode and
// grid-detects tables in the output.
type PdfToTextBackend struct {
	binPath string
}

// NewPdfToText creates the backend. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToTextBackend {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToTextBackend{binPath: binPath}
}

func (p *PdfToTextBackend) Name() string { return PdfToText }

func (p *PdfToTextBackend) Extract(ctx context.Context, doc *model.Document, t model.Tunables) (*Result, error) {
	if !strings.EqualFold(filepath.Ext(doc.Path), ".pdf") {
		return nil, eris.Errorf("pdftotext: %s is not a PDF", doc.Path)
	}
	out, err := RunPdfToText(ctx, p.binPath, doc.Path, t.MaxPages)
	if err != nil {
		return nil, err
	}

	var tables []model.Table
	for i, page := range strings.Split(out, "\f") {
		tables = append(tables, DetectTables(page, i+1, PdfToText, t)...)
	}
	return newResult(PdfToText, tables, out)
}

// RunPdfToText runs pdftotext -layout on path and returns stdout. Pages are
// separated by form feeds. maxPages <= 0 converts every page.
func RunPdfToText(ctx context.Context, binPath, path string, maxPages int) (string, error) {
	args := []string{"-layout"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, "-")
	cmd := exec.CommandContext(ctx, binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "pdftotext: failed for %s: %s", path, stderr.String())
	}
	return stdout.String(), nil
}
