package source

import (
	"context"

	"github.com/sells-group/claimcheck/internal/backend"
	"github.com/sells-group/claimcheck/internal/model"
)

// PDFSource extracts the text layer of a PDF with pdftotext. Scanned
// pages come back with little or no text and are flagged accordingly.
type PDFSource struct {
	Bin      string
	MaxPages int
}

func (s PDFSource) Pages(ctx context.Context, path string) ([]model.Page, error) {
	bin := s.Bin
	if bin == "" {
		bin = "pdftotext"
	}
	text, err := backend.RunPdfToText(ctx, bin, path, s.MaxPages)
	if err != nil {
		return nil, err
	}
	return splitPages(text), nil
}
