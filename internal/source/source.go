// Package source loads documents from disk into pages of text and native
// tables. The extraction core only sees the resulting model.Document.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/model"
)

// ErrUnsupported is returned for file types no source can read.
var ErrUnsupported = eris.New("source: unsupported document type")

// minTextLayerChars is the number of non-space characters a page needs
// before its text layer is considered usable.
const minTextLayerChars = 20

// Source reads the pages of one document.
type Source interface {
	Pages(ctx context.Context, path string) ([]model.Page, error)
}

// Options configures Open.
type Options struct {
	PdfToTextPath string
	MaxPages      int
}

// ForPath returns the source for a file extension.
func ForPath(path string, opts Options) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text":
		return TextSource{}, nil
	case ".pdf":
		return PDFSource{Bin: opts.PdfToTextPath, MaxPages: opts.MaxPages}, nil
	case ".xlsx":
		return XLSXSource{}, nil
	default:
		return nil, eris.Wrapf(ErrUnsupported, "%s", filepath.Base(path))
	}
}

// Open reads the document at path. The document id is stable for a given
// absolute path so repeated runs over one file share history.
func Open(ctx context.Context, path string, opts Options) (*model.Document, error) {
	src, err := ForPath(path, opts)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: stat %s", path)
	}
	if info.IsDir() {
		return nil, eris.Errorf("source: %s is a directory", path)
	}

	pages, err := src.Pages(ctx, path)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:        DocumentID(path),
		Path:      path,
		SizeBytes: info.Size(),
		Pages:     pages,
	}
	zap.L().Debug("source: opened document",
		zap.String("document", doc.ID),
		zap.String("path", path),
		zap.Int("pages", len(pages)),
		zap.Int64("size_bytes", doc.SizeBytes),
	)
	return doc, nil
}

// DocumentID derives a name-based UUID from the absolute path.
func DocumentID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

// splitPages cuts text on form feeds into numbered pages. A trailing
// form feed does not produce an empty page.
func splitPages(text string) []model.Page {
	text = strings.TrimSuffix(text, "\f")
	if text == "" {
		return nil
	}
	var pages []model.Page
	n := 0
	for part := range strings.SplitSeq(text, "\f") {
		n++
		pages = append(pages, model.Page{
			Number:       n,
			Text:         part,
			HasTextLayer: hasTextLayer(part),
		})
	}
	return pages
}

func hasTextLayer(text string) bool {
	n := 0
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
			continue
		}
		n++
		if n >= minTextLayerChars {
			return true
		}
	}
	return false
}
