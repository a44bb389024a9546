package source

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/model"
)

// TextSource reads plain text files. Form feeds separate pages.
type TextSource struct{}

func (TextSource) Pages(ctx context.Context, path string) ([]model.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "source: text")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	return splitPages(string(data)), nil
}
