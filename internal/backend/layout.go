package backend

import (
	"context"

	"github.com/sells-group/claimcheck/internal/model"
)

// Layout detects tables in the text layer of each page.
type Layout struct{}

// NewLayout creates the layout grid backend.
func NewLayout() *Layout { return &Layout{} }

func (l *Layout) Name() string { return LayoutGrid }

func (l *Layout) Extract(ctx context.Context, doc *model.Document, t model.Tunables) (*Result, error) {
	var tables []model.Table
	for i, p := range doc.Pages {
		if t.MaxPages > 0 && i >= t.MaxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tables = append(tables, DetectTables(p.Text, p.Number, LayoutGrid, t)...)
	}
	return newResult(LayoutGrid, tables, "")
}
