package backend

import (
	"context"

	"github.com/sells-group/claimcheck/internal/model"
)

// Native returns the tables the page source already carries (spreadsheet
// sheets, tagged PDF tables).
type Native struct{}

// NewNative creates the native table backend.
func NewNative() *Native { return &Native{} }

func (n *Native) Name() string { return NativeTables }

func (n *Native) Extract(ctx context.Context, doc *model.Document, t model.Tunables) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tables := doc.NativeTables(t.MaxPages)
	for i := range tables {
		tables[i].Source = NativeTables
	}
	return newResult(NativeTables, tables, "")
}
