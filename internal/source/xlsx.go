package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/claimcheck/internal/model"
)

// XLSXSource reads spreadsheets. Each sheet becomes one page whose only
// table is the sheet itself; the page text is the rows joined with tabs.
type XLSXSource struct{}

func (XLSXSource) Pages(ctx context.Context, path string) ([]model.Page, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	var pages []model.Page
	for i, sheet := range f.Sheets {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		rows := sheetRows(sheet)
		var sb strings.Builder
		for _, r := range rows {
			sb.WriteString(strings.Join(r, "\t"))
			sb.WriteByte('\n')
		}
		page := model.Page{
			Number:       i + 1,
			Text:         sb.String(),
			HasTextLayer: true,
		}
		if len(rows) > 0 {
			page.Tables = []model.Table{{Page: i + 1, Source: "xlsx:" + sheet.Name, Rows: rows}}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// sheetRows returns the non-empty rows of a sheet with trailing blank
// cells trimmed.
func sheetRows(sheet *xlsx.Sheet) [][]string {
	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		last := len(cells)
		for last > 0 && strings.TrimSpace(cells[last-1]) == "" {
			last--
		}
		if last == 0 {
			continue
		}
		rows = append(rows, cells[:last])
	}
	return rows
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
