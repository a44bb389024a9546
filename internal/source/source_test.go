package source

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpenText(t *testing.T) {
	path := writeFile(t, "oficio.txt",
		"Oficio de comisión número SFP-123 para el personal operativo\fHospedaje importe $350.00\f")

	doc, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, 1, doc.Pages[0].Number)
	assert.Equal(t, 2, doc.Pages[1].Number)
	assert.True(t, doc.Pages[0].HasTextLayer)
	assert.True(t, doc.Pages[1].HasTextLayer)
	assert.Equal(t, path, doc.Path)
	assert.Positive(t, doc.SizeBytes)
	assert.NotEmpty(t, doc.ID)
}

func TestOpenStableID(t *testing.T) {
	path := writeFile(t, "a.txt", "texto")
	a, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	b, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, DocumentID(path+".bak"))
}

func TestOpenUnsupported(t *testing.T) {
	path := writeFile(t, "scan.tiff", "II*")
	_, err := Open(context.Background(), path, Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupported))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: stat")
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		pages     int
		textLayer []bool
	}{
		{"empty", "", 0, nil},
		{"single", "una sola página con suficiente texto", 1, []bool{true}},
		{"trailing form feed", "página uno con bastante texto\f", 1, []bool{true}},
		{"blank scanned page", "página uno con bastante texto\f   \n  \fcorto", 3, []bool{true, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := splitPages(tt.text)
			require.Len(t, pages, tt.pages)
			for i, want := range tt.textLayer {
				assert.Equal(t, want, pages[i].HasTextLayer, "page %d", i+1)
				assert.Equal(t, i+1, pages[i].Number)
			}
		})
	}
}

func TestHasTextLayer(t *testing.T) {
	assert.False(t, hasTextLayer(strings.Repeat(" ", 100)))
	assert.False(t, hasTextLayer("a b c d e f g h i j k l m n o p q r s"))
	assert.True(t, hasTextLayer("abcdefghijklmnopqrst"))
}

func TestOpenPDF(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "pdftotext")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nprintf 'Concepto    Importe\\nHospedaje   350.00 MXN\\n\\f\\n\\f'\n"), 0o755))
	path := writeFile(t, "viaticos.pdf", "%PDF-1.7")

	doc, err := Open(context.Background(), path, Options{PdfToTextPath: bin, MaxPages: 5})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)
	assert.True(t, doc.Pages[0].HasTextLayer)
	assert.False(t, doc.Pages[1].HasTextLayer)
}

func TestOpenPDFFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "pdftotext")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 'May not be a PDF file' >&2\nexit 1\n"), 0o755))
	path := writeFile(t, "broken.pdf", "garbage")

	_, err := Open(context.Background(), path, Options{PdfToTextPath: bin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "May not be a PDF file")
}

func createTestXLSX(t *testing.T, sheets []string, rows map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows[name] {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "comprobacion.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestOpenXLSX(t *testing.T) {
	path := createTestXLSX(t, []string{"Gastos", "Vacia"}, map[string][][]string{
		"Gastos": {
			{"Concepto", "Importe"},
			{"Hospedaje", "350.00"},
			{"Alimentos", "120.50"},
		},
	})

	doc, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)

	first := doc.Pages[0]
	require.Len(t, first.Tables, 1)
	assert.Equal(t, "xlsx:Gastos", first.Tables[0].Source)
	assert.Equal(t, []string{"Hospedaje", "350.00"}, first.Tables[0].Rows[1])
	assert.Contains(t, first.Text, "Alimentos\t120.50")

	assert.Empty(t, doc.Pages[1].Tables)
	assert.Len(t, doc.NativeTables(0), 1)
}

func TestOpenXLSXCorrupt(t *testing.T) {
	path := writeFile(t, "broken.xlsx", "not a zip archive")
	_, err := Open(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}
