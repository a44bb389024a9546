// Package model defines the data types shared by the extraction, validation,
// and remediation packages.
package model

import "strings"

// Table is a rectangular block of cells produced by a page source or a
// backend. Rows may be ragged; consumers must not assume equal lengths.
type Table struct {
	Page   int        `json:"page"`
	Source string     `json:"source"`
	Rows   [][]string `json:"rows"`
}

// Columns returns the widest row length.
func (t Table) Columns() int {
	n := 0
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// Page is one page of a document as delivered by a page source.
type Page struct {
	Number       int     `json:"number"`
	Text         string  `json:"text"`
	HasTextLayer bool    `json:"has_text_layer"`
	Tables       []Table `json:"tables,omitempty"`
}

// Document is the unit of work for one extraction run.
type Document struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Pages     []Page `json:"pages"`
}

// Text joins the text of the first maxPages pages with form feeds.
// maxPages <= 0 means all pages.
func (d *Document) Text(maxPages int) string {
	if d == nil {
		return ""
	}
	pages := d.Pages
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\f")
}

// NativeTables returns the tables carried by the first maxPages pages.
func (d *Document) NativeTables(maxPages int) []Table {
	if d == nil {
		return nil
	}
	var out []Table
	for i, p := range d.Pages {
		if maxPages > 0 && i >= maxPages {
			break
		}
		out = append(out, p.Tables...)
	}
	return out
}
