// Package incident reads incident tables, turns rows into routing requests
// and writes the augmented results back out.
package incident

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// Table is a header plus string rows. Rows may be shorter than the header;
// missing cells read as empty.
type Table struct {
	Header []string
	Rows   [][]string
}

var fold = cases.Fold()

func foldName(s string) string {
	return fold.String(strings.TrimSpace(s))
}

// Index returns the position of the named column, matched case-insensitively
// after trimming, or -1.
func (t *Table) Index(name string) int {
	want := foldName(name)
	for i, h := range t.Header {
		if foldName(h) == want {
			return i
		}
	}
	return -1
}

// Cell returns row i, column j, or "" when the row is short.
func (t *Table) Cell(i, j int) string {
	if j < 0 || j >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][j]
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Format names a table file format.
type Format string

// Supported formats.
const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatGeoJSON Format = "geojson"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatGeoJSON:
		return f, nil
	case "json":
		return FormatGeoJSON, nil
	default:
		return "", eris.Errorf("incident: unsupported format %q", s)
	}
}

// FormatFromPath infers a format from a file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".geojson", ".json":
		return FormatGeoJSON
	default:
		return FormatCSV
	}
}

// ReadOptions configures ReadFile.
type ReadOptions struct {
	CSV  CSVOptions
	XLSX XLSXOptions
}

// ReadFile reads a CSV or XLSX table, chosen by extension.
func ReadFile(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	switch FormatFromPath(path) {
	case FormatXLSX:
		return ReadXLSX(path, opts.XLSX)
	case FormatCSV:
		return ReadCSVFile(ctx, path, opts.CSV)
	default:
		return nil, eris.Errorf("incident: cannot read %s as an input table", path)
	}
}
