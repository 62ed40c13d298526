// Package tabular parses uploaded rosters and converts the legacy delimited
// encoding of a dataset into its canonical JSON form.
//
// The cell splitter is deliberately naive: values are split on every comma
// after trimming, and only one surrounding double quote is stripped from each
// side. A comma inside a quoted value therefore shifts the remaining columns.
// Datasets migrated by earlier versions rely on that alignment, so it must
// not be "fixed" here.
package tabular

import (
	"strings"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/render"
)

// Table is the decoded view of a dataset: ordered columns and rows whose
// values align with them.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Fields converts row i to an ordered field set keyed by column name.
func (t *Table) Fields(i int) render.Fields {
	row := t.Rows[i]
	fields := make(render.Fields, 0, len(t.Columns))
	for c, col := range t.Columns {
		var v string
		if c < len(row) {
			v = row[c]
		}
		fields.Set(col, v)
	}
	return fields
}

// Value returns the cell of row i under column, or "" when absent.
func (t *Table) Value(i int, column string) string {
	for c, col := range t.Columns {
		if col == column {
			if c < len(t.Rows[i]) {
				return t.Rows[i][c]
			}
			return ""
		}
	}
	return ""
}

// Ingest parses raw upload text. The first line is the header; every later
// non-blank line is a row.
func Ingest(raw string) (*Table, error) {
	lines := SplitLines(raw)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, appErrors.NewMalformedInput("no header line")
	}

	columns := SplitCells(lines[0])
	if !hasNamedColumn(columns) {
		return nil, appErrors.NewMalformedInput("no columns detected")
	}

	return &Table{
		Columns: columns,
		Rows:    parseRows(lines[1:], len(columns)),
	}, nil
}

// SplitLines splits raw text on newlines, tolerating CRLF.
func SplitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// SplitCells splits one line on commas and cleans each cell.
func SplitCells(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = cleanCell(p)
	}
	return parts
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, `"`)
	v = strings.TrimSuffix(v, `"`)
	return v
}

func parseRows(lines []string, width int) [][]string {
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, fitRow(SplitCells(line), width))
	}
	return rows
}

// fitRow pads short rows with empty values and truncates long ones so every
// row has exactly width values.
func fitRow(cells []string, width int) []string {
	if len(cells) == width {
		return cells
	}
	row := make([]string, width)
	copy(row, cells)
	return row
}

func hasNamedColumn(columns []string) bool {
	for _, c := range columns {
		if c != "" {
			return true
		}
	}
	return false
}
