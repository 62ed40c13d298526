package tabular

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
)

var arraySchema = mustSchema(`{"type": "array"}`)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("tabular: invalid schema: %v", err))
	}
	return s
}

func matches(schema *gojsonschema.Schema, raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return false
	}
	return result.Valid()
}

// IsCanonical reports whether both stored encodings parse as JSON arrays.
func IsCanonical(rawColumns, rawRows string) bool {
	return matches(arraySchema, rawColumns) && matches(arraySchema, rawRows)
}

// Decode returns the table for a stored encoding, converting legacy text in
// memory when needed.
func Decode(rawColumns, rawRows string) (*Table, error) {
	if IsCanonical(rawColumns, rawRows) {
		columns, err := decodeColumns(rawColumns)
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows(rawRows, columns, false)
		if err != nil {
			return nil, err
		}
		return &Table{Columns: columns, Rows: rows}, nil
	}
	return ConvertLegacy(rawColumns, rawRows)
}

// ConvertLegacy parses the legacy encoding. Columns are a JSON array or a
// comma-separated string; rows are a JSON array or delimited text whose first
// line is skipped when it repeats the first column name.
func ConvertLegacy(rawColumns, rawRows string) (*Table, error) {
	var columns []string
	if matches(arraySchema, rawColumns) {
		var err error
		if columns, err = decodeColumns(rawColumns); err != nil {
			return nil, err
		}
	} else {
		columns = SplitCells(strings.TrimSpace(rawColumns))
	}
	if !hasNamedColumn(columns) {
		return nil, appErrors.NewMalformedInput("no columns detected")
	}

	if matches(arraySchema, rawRows) {
		rows, err := decodeRows(rawRows, columns, true)
		if err != nil {
			return nil, err
		}
		return &Table{Columns: columns, Rows: rows}, nil
	}

	var lines []string
	for _, l := range SplitLines(rawRows) {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > 0 && columns[0] != "" && strings.Contains(lines[0], columns[0]) {
		lines = lines[1:]
	}

	return &Table{Columns: columns, Rows: parseRows(lines, len(columns))}, nil
}

// Encode returns the canonical JSON encoding of t.
func Encode(t *Table) (rawColumns, rawRows string, err error) {
	columns := t.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := t.Rows
	if rows == nil {
		rows = [][]string{}
	}

	c, err := json.Marshal(columns)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode columns: %w", err)
	}
	r, err := json.Marshal(rows)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rows: %w", err)
	}
	return string(c), string(r), nil
}

func decodeColumns(raw string) ([]string, error) {
	var items []any
	if err := unmarshalNumbers(raw, &items); err != nil {
		return nil, appErrors.NewMalformedInput(fmt.Sprintf("columns: %v", err))
	}
	columns := make([]string, len(items))
	for i, v := range items {
		columns[i] = stringify(v)
	}
	return columns, nil
}

// decodeRows accepts rows stored as value arrays, column-keyed objects or
// delimited lines. A bare scalar is a one-cell row.
func decodeRows(raw string, columns []string, dropBlank bool) ([][]string, error) {
	var items []any
	if err := unmarshalNumbers(raw, &items); err != nil {
		return nil, appErrors.NewMalformedInput(fmt.Sprintf("rows: %v", err))
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		var row []string
		switch x := item.(type) {
		case map[string]any:
			row = make([]string, len(columns))
			for c, col := range columns {
				row[c] = stringify(x[col])
			}
		case []any:
			values := make([]string, len(x))
			for c, v := range x {
				values[c] = stringify(v)
			}
			row = fitRow(values, len(columns))
		case string:
			row = fitRow(SplitCells(x), len(columns))
		default:
			row = fitRow([]string{stringify(x)}, len(columns))
		}
		if dropBlank && isBlank(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func unmarshalNumbers(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// stringify renders a decoded JSON value as cell text. Nested arrays and
// objects keep their JSON form.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return fmt.Sprint(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
