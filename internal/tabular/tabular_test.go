package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/render"
)

func TestIngest(t *testing.T) {
	raw := "nome,email,curso\r\n\"Ana\",ana@x.com,Go\r\n\r\n  Beto , b@x.com ,SQL\n\n"

	table, err := Ingest(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"nome", "email", "curso"}, table.Columns)
	assert.Equal(t, [][]string{
		{"Ana", "ana@x.com", "Go"},
		{"Beto", "b@x.com", "SQL"},
	}, table.Rows)
}

func TestIngestFitsRowsToHeader(t *testing.T) {
	table, err := Ingest("a,b,c\n1\n1,2,3,4")
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1", "", ""}, {"1", "2", "3"}}, table.Rows)
	for _, row := range table.Rows {
		assert.Len(t, row, len(table.Columns))
	}
}

func TestIngestQuotedCommaMisaligns(t *testing.T) {
	table, err := Ingest("nome,cidade,email\n\"Silva, Ana\",Recife,ana@x.com")
	require.NoError(t, err)

	// Values are split on every comma before quote stripping, so the quoted
	// value spills into the next column and the last value is dropped.
	assert.Equal(t, []string{"Silva", "Ana", "Recife"}, table.Rows[0])
}

func TestIngestRejectsMissingHeader(t *testing.T) {
	for _, raw := range []string{"", "\nAna,X", " , ,"} {
		_, err := Ingest(raw)
		var malformed *appErrors.MalformedInputError
		assert.ErrorAs(t, err, &malformed, "input %q", raw)
	}
}

func TestTableFields(t *testing.T) {
	table := &Table{
		Columns: []string{"nome", "email"},
		Rows:    [][]string{{"Ana", "ana@x.com"}},
	}

	assert.Equal(t, render.Fields{
		{Key: "nome", Value: "Ana"},
		{Key: "email", Value: "ana@x.com"},
	}, table.Fields(0))
	assert.Equal(t, "ana@x.com", table.Value(0, "email"))
	assert.Equal(t, "", table.Value(0, "missing"))
}

func TestConvertLegacy(t *testing.T) {
	tests := []struct {
		name     string
		columns  string
		rows     string
		expected *Table
	}{
		{
			name:    "header repeated in rows",
			columns: "nome,curso",
			rows:    "nome,curso\nAna,X\nBeto,Y",
			expected: &Table{
				Columns: []string{"nome", "curso"},
				Rows:    [][]string{{"Ana", "X"}, {"Beto", "Y"}},
			},
		},
		{
			name:    "no header in rows",
			columns: "nome,curso",
			rows:    "Ana,X\nBeto,Y\n",
			expected: &Table{
				Columns: []string{"nome", "curso"},
				Rows:    [][]string{{"Ana", "X"}, {"Beto", "Y"}},
			},
		},
		{
			name:    "json columns with text rows",
			columns: `["nome","curso"]`,
			rows:    "\n\nnome,curso\n   \nAna,X",
			expected: &Table{
				Columns: []string{"nome", "curso"},
				Rows:    [][]string{{"Ana", "X"}},
			},
		},
		{
			name:    "text columns with json object rows",
			columns: "nome,curso",
			rows:    `[{"nome":"Ana","curso":"X"},{"nome":"","curso":" "}]`,
			expected: &Table{
				Columns: []string{"nome", "curso"},
				Rows:    [][]string{{"Ana", "X"}},
			},
		},
		{
			name:    "blank first column keeps first row",
			columns: ",email",
			rows:    "Ana,a@x\nBeto,b@x",
			expected: &Table{
				Columns: []string{"", "email"},
				Rows:    [][]string{{"Ana", "a@x"}, {"Beto", "b@x"}},
			},
		},
		{
			name:    "json string rows are delimited lines",
			columns: "nome,curso",
			rows:    `["Ana,X"," , ","Beto"]`,
			expected: &Table{
				Columns: []string{"nome", "curso"},
				Rows:    [][]string{{"Ana", "X"}, {"Beto", ""}},
			},
		},
		{
			name:    "quoted legacy columns",
			columns: `"nome", "curso"`,
			rows:    "",
			expected: &Table{
				Columns: []string{"nome", "curso"},
				Rows:    [][]string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ConvertLegacy(tt.columns, tt.rows)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, table)
		})
	}
}

func TestConvertLegacyRejectsEmptyColumns(t *testing.T) {
	_, err := ConvertLegacy("", "Ana,X")
	var malformed *appErrors.MalformedInputError
	assert.ErrorAs(t, err, &malformed)
}

func TestIsCanonical(t *testing.T) {
	assert.True(t, IsCanonical(`["a","b"]`, `[["1","2"]]`))
	assert.True(t, IsCanonical(`["a"]`, `[]`))
	assert.True(t, IsCanonical(`["a"]`, `[{"a":"1"}]`))
	assert.True(t, IsCanonical(`[1,2]`, `[["a","b"]]`))
	assert.True(t, IsCanonical(`["a","b"]`, `["1,2",[3,{"x":1}]]`))
	assert.False(t, IsCanonical("a,b", `[["1","2"]]`))
	assert.False(t, IsCanonical(`["a","b"]`, "1,2"))
	assert.False(t, IsCanonical(`{"a":1}`, `[]`))
	assert.False(t, IsCanonical("", ""))
}

func TestEncodeDecodeIsStable(t *testing.T) {
	legacy, err := ConvertLegacy("nome,curso", "nome,curso\nAna,X\nBeto,Y")
	require.NoError(t, err)

	cols, rows, err := Encode(legacy)
	require.NoError(t, err)
	assert.Equal(t, `["nome","curso"]`, cols)
	assert.Equal(t, `[["Ana","X"],["Beto","Y"]]`, rows)
	assert.True(t, IsCanonical(cols, rows))

	decoded, err := Decode(cols, rows)
	require.NoError(t, err)
	assert.Equal(t, legacy, decoded)
}

func TestDecodeCanonicalStringifiesScalars(t *testing.T) {
	table, err := Decode(`["n","x","ok"]`, `[["Ana", 3, true], ["Beto", null]]`)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Ana", "3", "true"}, {"Beto", "", ""}}, table.Rows)
}

func TestDecodeCanonicalStringifiesColumnsAndNestedCells(t *testing.T) {
	table, err := Decode(`[1,2.5,"c"]`, `[["a",{"k":[1]},12345678901234567890],"x, y"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2.5", "c"}, table.Columns)
	assert.Equal(t, [][]string{
		{"a", `{"k":[1]}`, "12345678901234567890"},
		{"x", "y", ""},
	}, table.Rows)
}

func TestEncodeEmptyTable(t *testing.T) {
	cols, rows, err := Encode(&Table{})
	require.NoError(t, err)
	assert.Equal(t, "[]", cols)
	assert.Equal(t, "[]", rows)
}
