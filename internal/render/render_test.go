package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		fields   Fields
		expected string
	}{
		{
			name:     "single placeholder",
			template: "Ola {{nome}}",
			fields:   Fields{{Key: "nome", Value: "Ana"}},
			expected: "Ola Ana",
		},
		{
			name:     "repeated placeholder",
			template: "{{nome}} / {{nome}}",
			fields:   Fields{{Key: "nome", Value: "Ana"}},
			expected: "Ana / Ana",
		},
		{
			name:     "unmatched placeholder left verbatim",
			template: "Hi {{nome}}, course {{curso}}",
			fields:   Fields{{Key: "nome", Value: "Ana"}},
			expected: "Hi Ana, course {{curso}}",
		},
		{
			name:     "case sensitive",
			template: "{{Nome}} {{nome}}",
			fields:   Fields{{Key: "nome", Value: "Ana"}},
			expected: "{{Nome}} Ana",
		},
		{
			name:     "no whitespace trimming inside delimiters",
			template: "{{ nome }}",
			fields:   Fields{{Key: "nome", Value: "Ana"}},
			expected: "{{ nome }}",
		},
		{
			name:     "later pass rewrites inserted text",
			template: "{{a}}{{b}}",
			fields:   Fields{{Key: "a", Value: "{{b}}"}, {Key: "b", Value: "Z"}},
			expected: "ZZ",
		},
		{
			name:     "earlier pass does not see later insertions",
			template: "{{a}}{{b}}",
			fields:   Fields{{Key: "b", Value: "{{a}}"}, {Key: "a", Value: "Z"}},
			expected: "ZZ",
		},
		{
			name:     "empty value erases placeholder",
			template: "[{{x}}]",
			fields:   Fields{{Key: "x", Value: ""}},
			expected: "[]",
		},
		{
			name:     "no fields",
			template: "{{x}}",
			fields:   nil,
			expected: "{{x}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Render(tt.template, tt.fields))
		})
	}
}

func TestRenderReplacesEverySuppliedKey(t *testing.T) {
	template := "<h1>{{nome}}</h1><p>{{curso}} - {{data}}</p><footer>{{assinatura}}</footer>"
	fields := Fields{
		{Key: "nome", Value: "Ana"},
		{Key: "curso", Value: "Go"},
		{Key: "data", Value: "2024-01-01"},
	}

	out := Render(template, fields)
	for _, f := range fields {
		assert.NotContains(t, out, "{{"+f.Key+"}}")
	}
	assert.Contains(t, out, "{{assinatura}}")
}

func TestFieldsSetKeepsPosition(t *testing.T) {
	f := Fields{{Key: "email", Value: "fixed@x.com"}, {Key: "certificate_id", Value: "1"}}
	f.Set("email", "row@x.com")
	f.Set("curso", "Go")

	require.Len(t, f, 3)
	assert.Equal(t, Field{Key: "email", Value: "row@x.com"}, f[0])
	assert.Equal(t, "curso", f[2].Key)

	v, ok := f.Get("email")
	assert.True(t, ok)
	assert.Equal(t, "row@x.com", v)
}

func TestFieldsMergeOverridesLowerPrecedence(t *testing.T) {
	fixed := Fields{{Key: "name", Value: "builtin"}, {Key: "link", Value: "http://v"}}
	row := Fields{{Key: "name", Value: "Ana"}, {Key: "curso", Value: "Go"}}
	fixed.Merge(row)

	assert.Equal(t, "Ana {{x}} http://v Go", Render("{{name}} {{x}} {{link}} {{curso}}", fixed))
	assert.Equal(t, map[string]string{"name": "Ana", "link": "http://v", "curso": "Go"}, fixed.Map())
}

func TestFieldsJSONKeepsOrder(t *testing.T) {
	f := Fields{{Key: "z", Value: "{{a}}"}, {Key: "a", Value: "X"}}
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"{{a}}","a":"X"}`, string(raw))

	var decoded Fields
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, f, decoded)
	assert.Equal(t, "X", Render("{{z}}", decoded))
}

func TestFieldsUnmarshalStringifiesValues(t *testing.T) {
	var f Fields
	require.NoError(t, json.Unmarshal([]byte(`{"n":3,"ok":true,"x":null,"l":[1,"b"],"n":4}`), &f))
	assert.Equal(t, Fields{
		{Key: "n", Value: "4"},
		{Key: "ok", Value: "true"},
		{Key: "x", Value: ""},
		{Key: "l", Value: `[1,"b"]`},
	}, f)

	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &f))
}

func TestDetectFields(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected []string
	}{
		{"none", "<p>plain</p>", []string{}},
		{"first seen order", "{{b}} {{a}} {{b}} {{c}}", []string{"b", "a", "c"}},
		{"html attributes", `<a href="{{link}}">{{nome}}</a>`, []string{"link", "nome"}},
		{"nested braces ignored", "{{{x}}}", []string{"x"}},
		{"unterminated", "{{open", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFields(tt.template))
		})
	}
}

func TestTextFromHTML(t *testing.T) {
	html := `<html><head><title>x</title><style>p{color:red}</style></head>
<body><h1>Certificado</h1><p>Ola   Ana,<br>parabens!</p><ul><li>Go</li><li>SQL</li></ul></body></html>`

	text, err := TextFromHTML(html)
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	assert.Equal(t, []string{"Certificado", "Ola Ana,", "parabens!", "Go", "SQL"}, lines)
}
