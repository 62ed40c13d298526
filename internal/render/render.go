// Package render is the placeholder substitution engine shared by certificate
// generation and campaign dispatch.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Field is one key/value pair offered for substitution.
type Field struct {
	Key   string
	Value string
}

// Fields is an ordered field set. Order is significant: Render applies one
// pass per field, so text inserted by an earlier field is rewritten by a
// later one whose placeholder it contains.
type Fields []Field

// Set replaces the value of an existing key in place, or appends the key.
// Layering a higher-precedence source with Set therefore overrides the value
// without moving the key.
func (f *Fields) Set(key, value string) {
	for i := range *f {
		if (*f)[i].Key == key {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Key: key, Value: value})
}

// Get returns the value stored for key.
func (f Fields) Get(key string) (string, bool) {
	for _, fld := range f {
		if fld.Key == key {
			return fld.Value, true
		}
	}
	return "", false
}

// Merge sets every field of other on top of f.
func (f *Fields) Merge(other Fields) {
	for _, fld := range other {
		f.Set(fld.Key, fld.Value)
	}
}

// Map returns the fields as a plain map, for JSON snapshots.
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f))
	for _, fld := range f {
		m[fld.Key] = fld.Value
	}
	return m
}

// MarshalJSON encodes the fields as a JSON object whose members follow the
// field order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fld.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(fld.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object in document order. Non-string values
// are kept as their JSON text, null as the empty string.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("render: fields must be a JSON object")
	}

	var out Fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		value, err := fieldValue(v)
		if err != nil {
			return err
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func fieldValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		b, err := json.Marshal(x)
		return string(b), err
	}
}

// Render replaces every literal {{key}} in template with its value, one pass
// per field in order. Matching is exact and case-sensitive. Placeholders
// without a field are left untouched.
func Render(template string, fields Fields) string {
	result := template
	for _, fld := range fields {
		result = strings.ReplaceAll(result, openDelim+fld.Key+closeDelim, fld.Value)
	}
	return result
}

// DetectFields returns the unique placeholder keys of template in
// first-seen order.
func DetectFields(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool, len(matches))
	fields := make([]string, 0, len(matches))
	for _, m := range matches {
		key := m[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		fields = append(fields, key)
	}
	return fields
}
