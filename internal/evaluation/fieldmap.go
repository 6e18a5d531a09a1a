// internal/evaluation/fieldmap.go
package evaluation

import (
	"bytes"
	"fmt"
	"mime/multipart"
)

// FieldMap is an insertion-ordered mapping from field name to either a
// scalar value or an ordered set of values. Multi-valued fields are
// encoded by repeating the key once per value.
type FieldMap struct {
	keys   []string
	values map[string][]string
	multi  map[string]bool
}

// Entry is one FieldMap member, as exposed for display and comparison.
type Entry struct {
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values" yaml:"values"`
	Multi  bool     `json:"multi,omitempty" yaml:"multi,omitempty"`
}

// NewFieldMap returns an empty FieldMap.
func NewFieldMap() *FieldMap {
	return &FieldMap{values: make(map[string][]string), multi: make(map[string]bool)}
}

func (m *FieldMap) touch(name string) {
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
}

// Set stores a scalar value, replacing any previous value but keeping the
// field's original position.
func (m *FieldMap) Set(name, value string) {
	m.touch(name)
	m.values[name] = []string{value}
	delete(m.multi, name)
}

// SetMulti stores an ordered set of values.
func (m *FieldMap) SetMulti(name string, values []string) {
	m.touch(name)
	m.values[name] = append([]string(nil), values...)
	m.multi[name] = true
}

// Has reports whether name is present.
func (m *FieldMap) Has(name string) bool {
	_, ok := m.values[name]
	return ok
}

// Get returns the scalar value of name, or the first value of a multi field.
func (m *FieldMap) Get(name string) string {
	if v := m.values[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns a copy of every value stored under name.
func (m *FieldMap) Values(name string) []string {
	return append([]string(nil), m.values[name]...)
}

// Keys returns field names in insertion order.
func (m *FieldMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len is the number of distinct field names.
func (m *FieldMap) Len() int { return len(m.keys) }

// Entries returns the map's contents in insertion order.
func (m *FieldMap) Entries() []Entry {
	out := make([]Entry, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, Entry{Name: k, Values: m.Values(k), Multi: m.multi[k]})
	}
	return out
}

// Clone returns a deep copy.
func (m *FieldMap) Clone() *FieldMap {
	c := NewFieldMap()
	for _, k := range m.keys {
		if m.multi[k] {
			c.SetMulti(k, m.values[k])
		} else {
			c.Set(k, m.Get(k))
		}
	}
	return c
}

// EncodeMultipart writes the map as a multipart/form-data body and returns
// it together with its Content-Type (which carries the boundary).
func (m *FieldMap) EncodeMultipart() (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, k := range m.keys {
		for _, v := range m.values[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("failed to encode field %q: %w", k, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &body, w.FormDataContentType(), nil
}
