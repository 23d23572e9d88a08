package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Map is an insertion-ordered key/value record.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap creates an empty map record.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// MapOf builds a map record from alternating field/value arguments.
// Non-string keys are ignored.
func MapOf(kv ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		m.put(k, kv[i+1])
	}
	return m
}

// FromMap builds a map record from a plain map. Field order is sorted since
// Go maps carry none.
func FromMap(src map[string]any) *Map {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := &Map{keys: keys, values: make(map[string]any, len(src))}
	for k, v := range src {
		m.values[k] = v
	}
	return m
}

// Get implements Record.
func (m *Map) Get(field string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[field]
	return v, ok
}

// Has implements Record.
func (m *Map) Has(field string) bool {
	_, ok := m.Get(field)
	return ok
}

// Set implements Record.
func (m *Map) Set(field string, value any) Record {
	c := m.clone()
	c.put(field, value)
	return c
}

// Delete implements Record.
func (m *Map) Delete(field string) Record {
	c := m.clone()
	if _, ok := c.values[field]; !ok {
		return c
	}
	delete(c.values, field)
	for i, k := range c.keys {
		if k == field {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	return c
}

// Fields implements Record.
func (m *Map) Fields() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of fields.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Map) put(field string, value any) {
	if _, ok := m.values[field]; !ok {
		m.keys = append(m.keys, field)
	}
	m.values[field] = value
}

func (m *Map) clone() *Map {
	if m == nil {
		return NewMap()
	}
	c := &Map{
		keys:   make([]string, len(m.keys), len(m.keys)+1),
		values: make(map[string]any, len(m.values)+1),
	}
	copy(c.keys, m.keys)
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON writes the fields as a JSON object in field order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return marshalOrdered(m.keys, func(k string) any { return m.values[k] })
}

// UnmarshalJSON reads a JSON object, keeping the order of its fields.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	decoded, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

func marshalOrdered(keys []string, get func(string) any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(get(k))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeObject reads one JSON object from dec into an ordered Map. Nested
// objects become plain maps; numbers become int64 or float64.
func decodeObject(dec *json.Decoder) (*Map, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected JSON object, got %v", ErrUnsupported, tok)
	}

	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		m.put(key, normalizeNumbers(raw))
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return m, nil
}

// normalizeNumbers replaces json.Number values with int64 or float64.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	default:
		return v
	}
}

// DecodeJSON decodes a single JSON object into an ordered map record.
// Trailing data after the object is an error.
func DecodeJSON(data []byte) (*Map, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	m, err := decodeObject(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return m, nil
}

// DecodeValue decodes any JSON value with the same number handling as
// DecodeJSON. Objects become plain maps.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return normalizeNumbers(v), nil
}
