package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Document is a JSON object that remembers key insertion order. Values are nil, bool,
// string, json.Number, int, int64, float64, []interface{} or *Document.
type Document struct {
	keys   []string
	values map[string]interface{}
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: make(map[string]interface{})}
}

// FromMap builds a document from a plain map. Keys are sorted since Go maps carry no
// order; nested maps are converted the same way.
func FromMap(m map[string]interface{}) *Document {
	d := NewDocument()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.Set(k, normalize(m[k]))
	}
	return d
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return FromMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

// Set stores value under key. Existing keys keep their position.
func (d *Document) Set(key string, value interface{}) {
	if !d.Has(key) {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (interface{}, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Keys returns the keys in order.
func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len returns the number of keys.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := NewDocument()
	for _, k := range d.keys {
		out.Set(k, cloneValue(d.values[k]))
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *Document:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the object with keys in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalValue(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalValue is json.Marshal without HTML escaping, so constraints such as ">=1.0.0"
// stay readable.
func marshalValue(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Plain converts the document into nested plain maps and slices.
func (d *Document) Plain() map[string]interface{} {
	out := make(map[string]interface{}, len(d.keys))
	for _, k := range d.keys {
		out[k] = plainValue(d.values[k])
	}
	return out
}

func plainValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *Document:
		return val.Plain()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}
