package shared

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Fields is an insertion-ordered string-keyed map used for the schema-less
// row payload. Setting an existing key replaces its value in place.
type Fields struct {
	keys   []string
	values map[string]interface{}
}

// NewFields returns an empty Fields with room for n keys.
func NewFields(n int) *Fields {
	return &Fields{
		keys:   make([]string, 0, n),
		values: make(map[string]interface{}, n),
	}
}

// Set stores value under key, keeping the key's original position.
func (f *Fields) Set(key string, value interface{}) {
	if f.values == nil {
		f.values = make(map[string]interface{})
	}
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (interface{}, bool) {
	if f == nil || f.values == nil {
		return nil, false
	}
	v, ok := f.values[key]
	return v, ok
}

// Len returns the number of keys.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// D converts the fields to an ordered BSON document.
func (f *Fields) D() bson.D {
	d := make(bson.D, 0, f.Len())
	if f == nil {
		return d
	}
	for _, k := range f.keys {
		d = append(d, bson.E{Key: k, Value: f.values[k]})
	}
	return d
}

// MarshalBSON implements bson.Marshaler.
func (f Fields) MarshalBSON() ([]byte, error) {
	return bson.Marshal(f.D())
}

// UnmarshalBSON implements bson.Unmarshaler.
func (f *Fields) UnmarshalBSON(data []byte) error {
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return err
	}
	f.keys = make([]string, 0, len(d))
	f.values = make(map[string]interface{}, len(d))
	for _, e := range d {
		f.Set(e.Key, e.Value)
	}
	return nil
}

// MarshalJSON writes the object with keys in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, keeping the document key order.
// Numbers decode as float64, nested values as generic maps and slices.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected JSON object")
	}

	f.keys = nil
	f.values = make(map[string]interface{})

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: expected string key, got %v", tok)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		f.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
