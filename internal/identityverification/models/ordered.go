package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ordered is a JSON object that remembers key declaration order.
// Transitions are evaluated first-match-wins, so the order written by the
// tenant is significant and must survive storage round-trips.
type Ordered[T any] struct {
	keys   []string
	values map[string]T
}

// NewOrdered returns an empty Ordered.
func NewOrdered[T any]() *Ordered[T] {
	return &Ordered[T]{values: map[string]T{}}
}

// Set inserts or replaces key; a new key is appended to the order.
func (o *Ordered[T]) Set(key string, v T) {
	if o.values == nil {
		o.values = map[string]T{}
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value stored under key.
func (o *Ordered[T]) Get(key string) (T, bool) {
	var zero T
	if o == nil || o.values == nil {
		return zero, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in declaration order.
func (o *Ordered[T]) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len reports the number of entries.
func (o *Ordered[T]) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

func (o Ordered[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Ordered[T]) UnmarshalJSON(data []byte) error {
	o.keys = nil
	o.values = map[string]T{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var v T
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		o.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
