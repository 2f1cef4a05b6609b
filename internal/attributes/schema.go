package attributes

import (
	"encoding/json"
	"fmt"
)

type codec struct {
	decode func([]byte) (any, error)
}

// Schema declares the keys of one entity kind, the content category each key
// belongs to and how its values are encoded for persistence.
type Schema struct {
	name       string
	codecs     map[Key]codec
	categories map[ContentMask]KeySet
}

// NewSchema creates an empty schema.
func NewSchema(name string) *Schema {
	return &Schema{
		name:       name,
		codecs:     make(map[Key]codec),
		categories: make(map[ContentMask]KeySet),
	}
}

// Define registers a typed key in category on s. It panics on duplicate names
// since schemas are built once at package initialisation.
func Define[T any](s *Schema, name string, category ContentMask) TypedKey[T] {
	key := Key(name)
	if _, exists := s.codecs[key]; exists {
		panic(fmt.Sprintf("attributes: duplicate key %q in schema %s", name, s.name))
	}
	s.codecs[key] = codec{decode: func(raw []byte) (any, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		return value, nil
	}}
	for _, bit := range category.Bits() {
		set, ok := s.categories[bit]
		if !ok {
			set = make(KeySet)
			s.categories[bit] = set
		}
		set.Add(key)
	}
	return TypedKey[T]{Key: key}
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Has reports whether k is declared.
func (s *Schema) Has(k Key) bool {
	_, ok := s.codecs[k]
	return ok
}

// Keys returns every declared key.
func (s *Schema) Keys() KeySet {
	out := make(KeySet, len(s.codecs))
	for k := range s.codecs {
		out[k] = struct{}{}
	}
	return out
}

// Category returns the keys belonging to any bit of mask.
func (s *Schema) Category(mask ContentMask) KeySet {
	out := make(KeySet)
	for _, bit := range mask.Bits() {
		for k := range s.categories[bit] {
			out[k] = struct{}{}
		}
	}
	return out
}

// CategoriesOf returns the bits whose category contains k.
func (s *Schema) CategoriesOf(k Key) ContentMask {
	var mask ContentMask
	for bit, keys := range s.categories {
		if keys.Has(k) {
			mask |= bit
		}
	}
	return mask
}

// Encode marshals the value of k for storage.
func (s *Schema) Encode(k Key, value any) ([]byte, error) {
	if !s.Has(k) {
		return nil, fmt.Errorf("encode %s: unknown key %q", s.name, k)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s: %w", s.name, k, err)
	}
	return data, nil
}

// Decode unmarshals a stored value of k.
func (s *Schema) Decode(k Key, raw []byte) (any, error) {
	c, ok := s.codecs[k]
	if !ok {
		return nil, fmt.Errorf("decode %s: unknown key %q", s.name, k)
	}
	value, err := c.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", s.name, k, err)
	}
	return value, nil
}
