package attributes

import (
	"sort"
	"strings"
)

// Key names one attribute of an entity.
type Key string

func (k Key) String() string { return string(k) }

// TypedKey pairs a Key with the Go type of its value.
type TypedKey[T any] struct {
	Key Key
}

// Get returns the value stored under the key when it is present and of type T.
func (k TypedKey[T]) Get(s Snapshot) (T, bool) {
	var zero T
	raw, ok := s.Value(k.Key)
	if !ok || raw == nil {
		return zero, false
	}
	value, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return value, true
}

// KeySet is a set of attribute keys. Treat values as immutable once shared.
type KeySet map[Key]struct{}

// NewKeySet builds a set from the provided keys.
func NewKeySet(keys ...Key) KeySet {
	set := make(KeySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether k is a member of the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys.
func (s KeySet) Len() int { return len(s) }

// Add inserts keys in place.
func (s KeySet) Add(keys ...Key) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Clone returns an independent copy.
func (s KeySet) Clone() KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Union returns the keys present in either set.
func (s KeySet) Union(other KeySet) KeySet {
	out := s.Clone()
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Minus returns the keys of s that are not in other.
func (s KeySet) Minus(other KeySet) KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		if !other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Intersect returns the keys present in both sets.
func (s KeySet) Intersect(other KeySet) KeySet {
	out := make(KeySet)
	for k := range s {
		if other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// ContainsAll reports whether every key of other is in s.
func (s KeySet) ContainsAll(other KeySet) bool {
	for k := range other {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s KeySet) String() string {
	keys := s.Sorted()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}
