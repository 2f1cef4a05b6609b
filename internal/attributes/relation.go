package attributes

import (
	"fmt"
	"sort"
)

// Group names a backend-defined unit of fetch work.
type Group string

// Relation maps each request group to the keys one fetch of it yields.
type Relation map[Group]KeySet

// NewRelation builds a relation from group key lists.
func NewRelation(groups map[Group][]Key) Relation {
	out := make(Relation, len(groups))
	for g, keys := range groups {
		out[g] = NewKeySet(keys...)
	}
	return out
}

// Validate checks that groups are non-empty and that no key belongs to two
// groups.
func (r Relation) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: no groups", ErrInvalidRelation)
	}
	owner := make(map[Key]Group)
	for _, g := range r.Groups() {
		keys := r[g]
		if keys.Len() == 0 {
			return fmt.Errorf("%w: group %q has no keys", ErrInvalidRelation, g)
		}
		for k := range keys {
			if other, ok := owner[k]; ok {
				return fmt.Errorf("%w: key %q in groups %q and %q", ErrInvalidRelation, k, other, g)
			}
			owner[k] = g
		}
	}
	return nil
}

// Groups returns the group names in lexical order.
func (r Relation) Groups() []Group {
	out := make([]Group, 0, len(r))
	for g := range r {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Keys returns every key owned by some group.
func (r Relation) Keys() KeySet {
	out := make(KeySet)
	for _, keys := range r {
		for k := range keys {
			out[k] = struct{}{}
		}
	}
	return out
}

// Explode returns the groups covering keys, in lexical order. Keys without a
// group are ignored.
func (r Relation) Explode(keys KeySet) []Group {
	var out []Group
	for _, g := range r.Groups() {
		for k := range r[g] {
			if keys.Has(k) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}
