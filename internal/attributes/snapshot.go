package attributes

import "reflect"

// Entry is the value and load state recorded for one key.
type Entry struct {
	Value any
	State State
}

func (e Entry) equal(other Entry) bool {
	return e.State.equal(other.State) && reflect.DeepEqual(e.Value, other.Value)
}

// Snapshot is an immutable partial attribute map. Absent keys are Missing.
type Snapshot struct {
	entries map[Key]Entry
}

// NewSnapshot copies entries into a new snapshot, dropping Missing entries.
func NewSnapshot(entries map[Key]Entry) Snapshot {
	out := make(map[Key]Entry, len(entries))
	for k, e := range entries {
		if e.State.IsMissing() {
			continue
		}
		out[k] = e
	}
	return Snapshot{entries: out}
}

// ValidSnapshot builds a snapshot whose keys are all Valid at version.
func ValidSnapshot(version Version, values map[Key]any) Snapshot {
	out := make(map[Key]Entry, len(values))
	for k, v := range values {
		out[k] = Entry{Value: v, State: Valid(version)}
	}
	return Snapshot{entries: out}
}

// Entry returns the entry for k, or a Missing entry.
func (s Snapshot) Entry(k Key) Entry {
	if e, ok := s.entries[k]; ok {
		return e
	}
	return Entry{State: Missing()}
}

// State returns the load state of k.
func (s Snapshot) State(k Key) State { return s.Entry(k).State }

// Value returns the value of k when one is recorded, stale or not.
func (s Snapshot) Value(k Key) (any, bool) {
	e, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	if e.State.IsValid() {
		return e.Value, true
	}
	return e.Value, e.Value != nil
}

// Len returns the number of non-missing keys.
func (s Snapshot) Len() int { return len(s.entries) }

// Keys returns every non-missing key.
func (s Snapshot) Keys() KeySet {
	out := make(KeySet, len(s.entries))
	for k := range s.entries {
		out[k] = struct{}{}
	}
	return out
}

// ValidKeys returns the keys in the Valid phase.
func (s Snapshot) ValidKeys() KeySet {
	out := make(KeySet, len(s.entries))
	for k, e := range s.entries {
		if e.State.IsValid() {
			out[k] = struct{}{}
		}
	}
	return out
}

// OnlyValid drops every entry that is not Valid.
func (s Snapshot) OnlyValid() Snapshot {
	out := make(map[Key]Entry, len(s.entries))
	for k, e := range s.entries {
		if e.State.IsValid() {
			out[k] = e
		}
	}
	return Snapshot{entries: out}
}

// Restrict keeps only the entries whose key is in keys.
func (s Snapshot) Restrict(keys KeySet) Snapshot {
	out := make(map[Key]Entry, len(keys))
	for k, e := range s.entries {
		if keys.Has(k) {
			out[k] = e
		}
	}
	return Snapshot{entries: out}
}

// With returns a copy of s with k set to e.
func (s Snapshot) With(k Key, e Entry) Snapshot {
	out := s.clone()
	if e.State.IsMissing() {
		delete(out, k)
	} else {
		out[k] = e
	}
	return Snapshot{entries: out}
}

// Range calls fn for every non-missing entry until fn returns false.
func (s Snapshot) Range(fn func(Key, Entry) bool) {
	for k, e := range s.entries {
		if !fn(k, e) {
			return
		}
	}
}

// Merge overlays newer on s: a key takes newer's entry when it is present and
// not Missing, otherwise s's entry.
func (s Snapshot) Merge(newer Snapshot) Snapshot {
	out := s.clone()
	for k, e := range newer.entries {
		out[k] = e
	}
	return Snapshot{entries: out}
}

// Compose overlays live on cached the way a branched entity reads. Where both
// sides are Valid the newer version wins and live wins ties. A live entry that
// is loading or failed without a value of its own keeps the cached value under
// the live state.
func Compose(order VersionOrder, cached, live Snapshot) Snapshot {
	out := cached.clone()
	for k, e := range live.entries {
		prev, ok := cached.entries[k]
		if !ok {
			out[k] = e
			continue
		}
		switch {
		case e.State.IsValid() && prev.State.IsValid():
			if Supersedes(order, e.State.Version, prev.State.Version) {
				out[k] = e
			}
		case e.State.IsValid():
			out[k] = e
		case prev.State.IsValid():
			if e.Value == nil {
				e.Value = prev.Value
			}
			out[k] = e
		default:
			out[k] = e
		}
	}
	return Snapshot{entries: out}
}

// Equal reports whether both snapshots hold the same entries.
func (s Snapshot) Equal(other Snapshot) bool {
	return Diff(s, other).Len() == 0
}

// Diff returns the keys whose entries differ between a and b.
func Diff(a, b Snapshot) KeySet {
	changed := make(KeySet)
	for k, ea := range a.entries {
		eb, ok := b.entries[k]
		if !ok || !ea.equal(eb) {
			changed[k] = struct{}{}
		}
	}
	for k := range b.entries {
		if _, ok := a.entries[k]; !ok {
			changed[k] = struct{}{}
		}
	}
	return changed
}

func (s Snapshot) clone() map[Key]Entry {
	out := make(map[Key]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = e
	}
	return out
}
