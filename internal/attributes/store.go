package attributes

import (
	"context"
	"sync"
)

// Update is delivered to subscribers after every change.
type Update struct {
	Snapshot Snapshot
	Changed  KeySet
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithVersionOrder sets the order used to compare valid versions.
func WithVersionOrder(order VersionOrder) StoreOption {
	return func(s *Store) {
		if order != nil {
			s.order = order
		}
	}
}

// WithInitial seeds the store with a snapshot.
func WithInitial(snap Snapshot) StoreOption {
	return func(s *Store) {
		s.snapshot = snap
	}
}

// Store owns the current snapshot of one entity. All mutations are serialized
// by one mutex; readers get immutable snapshots.
type Store struct {
	mu        sync.Mutex
	snapshot  Snapshot
	order     VersionOrder
	refs      map[Key]int
	subs      map[*Subscription]struct{}
	onDemand  func(KeySet)
	onRelease func(KeySet)
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		snapshot: NewSnapshot(nil),
		order:    DefaultOrder,
		refs:     make(map[Key]int),
		subs:     make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnDemand installs the hook invoked with keys whose demand count went from
// zero to one. The hook runs outside the store lock.
func (s *Store) OnDemand(fn func(KeySet)) {
	s.mu.Lock()
	s.onDemand = fn
	s.mu.Unlock()
}

// OnRelease installs the hook invoked with keys whose demand count dropped to
// zero. The hook runs outside the store lock.
func (s *Store) OnRelease(fn func(KeySet)) {
	s.mu.Lock()
	s.onRelease = fn
	s.mu.Unlock()
}

// Order returns the version order of the store.
func (s *Store) Order() VersionOrder { return s.order }

// Current returns the current snapshot.
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Demand registers a claim on keys. Release the handle when done.
func (s *Store) Demand(keys ...Key) *Demand {
	set := NewKeySet(keys...)
	d := &Demand{store: s, keys: set}
	if set.Len() == 0 {
		return d
	}

	s.mu.Lock()
	added := make(KeySet)
	for k := range set {
		s.refs[k]++
		if s.refs[k] == 1 {
			added[k] = struct{}{}
		}
	}
	hook := s.onDemand
	s.mu.Unlock()

	if hook != nil && added.Len() > 0 {
		hook(added)
	}
	return d
}

func (s *Store) release(keys KeySet) {
	if keys.Len() == 0 {
		return
	}
	s.mu.Lock()
	dropped := make(KeySet)
	for k := range keys {
		n := s.refs[k]
		switch {
		case n <= 1:
			delete(s.refs, k)
			if n == 1 {
				dropped[k] = struct{}{}
			}
		default:
			s.refs[k] = n - 1
		}
	}
	hook := s.onRelease
	s.mu.Unlock()

	if hook != nil && dropped.Len() > 0 {
		hook(dropped)
	}
}

// IsDemanded reports whether at least one live demand references k.
func (s *Store) IsDemanded(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[k] > 0
}

// Demanded returns every key with a live demand.
func (s *Store) Demanded() KeySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(KeySet, len(s.refs))
	for k := range s.refs {
		out[k] = struct{}{}
	}
	return out
}

// Apply merges incoming into the store and returns the keys that changed.
//
// Valid entries replace the current entry unless the current entry is Valid
// with a newer version. Loading and Error entries without a value keep the
// value already held. Missing entries are ignored; use Reset to forget keys.
func (s *Store) Apply(incoming Snapshot) KeySet {
	return s.update(func(cur Snapshot) Snapshot {
		return applyVersioned(s.order, cur, incoming)
	})
}

// Replace swaps the whole snapshot and returns the keys that changed.
func (s *Store) Replace(next Snapshot) KeySet {
	return s.update(func(Snapshot) Snapshot { return next })
}

// Reset returns keys to Missing, dropping their values.
func (s *Store) Reset(keys KeySet) KeySet {
	return s.update(func(cur Snapshot) Snapshot {
		out := cur.clone()
		for k := range keys {
			delete(out, k)
		}
		return Snapshot{entries: out}
	})
}

// update computes the next snapshot under the store lock and publishes it.
func (s *Store) update(fn func(Snapshot) Snapshot) KeySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.snapshot)
	changed := Diff(s.snapshot, next)
	if changed.Len() == 0 {
		return changed
	}
	s.snapshot = next
	for sub := range s.subs {
		sub.deliver(Update{Snapshot: next, Changed: changed})
	}
	return changed
}

func applyVersioned(order VersionOrder, cur, incoming Snapshot) Snapshot {
	out := cur.clone()
	for k, e := range incoming.entries {
		prev, had := out[k]
		switch e.State.Phase {
		case PhaseMissing:
			continue
		case PhaseValid:
			if had && prev.State.IsValid() && !Supersedes(order, e.State.Version, prev.State.Version) {
				continue
			}
		default:
			if had && e.Value == nil {
				e.Value = prev.Value
			}
		}
		out[k] = e
	}
	return Snapshot{entries: out}
}

// Subscribe registers a subscriber. The first update carries the current
// snapshot with every present key marked changed.
func (s *Store) Subscribe() *Subscription {
	sub := newSubscription(s)
	s.mu.Lock()
	sub.deliver(Update{Snapshot: s.snapshot, Changed: s.snapshot.Keys()})
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Watch subscribes and demands keys; closing the subscription releases the
// demand.
func (s *Store) Watch(keys ...Key) *Subscription {
	sub := s.Subscribe()
	sub.demand = s.Demand(keys...)
	return sub
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Await demands keys and blocks until each of them is Valid or failed, or
// ctx ends. The demand is released on return.
func (s *Store) Await(ctx context.Context, keys ...Key) (Snapshot, error) {
	sub := s.Watch(keys...)
	defer sub.Close()
	for {
		u, err := sub.Next(ctx)
		if err != nil {
			return s.Current(), err
		}
		if settled(u.Snapshot, keys) {
			return u.Snapshot, nil
		}
	}
}

func settled(snap Snapshot, keys []Key) bool {
	for _, k := range keys {
		st := snap.State(k)
		if !st.IsValid() && !st.IsError() {
			return false
		}
	}
	return true
}
