package attributes

import "sync"

// Demand is a caller-held claim that keys be kept fresh. Release it
// explicitly; a released demand never cancels in-flight fetches, it only
// prevents new ones.
type Demand struct {
	store *Store
	mu    sync.Mutex
	keys  KeySet
}

// Keys returns the keys still held by the demand.
func (d *Demand) Keys() KeySet {
	if d == nil {
		return KeySet{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys.Clone()
}

// Release drops every key still held. It is safe to call more than once.
func (d *Demand) Release() {
	if d == nil {
		return
	}
	d.mu.Lock()
	keys := d.keys
	d.keys = KeySet{}
	d.mu.Unlock()
	if d.store != nil {
		d.store.release(keys)
	}
}

// ReleaseKeys drops the given keys and keeps the rest under demand.
func (d *Demand) ReleaseKeys(keys ...Key) {
	if d == nil {
		return
	}
	d.mu.Lock()
	dropped := make(KeySet)
	for _, k := range keys {
		if d.keys.Has(k) {
			delete(d.keys, k)
			dropped[k] = struct{}{}
		}
	}
	d.mu.Unlock()
	if d.store != nil {
		d.store.release(dropped)
	}
}
