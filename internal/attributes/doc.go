// Package attributes implements the per-entity attribute synchronisation core.
//
// A Store owns the current Snapshot of one entity, counts Demand references per
// key and publishes every change to its subscribers together with the set of
// keys that changed. A Mapper sits next to a Store and turns newly demanded keys
// into request group fetches against a backend Fetcher, tracking the lifecycle
// of each group so that a group is never fetched twice at the same time.
//
// Snapshots are immutable values. Versions decide which of two valid values
// survives a merge; completion order never does.
package attributes
