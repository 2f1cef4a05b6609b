package attributes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tunes/internal/logging"
	"tunes/internal/services"
)

// GroupState is the lifecycle phase of one request group.
type GroupState uint8

const (
	GroupIdle GroupState = iota
	GroupRequested
	GroupFulfilling
	GroupFulfilled
	GroupFailed
)

func (s GroupState) String() string {
	switch s {
	case GroupIdle:
		return "idle"
	case GroupRequested:
		return "requested"
	case GroupFulfilling:
		return "fulfilling"
	case GroupFulfilled:
		return "fulfilled"
	case GroupFailed:
		return "failed"
	default:
		return fmt.Sprintf("group_state(%d)", uint8(s))
	}
}

func (s GroupState) inFlight() bool {
	return s == GroupRequested || s == GroupFulfilling
}

// Fetcher fulfils request groups for one entity.
type Fetcher interface {
	Fetch(ctx context.Context, group Group) (Snapshot, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, group Group) (Snapshot, error)

func (f FetcherFunc) Fetch(ctx context.Context, group Group) (Snapshot, error) {
	return f(ctx, group)
}

// MapperOption customises a Mapper.
type MapperOption func(*Mapper)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *slog.Logger) MapperOption {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// WithEntity labels log lines with the entity identifier.
func WithEntity(id string) MapperOption {
	return func(m *Mapper) {
		m.entity = id
	}
}

// WithContext sets the parent context of every fetch.
func WithContext(ctx context.Context) MapperOption {
	return func(m *Mapper) {
		if ctx != nil {
			m.parent = ctx
		}
	}
}

type groupStatus struct {
	state   GroupState
	stale   bool
	lastErr error
	fetches int
}

// Mapper turns demanded keys into request group fetches and writes their
// results into a Store. At most one fetch per group is in flight.
type Mapper struct {
	store    *Store
	relation Relation
	fetcher  Fetcher
	logger   *slog.Logger
	entity   string
	parent   context.Context

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	groups   map[Group]*groupStatus
	closed   bool
	inflight int
	idle     chan struct{}
}

// NewMapper attaches a mapper to store. The mapper installs itself as the
// store's demand hook.
func NewMapper(store *Store, relation Relation, fetcher Fetcher, opts ...MapperOption) (*Mapper, error) {
	if store == nil {
		return nil, fmt.Errorf("new request mapper: store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("new request mapper: fetcher is required")
	}
	if err := relation.Validate(); err != nil {
		return nil, fmt.Errorf("new request mapper: %w", err)
	}

	m := &Mapper{
		store:    store,
		relation: relation,
		fetcher:  fetcher,
		parent:   context.Background(),
		groups:   make(map[Group]*groupStatus, len(relation)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for g := range relation {
		m.groups[g] = &groupStatus{}
	}
	m.logger = logging.NewComponentLogger(m.logger, "request_mapper")
	if m.entity != "" {
		m.logger = m.logger.With(logging.EntityID(m.entity))
	}
	m.ctx, m.cancel = context.WithCancel(m.parent)

	store.OnDemand(m.demanded)
	if demanded := store.Demanded(); demanded.Len() > 0 {
		m.demanded(demanded)
	}
	return m, nil
}

// Store returns the store the mapper writes into.
func (m *Mapper) Store() *Store { return m.store }

// Relation returns the key to group relation.
func (m *Mapper) Relation() Relation { return m.relation }

func (m *Mapper) demanded(keys KeySet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	snap := m.store.Current()
	need := make(KeySet)
	for k := range keys {
		if snap.State(k).NeedsFetch() {
			need[k] = struct{}{}
		}
	}
	for _, g := range m.relation.Explode(need) {
		m.requestLocked(g)
	}
}

func (m *Mapper) requestLocked(g Group) {
	status := m.groups[g]
	if status.state.inFlight() {
		return
	}
	status.state = GroupRequested
	status.stale = false
	status.fetches++

	keys := m.relation[g]
	m.store.update(func(cur Snapshot) Snapshot {
		out := cur.clone()
		for k := range keys {
			e := cur.Entry(k)
			if e.State.NeedsFetch() {
				out[k] = Entry{Value: e.Value, State: Loading()}
			}
		}
		return Snapshot{entries: out}
	})

	if m.inflight == 0 {
		m.idle = make(chan struct{})
	}
	m.inflight++
	m.wg.Add(1)
	go m.run(g)
}

func (m *Mapper) run(g Group) {
	defer m.wg.Done()

	m.mu.Lock()
	if status := m.groups[g]; status.state == GroupRequested {
		status.state = GroupFulfilling
	}
	m.mu.Unlock()

	m.logger.Debug("fetching request group", logging.RequestGroup(string(g)))
	snap, err := m.fetcher.Fetch(m.ctx, g)
	m.complete(g, snap, err)
}

func (m *Mapper) complete(g Group, snap Snapshot, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.doneLocked()

	if m.closed {
		return
	}
	status := m.groups[g]
	if status.stale {
		// Invalidated while in flight; the result predates the invalidation.
		status.stale = false
		status.state = GroupIdle
		if m.demandedLocked(g) {
			m.requestLocked(g)
		}
		return
	}
	if err != nil {
		m.failLocked(g, err)
		return
	}
	m.fulfillLocked(g, snap)
}

func (m *Mapper) doneLocked() {
	m.inflight--
	if m.inflight == 0 && m.idle != nil {
		close(m.idle)
		m.idle = nil
	}
}

func (m *Mapper) fulfillLocked(g Group, snap Snapshot) {
	keys := m.relation[g]
	result := snap.Restrict(keys)

	versions := make([]Version, 0, result.Len())
	result.Range(func(_ Key, e Entry) bool {
		if e.State.IsValid() {
			versions = append(versions, e.State.Version)
		}
		return true
	})
	version := Latest(m.store.order, versions...)

	entries := result.clone()
	for k := range keys {
		if _, ok := entries[k]; !ok {
			entries[k] = Entry{State: Valid(version)}
		}
	}
	m.store.Apply(Snapshot{entries: entries})

	status := m.groups[g]
	status.state = GroupFulfilled
	status.lastErr = nil
}

func (m *Mapper) failLocked(g Group, err error) {
	ferr := &FetchError{Group: g, Err: err}
	keys := m.relation[g]
	m.store.update(func(cur Snapshot) Snapshot {
		out := cur.clone()
		for k := range keys {
			e := cur.Entry(k)
			if e.State.IsValid() {
				continue
			}
			out[k] = Entry{Value: e.Value, State: Failed(ferr)}
		}
		return Snapshot{entries: out}
	})

	status := m.groups[g]
	status.state = GroupFailed
	status.lastErr = ferr

	logging.WarnWithContext(m.logger, "request group fetch failed", "request_group_failed",
		logging.RequestGroup(string(g)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
		logging.String(logging.FieldImpact, "attributes of this group stay unavailable"),
	)
}

func (m *Mapper) demandedLocked(g Group) bool {
	for k := range m.relation[g] {
		if m.store.IsDemanded(k) {
			return true
		}
	}
	return false
}

// Offer merges data the backend obtained outside a fetch of g. The group is
// marked fulfilled when every key it owns is valid afterwards.
func (m *Mapper) Offer(g Group, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMapperClosed
	}
	keys, ok := m.relation[g]
	if !ok {
		return fmt.Errorf("offer %q: unknown request group", g)
	}
	m.store.Apply(snap.Restrict(keys))

	status := m.groups[g]
	if !status.state.inFlight() && m.store.Current().ValidKeys().ContainsAll(keys) {
		status.state = GroupFulfilled
		status.lastErr = nil
	}
	return nil
}

// Invalidate resets the groups covering keys to Idle and their keys to
// Missing, then fetches again the groups that are still demanded. A group in
// flight discards its result and fetches again once it completes.
func (m *Mapper) Invalidate(keys ...Key) {
	m.invalidate(m.relation.Explode(NewKeySet(keys...)))
}

// InvalidateAll invalidates every group.
func (m *Mapper) InvalidateAll() {
	m.invalidate(m.relation.Groups())
}

// InvalidateMask invalidates the groups owning keys of the masked categories.
func (m *Mapper) InvalidateMask(schema *Schema, mask ContentMask) {
	m.invalidate(m.relation.Explode(schema.Category(mask)))
}

func (m *Mapper) invalidate(groups []Group) {
	if len(groups) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	reset := make(KeySet)
	for _, g := range groups {
		for k := range m.relation[g] {
			reset[k] = struct{}{}
		}
	}
	m.store.Reset(reset)

	for _, g := range groups {
		status := m.groups[g]
		if status.state.inFlight() {
			status.stale = true
			continue
		}
		status.state = GroupIdle
		status.lastErr = nil
		if m.demandedLocked(g) {
			m.requestLocked(g)
		}
	}
}

// GroupState returns the lifecycle phase of g.
func (m *Mapper) GroupState(g Group) GroupState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status, ok := m.groups[g]; ok {
		return status.state
	}
	return GroupIdle
}

// Fetches returns how many fetches of g were issued.
func (m *Mapper) Fetches(g Group) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status, ok := m.groups[g]; ok {
		return status.fetches
	}
	return 0
}

// Mask reports the categories of schema whose covering groups are all
// fulfilled. Categories without keys in the relation count as fulfilled.
func (m *Mapper) Mask(schema *Schema) ContentMask {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := m.relation.Keys()
	var mask ContentMask
	for _, bit := range MaskAll.Bits() {
		complete := true
		for _, g := range m.relation.Explode(schema.Category(bit).Intersect(owned)) {
			if m.groups[g].state != GroupFulfilled {
				complete = false
				break
			}
		}
		if complete {
			mask |= bit
		}
	}
	return mask
}

// Wait blocks until no fetch is in flight or ctx ends.
func (m *Mapper) Wait(ctx context.Context) error {
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight fetches and waits for them to return. Results that
// arrive after Close are discarded.
func (m *Mapper) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.store.OnDemand(nil)
	m.cancel()
	m.wg.Wait()
}
