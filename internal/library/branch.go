package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/logging"
	"tunes/internal/services"
)

// Branch serves one cache record. Reads compose the record with the live
// primary backend; demand for keys the record does not hold is forwarded to
// the primary, and fresher Valid values from the primary are persisted.
type Branch struct {
	id      string
	kind    cachedb.Kind
	token   Token
	indexed bool
	content ContentType
	schema  *attributes.Schema
	db      *cachedb.Store
	logger  *slog.Logger

	record  *attributes.Store
	view    *attributes.Store
	primary Entity

	recSub  *attributes.Subscription
	liveSub *attributes.Subscription

	// writeMu serializes record writes so the database and b.mask agree.
	writeMu   sync.Mutex
	refreshMu sync.Mutex

	mu          sync.Mutex
	mask        attributes.ContentMask
	secondaries []Entity
	forwarded   map[attributes.Key]*attributes.Demand
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBranch(parent context.Context, db *cachedb.Store, logger *slog.Logger, rec *cachedb.Record, snap attributes.Snapshot, primary Entity, secondaries []Entity) *Branch {
	record := attributes.NewStore(attributes.WithInitial(snap))
	content := ContentType(rec.ContentType)
	if rec.Kind == cachedb.KindPlaylist && content == "" {
		content = ContentHybrid
	}
	b := &Branch{
		id:          rec.ID,
		kind:        rec.Kind,
		token:       tokenFromRef(rec.Token),
		indexed:     rec.Indexed,
		content:     content,
		schema:      SchemaFor(rec.Kind),
		db:          db,
		logger:      logging.NewComponentLogger(logger, "branch").With(logging.EntityID(rec.ID)),
		record:      record,
		primary:     primary,
		mask:        rec.CacheMask,
		secondaries: secondaries,
		forwarded:   make(map[attributes.Key]*attributes.Demand),
	}
	if b.indexed {
		b.primary = newJustCache(rec.Kind, content, record)
	}
	b.ctx, b.cancel = context.WithCancel(parent)

	b.recSub = record.Subscribe()
	if b.live() {
		b.liveSub = b.primary.Attributes().Subscribe()
	}
	b.view = attributes.NewStore(
		attributes.WithVersionOrder(record.Order()),
		attributes.WithInitial(b.compose()),
	)
	b.view.OnDemand(b.forward)
	b.view.OnRelease(b.release)

	b.wg.Add(1)
	go b.pump()
	return b
}

// ID returns the cache record id.
func (b *Branch) ID() string { return b.id }

func (b *Branch) Kind() cachedb.Kind         { return b.kind }
func (b *Branch) Token() Token               { return b.token }
func (b *Branch) Schema() *attributes.Schema { return b.schema }
func (b *Branch) Indexed() bool              { return b.indexed }

// Attributes returns the composed view consumers demand keys on.
func (b *Branch) Attributes() *attributes.Store { return b.view }

// Record returns the persisted attributes of the branch.
func (b *Branch) Record() attributes.Snapshot { return b.record.Current() }

// Primary returns the live backend, or nil when it is unavailable.
func (b *Branch) Primary() Entity {
	if b.indexed {
		return nil
	}
	return b.primary
}

// Secondaries returns the secondary backends that could be expanded.
func (b *Branch) Secondaries() []Entity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entity(nil), b.secondaries...)
}

// ContentType returns what the playlist may hold.
func (b *Branch) ContentType() ContentType {
	if b.live() && b.primary.ContentType() != "" {
		return b.primary.ContentType()
	}
	return b.content
}

// RecordMask returns the categories the record holds current values for.
func (b *Branch) RecordMask() attributes.ContentMask {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mask
}

// CacheMask reports the categories known to be current. Without a live
// backend nothing can be fresher than the record, so every bit is set.
func (b *Branch) CacheMask() attributes.ContentMask {
	if b.primary == nil {
		return attributes.MaskAll
	}
	mask := b.RecordMask()
	if b.indexed {
		return mask
	}
	return mask | b.primary.CacheMask()
}

// Supports reports the capabilities of the primary backend.
func (b *Branch) Supports(c Capability) bool {
	if b.primary == nil {
		return false
	}
	return b.primary.Supports(c)
}

func (b *Branch) live() bool {
	return !b.indexed && b.primary != nil
}

func (b *Branch) compose() attributes.Snapshot {
	if !b.live() {
		return b.record.Current()
	}
	return attributes.Compose(b.record.Order(), b.record.Current(), b.primary.Attributes().Current())
}

func (b *Branch) refresh() {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()
	b.view.Replace(b.compose())
}

func (b *Branch) pump() {
	defer b.wg.Done()

	var liveReady <-chan struct{}
	if b.liveSub != nil {
		liveReady = b.liveSub.Ready()
	}
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.recSub.Ready():
			b.recSub.TryNext()
		case <-liveReady:
			if u, ok := b.liveSub.TryNext(); ok {
				b.persist(u)
			}
		}
		b.refresh()
	}
}

// cachedLocked reports whether the record answers k: the value is Valid and
// the category it belongs to is marked current.
func (b *Branch) cachedLocked(rec attributes.Snapshot, k attributes.Key) bool {
	if !rec.State(k).IsValid() {
		return false
	}
	cat := b.schema.CategoriesOf(k)
	return cat != 0 && b.mask.Has(cat)
}

func (b *Branch) forward(keys attributes.KeySet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.live() {
		return
	}
	rec := b.record.Current()
	var need []attributes.Key
	for _, k := range keys.Sorted() {
		if _, ok := b.forwarded[k]; ok {
			continue
		}
		if b.cachedLocked(rec, k) || !b.view.IsDemanded(k) {
			continue
		}
		need = append(need, k)
	}
	if len(need) == 0 {
		return
	}
	b.logger.Debug("forwarding demand to backend",
		logging.Token(b.token.Key()),
		logging.Int("key_count", len(need)))
	d := b.primary.Attributes().Demand(need...)
	for _, k := range need {
		b.forwarded[k] = d
	}
}

func (b *Branch) release(keys attributes.KeySet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range keys {
		d, ok := b.forwarded[k]
		if !ok || b.view.IsDemanded(k) {
			continue
		}
		delete(b.forwarded, k)
		d.ReleaseKeys(k)
	}
}

// persist writes the Valid entries of a primary update that are fresher
// than the record, and marks the categories the record now fully holds.
func (b *Branch) persist(u attributes.Update) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	order := b.record.Order()
	rec := b.record.Current()
	fresh := make(map[attributes.Key]attributes.Entry)
	for k := range u.Changed {
		e := u.Snapshot.Entry(k)
		if !e.State.IsValid() || !b.schema.Has(k) {
			continue
		}
		prev := rec.Entry(k)
		if prev.State.IsValid() {
			if !attributes.Supersedes(order, e.State.Version, prev.State.Version) {
				continue
			}
			// An equal version still replaces a different value.
			if e.State.Version != attributes.NoVersion && order(e.State.Version, prev.State.Version) == 0 &&
				sameValue(e.Value, prev.Value) {
				continue
			}
		}
		fresh[k] = e
	}

	b.mu.Lock()
	current := b.mask
	b.mu.Unlock()

	incoming := attributes.NewSnapshot(fresh)
	set := b.primary.CacheMask() & completeBits(b.schema, u.Snapshot, rec.Merge(incoming)) &^ current
	if incoming.Len() == 0 && set == 0 {
		return
	}

	var (
		bound attributes.Snapshot
		mask  attributes.ContentMask
	)
	err := b.db.Update(b.ctx, func(tx *cachedb.Tx) error {
		var err error
		if bound, err = bindRefs(tx, incoming); err != nil {
			return err
		}
		if err := tx.StoreSnapshot(b.id, bound, b.schema); err != nil {
			return err
		}
		mask, err = tx.UpdateCacheMask(b.id, set, 0)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.WarnWithContext(b.logger, "failed to persist backend attributes", "branch_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "fetched attributes will be fetched again next time"))
		return
	}

	b.record.Apply(bound)
	b.mu.Lock()
	b.mask = mask
	b.mu.Unlock()
	b.logger.Debug("persisted backend attributes",
		logging.Int("key_count", bound.Len()),
		logging.String("cache_mask", mask.String()))
}

// completeBits returns the categories whose keys that are Valid in live are
// all Valid in merged.
func completeBits(schema *attributes.Schema, live, merged attributes.Snapshot) attributes.ContentMask {
	liveValid := live.ValidKeys()
	mergedValid := merged.ValidKeys()
	var out attributes.ContentMask
	for _, bit := range attributes.MaskAll.Bits() {
		if mergedValid.ContainsAll(schema.Category(bit).Intersect(liveValid)) {
			out |= bit
		}
	}
	return out
}

// sameValue compares a live value with a persisted one. Persisted references
// carry record ids the live ones may lack, so references compare by token.
func sameValue(live, stored any) bool {
	lr, ok := live.([]Ref)
	sr, ok2 := stored.([]Ref)
	if !ok || !ok2 {
		return reflect.DeepEqual(live, stored)
	}
	if len(lr) != len(sr) {
		return false
	}
	for i := range lr {
		if !sameRef(lr[i], sr[i]) {
			return false
		}
	}
	return true
}

func sameRef(a, b Ref) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	if a.Token == nil || b.Token == nil {
		return a.Token == nil && b.Token == nil && a.ID == b.ID
	}
	return *a.Token == *b.Token
}

// bindRefs gives every token-only reference in snap the id of the record
// backed by that token, inserting bare records for tokens seen first here.
func bindRefs(tx *cachedb.Tx, snap attributes.Snapshot) (attributes.Snapshot, error) {
	out := make(map[attributes.Key]attributes.Entry, snap.Len())
	var bindErr error
	snap.Range(func(k attributes.Key, e attributes.Entry) bool {
		kind, isRefKey := refKinds[k]
		refs, isRefs := e.Value.([]Ref)
		if !isRefKey || !isRefs {
			out[k] = e
			return true
		}
		bound := make([]Ref, len(refs))
		for i, ref := range refs {
			if ref.ID == "" && ref.Token != nil && !ref.Token.IsZero() {
				rec, err := tx.FindByToken(ref.Token.ref())
				if err != nil {
					bindErr = err
					return false
				}
				if rec == nil {
					rec = &cachedb.Record{Kind: kind, Token: ref.Token.ref()}
					if err := tx.InsertRecord(rec); err != nil {
						bindErr = err
						return false
					}
				}
				ref.ID = rec.ID
			}
			bound[i] = ref
		}
		out[k] = attributes.Entry{Value: bound, State: e.State}
		return true
	})
	if bindErr != nil {
		return attributes.Snapshot{}, fmt.Errorf("bind references: %w", bindErr)
	}
	return attributes.NewSnapshot(out), nil
}

// Write stores values into an indexed record. Branches backed by a live
// primary take their values from it and reject writes.
func (b *Branch) Write(ctx context.Context, values map[attributes.Key]any) error {
	if !b.indexed {
		return fmt.Errorf("write %s: %w", b.id, ErrUnsupported)
	}
	for k := range values {
		if !b.schema.Has(k) {
			return fmt.Errorf("write %s: unknown key %q", b.id, k)
		}
	}
	snap := attributes.ValidSnapshot(attributes.TimeVersion(time.Now()), values)

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var bound attributes.Snapshot
	err := b.db.Update(ctx, func(tx *cachedb.Tx) error {
		var err error
		if bound, err = bindRefs(tx, snap); err != nil {
			return err
		}
		return tx.StoreSnapshot(b.id, bound, b.schema)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", b.id, err)
	}
	b.record.Apply(bound)
	return nil
}

// InvalidateCaches clears the masked categories from the record, forwards
// the invalidation to every backend and routes live demand for keys that
// are no longer cached to the primary. Indexed records are the source of
// truth and ignore it.
func (b *Branch) InvalidateCaches(ctx context.Context, mask attributes.ContentMask) error {
	if b.indexed {
		return nil
	}

	b.writeMu.Lock()
	b.mu.Lock()
	clear := b.mask & mask
	b.mu.Unlock()
	if clear != 0 {
		var next attributes.ContentMask
		err := b.db.Update(ctx, func(tx *cachedb.Tx) error {
			var err error
			next, err = tx.UpdateCacheMask(b.id, 0, clear)
			return err
		})
		if err != nil {
			b.writeMu.Unlock()
			return fmt.Errorf("invalidate %s: %w", b.id, err)
		}
		b.mu.Lock()
		b.mask = next
		b.mu.Unlock()
	}
	b.writeMu.Unlock()

	var errs []error
	if b.primary != nil {
		if err := b.primary.InvalidateCaches(ctx, mask); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range b.Secondaries() {
		if err := s.InvalidateCaches(ctx, mask); err != nil {
			errs = append(errs, err)
		}
	}
	b.forward(b.view.Demanded())

	b.logger.Debug("invalidated caches",
		logging.String("mask", mask.String()),
		logging.String("cache_mask", b.RecordMask().String()))
	return errors.Join(errs...)
}

// Delete deletes the backing object, then the secondaries best-effort, then
// the record. A failing primary aborts before anything is removed.
func (b *Branch) Delete(ctx context.Context) error {
	if !b.indexed {
		if b.primary == nil {
			return fmt.Errorf("delete %s: %w", b.id, ErrNoBackend)
		}
		if !b.primary.Supports(CapDelete) {
			return fmt.Errorf("delete %s: %w", b.id, ErrUndeletable)
		}
		if err := b.primary.Delete(ctx); err != nil {
			return fmt.Errorf("delete %s: %w", b.id, err)
		}
		for _, s := range b.Secondaries() {
			if !s.Supports(CapDelete) {
				continue
			}
			if err := s.Delete(ctx); err != nil {
				logging.WarnWithContext(b.logger, "failed to delete secondary backend", "secondary_delete_failed",
					logging.Token(s.Token().Key()),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, services.Hint(err)),
					logging.String(logging.FieldImpact, "the secondary copy stays in place"))
			}
		}
	}
	if err := b.db.Delete(ctx, b.id); err != nil {
		return fmt.Errorf("delete %s: %w", b.id, err)
	}
	return nil
}

func (b *Branch) addSecondary(e Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secondaries = append(b.secondaries, e)
}

func (b *Branch) removeSecondary(token Token) {
	b.mu.Lock()
	kept := make([]Entity, 0, len(b.secondaries))
	var removed []Entity
	for _, e := range b.secondaries {
		if e.Token() == token {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	b.secondaries = kept
	b.mu.Unlock()

	for _, e := range removed {
		e.Close()
	}
}

// Wait blocks until the primary has no fetch in flight, then persists and
// publishes whatever it produced.
func (b *Branch) Wait(ctx context.Context) error {
	if !b.live() {
		return nil
	}
	if w, ok := b.primary.(Waiter); ok {
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	live := b.primary.Attributes().Current()
	b.persist(attributes.Update{Snapshot: live, Changed: live.ValidKeys()})
	b.refresh()
	return nil
}

// Close stops the branch and its backends. Demands held on the view stay
// valid but nothing is fetched for them any more.
func (b *Branch) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	forwarded := b.forwarded
	b.forwarded = make(map[attributes.Key]*attributes.Demand)
	secondaries := b.secondaries
	b.mu.Unlock()

	b.view.OnDemand(nil)
	b.view.OnRelease(nil)
	b.cancel()
	b.wg.Wait()
	b.recSub.Close()
	if b.liveSub != nil {
		b.liveSub.Close()
	}
	released := make(map[*attributes.Demand]struct{})
	for _, d := range forwarded {
		if _, ok := released[d]; !ok {
			released[d] = struct{}{}
			d.Release()
		}
	}
	if b.live() {
		b.primary.Close()
	}
	for _, s := range secondaries {
		s.Close()
	}
}
