package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/logging"
	"tunes/internal/services"
)

// Library owns every open Branch, keyed by cache record id. Entities refer to
// each other through Ref values resolved here, never through pointers.
type Library struct {
	db       *cachedb.Store
	registry *Registry
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	branches map[string]*Branch
}

// New creates a library over an open cache database.
func New(db *cachedb.Store, registry *Registry, logger *slog.Logger) *Library {
	if registry == nil {
		registry = NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Library{
		db:       db,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "library"),
		ctx:      ctx,
		cancel:   cancel,
		branches: make(map[string]*Branch),
	}
}

// Registry returns the token registry used to re-create backends.
func (l *Library) Registry() *Registry { return l.registry }

// Open returns the branch of record id, loading it on first use. A backend
// that cannot be re-created leaves the branch serving cached values only.
func (l *Library) Open(ctx context.Context, id string) (*Branch, error) {
	if b := l.lookup(id); b != nil {
		return b, nil
	}
	rec, err := l.db.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, cachedb.ErrNotFound) {
			return nil, fmt.Errorf("open %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	var primary Entity
	if !rec.Indexed && !rec.Token.IsZero() {
		primary = l.expand(ctx, tokenFromRef(rec.Token))
	}
	return l.attach(ctx, rec, primary)
}

func (l *Library) lookup(id string) *Branch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.branches[id]
}

// attach builds the branch of rec around primary and registers it. When
// another caller registered the same record first, that branch wins.
func (l *Library) attach(ctx context.Context, rec *cachedb.Record, primary Entity) (*Branch, error) {
	snap, err := l.db.LoadSnapshot(ctx, rec.ID, SchemaFor(rec.Kind))
	if err != nil {
		if primary != nil {
			primary.Close()
		}
		return nil, fmt.Errorf("open %s: %w", rec.ID, err)
	}
	var secondaries []Entity
	for _, ref := range rec.Secondaries {
		if e := l.expand(ctx, tokenFromRef(ref)); e != nil {
			secondaries = append(secondaries, e)
		}
	}

	b := newBranch(l.ctx, l.db, l.logger, rec, snap, primary, secondaries)

	l.mu.Lock()
	if existing, ok := l.branches[rec.ID]; ok {
		l.mu.Unlock()
		b.Close()
		return existing, nil
	}
	l.branches[rec.ID] = b
	l.mu.Unlock()
	return b, nil
}

func (l *Library) expand(ctx context.Context, token Token) Entity {
	entity, err := l.registry.Expand(ctx, token)
	if err != nil {
		logging.WarnWithContext(l.logger, "backend unavailable, serving cached attributes", "backend_expand_failed",
			logging.Token(token.Key()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "attributes come from the cache only"))
		return nil
	}
	return entity
}

// Insert stores a live entity and returns its branch. An entity whose token
// is already stored reuses that record. An entity without a token becomes an
// indexed record holding its current values.
func (l *Library) Insert(ctx context.Context, e Entity) (*Branch, error) {
	token := e.Token()
	if token.IsZero() {
		defer e.Close()
		return l.insertIndexed(ctx, e.Kind(), e.ContentType(), e.Attributes().Current().OnlyValid())
	}

	schema := SchemaFor(e.Kind())
	var rec *cachedb.Record
	err := l.db.Update(ctx, func(tx *cachedb.Tx) error {
		existing, err := tx.FindByToken(token.ref())
		if err != nil {
			return err
		}
		if existing != nil {
			rec = existing
			return nil
		}
		rec = &cachedb.Record{Kind: e.Kind(), Token: token.ref(), ContentType: string(e.ContentType())}
		if err := tx.InsertRecord(rec); err != nil {
			return err
		}
		bound, err := bindRefs(tx, e.Attributes().Current().OnlyValid())
		if err != nil {
			return err
		}
		return tx.StoreSnapshot(rec.ID, bound, schema)
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("insert %s: %w", token.Key(), err)
	}

	if b := l.lookup(rec.ID); b != nil {
		e.Close()
		return b, nil
	}
	l.logger.Debug("inserted entity",
		logging.EntityID(rec.ID),
		logging.Token(token.Key()))
	return l.attach(ctx, rec, e)
}

// NewFolder creates an indexed playlist.
func (l *Library) NewFolder(ctx context.Context, title string, content ContentType) (*Branch, error) {
	if content == "" {
		content = ContentHybrid
	}
	snap := attributes.ValidSnapshot(attributes.TimeVersion(time.Now()), map[attributes.Key]any{
		PlaylistTitle.Key:    title,
		PlaylistTracks.Key:   []Ref{},
		PlaylistChildren.Key: []Ref{},
	})
	return l.insertIndexed(ctx, cachedb.KindPlaylist, content, snap)
}

func (l *Library) insertIndexed(ctx context.Context, kind cachedb.Kind, content ContentType, snap attributes.Snapshot) (*Branch, error) {
	rec := &cachedb.Record{
		Kind:        kind,
		Indexed:     true,
		ContentType: string(content),
		CacheMask:   attributes.MaskAll,
	}
	err := l.db.Update(ctx, func(tx *cachedb.Tx) error {
		if err := tx.InsertRecord(rec); err != nil {
			return err
		}
		bound, err := bindRefs(tx, snap)
		if err != nil {
			return err
		}
		return tx.StoreSnapshot(rec.ID, bound, SchemaFor(kind))
	})
	if err != nil {
		return nil, fmt.Errorf("insert indexed %s: %w", kind, err)
	}
	return l.attach(ctx, rec, nil)
}

// Resolve returns the branch a reference points at. A token that is not
// stored yet is expanded and inserted.
func (l *Library) Resolve(ctx context.Context, ref Ref) (*Branch, error) {
	rec, err := l.recordFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.Open(ctx, rec.ID)
}

func (l *Library) recordFor(ctx context.Context, ref Ref) (*cachedb.Record, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("resolve: empty reference: %w", ErrNotFound)
	}
	if ref.ID != "" {
		rec, err := l.db.GetRecord(ctx, ref.ID)
		switch {
		case err == nil:
			return rec, nil
		case !errors.Is(err, cachedb.ErrNotFound):
			return nil, fmt.Errorf("resolve %s: %w", ref.ID, err)
		case ref.Token == nil || ref.Token.IsZero():
			return nil, fmt.Errorf("resolve %s: %w", ref.ID, ErrNotFound)
		}
	}
	token := *ref.Token
	rec, err := l.db.FindByToken(ctx, token.ref())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", token.Key(), err)
	}
	if rec != nil {
		return rec, nil
	}
	entity, err := l.registry.Expand(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", token.Key(), err)
	}
	b, err := l.Insert(ctx, entity)
	if err != nil {
		return nil, err
	}
	return l.db.GetRecord(ctx, b.ID())
}

// Import adds refs to playlist id. Indexed playlists take the references
// directly; backed playlists must import them through their backend.
func (l *Library) Import(ctx context.Context, id string, refs []Ref) error {
	if len(refs) == 0 {
		return fmt.Errorf("import into %s: %w", id, ErrEmptyImport)
	}
	target, err := l.Open(ctx, id)
	if err != nil {
		return err
	}
	if target.Kind() != cachedb.KindPlaylist {
		return fmt.Errorf("import into %s: target is a %s: %w", id, target.Kind(), ErrUnimportable)
	}

	content := target.ContentType()
	items := make([]*cachedb.Record, 0, len(refs))
	for _, ref := range refs {
		rec, err := l.recordFor(ctx, ref)
		if err != nil {
			return fmt.Errorf("import into %s: %w", id, err)
		}
		if !content.Accepts(rec.Kind) {
			return fmt.Errorf("import %s into %s playlist %s: %w", rec.Kind, content, id, ErrUnimportable)
		}
		if rec.ID == id {
			return fmt.Errorf("import %s into itself: %w", id, ErrUnimportable)
		}
		items = append(items, rec)
	}

	if target.Indexed() {
		return l.appendRefs(ctx, target, items)
	}

	primary := target.Primary()
	if primary == nil {
		return fmt.Errorf("import into %s: %w", id, ErrNoBackend)
	}
	importer, ok := primary.(Importer)
	byKind := make(map[cachedb.Kind][]Token)
	for _, rec := range items {
		need := CapImportTracks
		if rec.Kind == cachedb.KindPlaylist {
			need = CapImportPlaylists
		}
		if !ok || !primary.Supports(need) {
			return fmt.Errorf("import %s into %s: %w", rec.Kind, id, ErrUnimportable)
		}
		if rec.Token.IsZero() {
			return fmt.Errorf("import %s into %s: record has no backend: %w", rec.ID, id, ErrUnimportable)
		}
		byKind[rec.Kind] = append(byKind[rec.Kind], tokenFromRef(rec.Token))
	}

	var mask attributes.ContentMask
	for _, kind := range []cachedb.Kind{cachedb.KindTrack, cachedb.KindPlaylist} {
		tokens := byKind[kind]
		if len(tokens) == 0 {
			continue
		}
		if err := importer.Import(ctx, kind, tokens); err != nil {
			return fmt.Errorf("import into %s: %w", id, err)
		}
		if kind == cachedb.KindTrack {
			mask |= attributes.MaskTracks
		} else {
			mask |= attributes.MaskChildren
		}
	}
	return target.InvalidateCaches(ctx, mask)
}

func (l *Library) appendRefs(ctx context.Context, target *Branch, items []*cachedb.Record) error {
	snap := target.Record()
	tracks, _ := PlaylistTracks.Get(snap)
	children, _ := PlaylistChildren.Get(snap)
	tracks = append([]Ref(nil), tracks...)
	children = append([]Ref(nil), children...)

	seen := make(map[string]struct{}, len(children))
	for _, ref := range children {
		seen[ref.ID] = struct{}{}
	}
	for _, rec := range items {
		ref := RecordRef(rec.ID)
		if !rec.Token.IsZero() {
			token := tokenFromRef(rec.Token)
			ref.Token = &token
		}
		if rec.Kind == cachedb.KindTrack {
			tracks = append(tracks, ref)
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		children = append(children, ref)
	}
	return target.Write(ctx, map[attributes.Key]any{
		PlaylistTracks.Key:   tracks,
		PlaylistChildren.Key: children,
	})
}

// Delete deletes the backing object of record id and the record itself.
func (l *Library) Delete(ctx context.Context, id string) error {
	b, err := l.Open(ctx, id)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx); err != nil {
		return err
	}
	l.detach(id)
	l.logger.Info("deleted entity",
		logging.EntityID(id),
		logging.String(logging.FieldEventType, "entity_deleted"))
	return nil
}

// Forget drops the cache record of id and leaves the backing object alone.
func (l *Library) Forget(ctx context.Context, id string) error {
	l.detach(id)
	if err := l.db.Delete(ctx, id); err != nil {
		if errors.Is(err, cachedb.ErrNotFound) {
			return fmt.Errorf("forget %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("forget %s: %w", id, err)
	}
	return nil
}

func (l *Library) detach(id string) {
	l.mu.Lock()
	b := l.branches[id]
	delete(l.branches, id)
	l.mu.Unlock()
	if b != nil {
		b.Close()
	}
}

// AddSecondary records token as a secondary backend of record id.
func (l *Library) AddSecondary(ctx context.Context, id string, token Token) error {
	b, err := l.Open(ctx, id)
	if err != nil {
		return err
	}
	if token.IsZero() {
		return fmt.Errorf("add secondary to %s: empty token: %w", id, ErrUnsupported)
	}
	if err := l.db.Update(ctx, func(tx *cachedb.Tx) error {
		return tx.AddSecondary(id, token.ref())
	}); err != nil {
		return fmt.Errorf("add secondary to %s: %w", id, err)
	}
	if e := l.expand(ctx, token); e != nil {
		b.addSecondary(e)
	}
	return nil
}

// RemoveSecondary detaches a secondary backend from record id. The backend
// object itself is left alone.
func (l *Library) RemoveSecondary(ctx context.Context, id string, token Token) error {
	b, err := l.Open(ctx, id)
	if err != nil {
		return err
	}
	err = l.db.Update(ctx, func(tx *cachedb.Tx) error {
		return tx.RemoveSecondary(id, token.ref())
	})
	switch {
	case errors.Is(err, cachedb.ErrNotFound):
		return fmt.Errorf("remove secondary %s from %s: %w", token.Key(), id, ErrNotFound)
	case err != nil:
		return fmt.Errorf("remove secondary %s from %s: %w", token.Key(), id, err)
	}
	b.removeSecondary(token)
	return nil
}

// List returns the records of kind; an empty kind lists every record.
func (l *Library) List(ctx context.Context, kind cachedb.Kind) ([]*cachedb.Record, error) {
	return l.db.ListRecords(ctx, kind)
}

// Roots returns the playlists no other playlist lists as a child.
func (l *Library) Roots(ctx context.Context) ([]*cachedb.Record, error) {
	playlists, err := l.db.ListRecords(ctx, cachedb.KindPlaylist)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	snaps, err := l.db.LoadSnapshots(ctx, cachedb.KindPlaylist, PlaylistSchema)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	nested := make(map[string]struct{})
	for _, snap := range snaps {
		children, _ := PlaylistChildren.Get(snap)
		for _, ref := range children {
			nested[ref.ID] = struct{}{}
		}
	}
	roots := make([]*cachedb.Record, 0, len(playlists))
	for _, rec := range playlists {
		if _, ok := nested[rec.ID]; !ok {
			roots = append(roots, rec)
		}
	}
	return roots, nil
}

// Close closes every open branch.
func (l *Library) Close() {
	l.mu.Lock()
	branches := l.branches
	l.branches = make(map[string]*Branch)
	l.mu.Unlock()
	for _, b := range branches {
		b.Close()
	}
	l.cancel()
}
