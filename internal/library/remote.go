package library

import (
	"context"
	"fmt"
	"log/slog"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
)

// RemoteConfig describes a backend entity.
type RemoteConfig struct {
	Kind        cachedb.Kind
	Token       Token
	ContentType ContentType
	Relation    attributes.Relation
	Fetcher     attributes.Fetcher
	// Caps lists the capabilities the backend supports.
	Caps    Capability
	Initial attributes.Snapshot
	Logger  *slog.Logger
	Context context.Context
}

// Remote is the part of a backend entity shared by every backend: an
// attribute store fed by a request mapper. Backends embed it and override
// Delete or add Import as they support them.
type Remote struct {
	kind        cachedb.Kind
	token       Token
	contentType ContentType
	schema      *attributes.Schema
	caps        Capability
	store       *attributes.Store
	mapper      *attributes.Mapper
}

// NewRemote wires a store and mapper for a backend entity.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	schema := SchemaFor(cfg.Kind)
	for _, k := range cfg.Relation.Keys().Sorted() {
		if !schema.Has(k) {
			return nil, fmt.Errorf("new %s remote %s: unknown key %q", cfg.Kind, cfg.Token.Key(), k)
		}
	}
	store := attributes.NewStore(attributes.WithInitial(cfg.Initial))
	opts := []attributes.MapperOption{
		attributes.WithLogger(cfg.Logger),
		attributes.WithEntity(cfg.Token.Key()),
	}
	if cfg.Context != nil {
		opts = append(opts, attributes.WithContext(cfg.Context))
	}
	mapper, err := attributes.NewMapper(store, cfg.Relation, cfg.Fetcher, opts...)
	if err != nil {
		return nil, fmt.Errorf("new %s remote %s: %w", cfg.Kind, cfg.Token.Key(), err)
	}
	contentType := cfg.ContentType
	if cfg.Kind == cachedb.KindPlaylist && contentType == "" {
		contentType = ContentHybrid
	}
	return &Remote{
		kind:        cfg.Kind,
		token:       cfg.Token,
		contentType: contentType,
		schema:      schema,
		caps:        cfg.Caps,
		store:       store,
		mapper:      mapper,
	}, nil
}

func (r *Remote) Kind() cachedb.Kind                { return r.kind }
func (r *Remote) Token() Token                      { return r.token }
func (r *Remote) Schema() *attributes.Schema        { return r.schema }
func (r *Remote) Attributes() *attributes.Store     { return r.store }
func (r *Remote) ContentType() ContentType          { return r.contentType }
func (r *Remote) Mapper() *attributes.Mapper        { return r.mapper }
func (r *Remote) Supports(c Capability) bool        { return r.caps&c == c }
func (r *Remote) CacheMask() attributes.ContentMask { return r.mapper.Mask(r.schema) }

// InvalidateCaches drops the masked categories and refetches what is still
// demanded.
func (r *Remote) InvalidateCaches(_ context.Context, mask attributes.ContentMask) error {
	r.mapper.InvalidateMask(r.schema, mask)
	return nil
}

// Delete reports ErrUndeletable; backends that can delete override it.
func (r *Remote) Delete(context.Context) error {
	return fmt.Errorf("delete %s: %w", r.token.Key(), ErrUndeletable)
}

// Wait blocks until no fetch is in flight.
func (r *Remote) Wait(ctx context.Context) error { return r.mapper.Wait(ctx) }

// Close stops the mapper.
func (r *Remote) Close() { r.mapper.Close() }
