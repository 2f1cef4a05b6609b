package library

import (
	"context"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
)

// JustCache stands in as the primary of an indexed record: the record is
// the only source of truth, so every category counts as cached and nothing
// is ever fetched.
type JustCache struct {
	kind        cachedb.Kind
	contentType ContentType
	store       *attributes.Store
}

func newJustCache(kind cachedb.Kind, contentType ContentType, store *attributes.Store) *JustCache {
	return &JustCache{kind: kind, contentType: contentType, store: store}
}

func (j *JustCache) Kind() cachedb.Kind                { return j.kind }
func (j *JustCache) Token() Token                      { return Token{} }
func (j *JustCache) Schema() *attributes.Schema        { return SchemaFor(j.kind) }
func (j *JustCache) Attributes() *attributes.Store     { return j.store }
func (j *JustCache) ContentType() ContentType          { return j.contentType }
func (j *JustCache) CacheMask() attributes.ContentMask { return attributes.MaskAll }
func (j *JustCache) Delete(context.Context) error      { return nil }
func (j *JustCache) Close()                            {}

func (j *JustCache) InvalidateCaches(context.Context, attributes.ContentMask) error { return nil }

// Supports reports the import capabilities allowed by the content type.
func (j *JustCache) Supports(c Capability) bool {
	if j.kind != cachedb.KindPlaylist {
		return c == CapDelete
	}
	var caps Capability = CapDelete
	if j.contentType.Accepts(cachedb.KindTrack) {
		caps |= CapImportTracks
	}
	if j.contentType.Accepts(cachedb.KindPlaylist) {
		caps |= CapImportPlaylists
	}
	return caps&c == c
}
