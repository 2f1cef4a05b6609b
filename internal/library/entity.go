package library

import (
	"context"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
)

// Capability names an optional operation of an entity.
type Capability uint8

const (
	CapDelete Capability = 1 << iota
	CapImportTracks
	CapImportPlaylists
)

// Entity is a track or playlist whose attributes load on demand.
type Entity interface {
	Kind() cachedb.Kind
	// Token identifies the backend object; the zero token marks an entity
	// that cannot be re-created and must be stored as an indexed record.
	Token() Token
	Schema() *attributes.Schema
	// Attributes is the store consumers demand keys on and subscribe to.
	Attributes() *attributes.Store
	ContentType() ContentType
	// CacheMask reports which content categories are known to be current.
	CacheMask() attributes.ContentMask
	InvalidateCaches(ctx context.Context, mask attributes.ContentMask) error
	Supports(c Capability) bool
	Delete(ctx context.Context) error
	Close()
}

// Importer is implemented by playlists that accept new content.
type Importer interface {
	Import(ctx context.Context, kind cachedb.Kind, tokens []Token) error
}

// Waiter is implemented by entities that can report when no fetch is in
// flight.
type Waiter interface {
	Wait(ctx context.Context) error
}
