package library

import (
	"tunes/internal/attributes"
	"tunes/internal/cachedb"
)

// Ref points at another entity, by cache record id once one exists and by
// backend token otherwise.
type Ref struct {
	ID    string `json:"id,omitempty"`
	Token *Token `json:"token,omitempty"`
}

// TokenRef returns a reference to the entity backed by token.
func TokenRef(token Token) Ref {
	return Ref{Token: &token}
}

// RecordRef returns a reference to a cache record.
func RecordRef(id string) Ref {
	return Ref{ID: id}
}

// IsZero reports whether the reference points nowhere.
func (r Ref) IsZero() bool {
	return r.ID == "" && (r.Token == nil || r.Token.IsZero())
}

// ContentType restricts what a playlist may contain.
type ContentType string

const (
	ContentTracks    ContentType = "tracks"
	ContentPlaylists ContentType = "playlists"
	ContentHybrid    ContentType = "hybrid"
)

// Accepts reports whether a playlist of this type may hold entities of kind.
func (c ContentType) Accepts(kind cachedb.Kind) bool {
	switch c {
	case ContentTracks:
		return kind == cachedb.KindTrack
	case ContentPlaylists:
		return kind == cachedb.KindPlaylist
	default:
		return true
	}
}

// ParseContentType parses a content type name; the empty string is hybrid.
func ParseContentType(value string) (ContentType, bool) {
	switch ContentType(value) {
	case ContentTracks, ContentPlaylists, ContentHybrid:
		return ContentType(value), true
	case "":
		return ContentHybrid, true
	}
	return "", false
}

var (
	// TrackSchema declares the attributes of tracks.
	TrackSchema = attributes.NewSchema("track")

	TrackTitle    = attributes.Define[string](TrackSchema, "title", attributes.MaskMinimal)
	TrackArtists  = attributes.Define[[]string](TrackSchema, "artists", attributes.MaskAttributes)
	TrackAlbum    = attributes.Define[string](TrackSchema, "album", attributes.MaskAttributes)
	TrackGenre    = attributes.Define[string](TrackSchema, "genre", attributes.MaskAttributes)
	TrackYear     = attributes.Define[int](TrackSchema, "year", attributes.MaskAttributes)
	TrackNumber   = attributes.Define[int](TrackSchema, "track_number", attributes.MaskAttributes)
	TrackDuration = attributes.Define[float64](TrackSchema, "duration", attributes.MaskAttributes)
	TrackBitRate  = attributes.Define[int64](TrackSchema, "bitrate", attributes.MaskAttributes)
	TrackCodec    = attributes.Define[string](TrackSchema, "codec", attributes.MaskAttributes)
	TrackTempo    = attributes.Define[float64](TrackSchema, "tempo", attributes.MaskAttributes)
	TrackKey      = attributes.Define[string](TrackSchema, "key", attributes.MaskAttributes)

	// PlaylistSchema declares the attributes of playlists.
	PlaylistSchema = attributes.NewSchema("playlist")

	PlaylistTitle    = attributes.Define[string](PlaylistSchema, "title", attributes.MaskMinimal)
	PlaylistTracks   = attributes.Define[[]Ref](PlaylistSchema, "tracks", attributes.MaskTracks)
	PlaylistChildren = attributes.Define[[]Ref](PlaylistSchema, "children", attributes.MaskChildren)
)

// SchemaFor returns the schema of kind.
func SchemaFor(kind cachedb.Kind) *attributes.Schema {
	if kind == cachedb.KindPlaylist {
		return PlaylistSchema
	}
	return TrackSchema
}

// refKinds maps reference list keys to the kind of entity they point at.
var refKinds = map[attributes.Key]cachedb.Kind{
	PlaylistTracks.Key:   cachedb.KindTrack,
	PlaylistChildren.Key: cachedb.KindPlaylist,
}
