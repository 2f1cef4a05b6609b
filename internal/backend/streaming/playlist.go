package streaming

import (
	"context"
	"fmt"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/logging"
)

const (
	groupInfo   attributes.Group = "info"
	groupTracks attributes.Group = "tracks"
)

// Playlist is a playlist of the streaming service.
type Playlist struct {
	*library.Remote
	backend *Backend
	id      string
}

// Playlist returns the entity of playlist id.
func (b *Backend) Playlist(id string) (*Playlist, error) {
	p := &Playlist{backend: b, id: id}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:        cachedb.KindPlaylist,
		Token:       library.Token{Kind: PlaylistKind, ID: id},
		ContentType: library.ContentTracks,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			groupInfo:   {library.PlaylistTitle.Key},
			groupTracks: {library.PlaylistTracks.Key},
		}),
		Fetcher: attributes.FetcherFunc(p.fetch),
		Caps:    library.CapImportTracks | library.CapDelete,
		Logger:  b.logger,
	})
	if err != nil {
		return nil, err
	}
	p.Remote = remote
	return p, nil
}

func (p *Playlist) fetch(ctx context.Context, g attributes.Group) (attributes.Snapshot, error) {
	version := attributes.TimeVersion(p.backend.now())
	switch g {
	case groupInfo:
		playlist, err := p.backend.client.Playlist(ctx, p.id)
		if err != nil {
			return attributes.Snapshot{}, fmt.Errorf("fetch playlist %s: %w", p.id, err)
		}
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.PlaylistTitle.Key: playlist.Name,
		}), nil
	case groupTracks:
		tracks, err := p.backend.client.PlaylistTracks(ctx, p.id)
		if err != nil {
			return attributes.Snapshot{}, fmt.Errorf("fetch playlist tracks %s: %w", p.id, err)
		}
		p.backend.remember(version, tracks)
		refs := make([]library.Ref, 0, len(tracks))
		for _, track := range tracks {
			refs = append(refs, library.TokenRef(library.Token{Kind: TrackKind, ID: track.ID}))
		}
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.PlaylistTracks.Key: refs,
		}), nil
	default:
		return attributes.Snapshot{}, fmt.Errorf("unknown request group %q", g)
	}
}

// Import adds streaming tracks to the playlist.
func (p *Playlist) Import(ctx context.Context, kind cachedb.Kind, tokens []library.Token) error {
	if kind != cachedb.KindTrack {
		return fmt.Errorf("import %s into playlist %s: %w", kind, p.id, library.ErrUnimportable)
	}
	ids := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token.Kind != TrackKind {
			return fmt.Errorf("import %s into playlist %s: %w", token.Key(), p.id, library.ErrUnimportable)
		}
		ids = append(ids, token.ID)
	}
	snapshot, err := p.backend.client.AddTracks(ctx, p.id, ids)
	if err != nil {
		return fmt.Errorf("import into playlist %s: %w", p.id, err)
	}
	p.backend.logger.Info("added tracks to streaming playlist",
		logging.Token(p.Token().Key()),
		logging.String(logging.FieldEventType, "streaming_import"),
		logging.Int("track_count", len(ids)),
		logging.String("snapshot_id", snapshot))
	return nil
}

// Delete unfollows the playlist.
func (p *Playlist) Delete(ctx context.Context) error {
	if err := p.backend.client.Unfollow(ctx, p.id); err != nil {
		return fmt.Errorf("unfollow playlist %s: %w", p.id, err)
	}
	return nil
}
