package streaming

import (
	"context"
	"fmt"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
)

const groupPlaylists attributes.Group = "playlists"

// User is a user of the streaming service; its children are the user's
// public playlists.
type User struct {
	*library.Remote
	backend *Backend
	id      string
}

// User returns the entity of user id.
func (b *Backend) User(id string) (*User, error) {
	u := &User{backend: b, id: id}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:        cachedb.KindPlaylist,
		Token:       library.Token{Kind: UserKind, ID: id},
		ContentType: library.ContentPlaylists,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			groupInfo:      {library.PlaylistTitle.Key},
			groupPlaylists: {library.PlaylistChildren.Key},
		}),
		Fetcher: attributes.FetcherFunc(u.fetch),
		Logger:  b.logger,
	})
	if err != nil {
		return nil, err
	}
	u.Remote = remote
	return u, nil
}

func (u *User) fetch(ctx context.Context, g attributes.Group) (attributes.Snapshot, error) {
	version := attributes.TimeVersion(u.backend.now())
	switch g {
	case groupInfo:
		user, err := u.backend.client.User(ctx, u.id)
		if err != nil {
			return attributes.Snapshot{}, fmt.Errorf("fetch user %s: %w", u.id, err)
		}
		title := user.DisplayName
		if title == "" {
			title = user.ID
		}
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.PlaylistTitle.Key: title,
		}), nil
	case groupPlaylists:
		playlists, err := u.backend.client.UserPlaylists(ctx, u.id)
		if err != nil {
			return attributes.Snapshot{}, fmt.Errorf("fetch playlists of %s: %w", u.id, err)
		}
		refs := make([]library.Ref, 0, len(playlists))
		for _, pl := range playlists {
			refs = append(refs, library.TokenRef(library.Token{Kind: PlaylistKind, ID: pl.ID}))
		}
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.PlaylistChildren.Key: refs,
		}), nil
	default:
		return attributes.Snapshot{}, fmt.Errorf("unknown request group %q", g)
	}
}
