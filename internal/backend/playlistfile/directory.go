package playlistfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/textutil"
)

// Directory is a folder of audio files and playlists.
type Directory struct {
	*library.Remote
	backend *Backend
	path    string
}

// Directory returns the playlist entity of the directory at path.
func (b *Backend) Directory(path string) (*Directory, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	d := &Directory{backend: b, path: abs}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:        cachedb.KindPlaylist,
		Token:       library.Token{Kind: DirectoryKind, ID: abs},
		ContentType: library.ContentHybrid,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			groupURL:  {library.PlaylistTitle.Key},
			groupRead: {library.PlaylistTracks.Key, library.PlaylistChildren.Key},
		}),
		Fetcher: attributes.FetcherFunc(d.fetch),
		Logger:  b.logger,
	})
	if err != nil {
		return nil, err
	}
	d.Remote = remote
	return d, nil
}

func (d *Directory) fetch(_ context.Context, g attributes.Group) (attributes.Snapshot, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return attributes.Snapshot{}, fmt.Errorf("stat %s: %w", d.path, err)
	}
	if !info.IsDir() {
		return attributes.Snapshot{}, fmt.Errorf("%s is not a directory", d.path)
	}
	version := attributes.TimeVersion(info.ModTime())
	if g == groupURL {
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.PlaylistTitle.Key: textutil.TitleFromFileName(d.path, "Folder"),
		}), nil
	}

	entries, err := os.ReadDir(d.path)
	if err != nil {
		return attributes.Snapshot{}, fmt.Errorf("read %s: %w", d.path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	tracks := []library.Ref{}
	children := []library.Ref{}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ref, isTrack := d.backend.classify(filepath.Join(d.path, entry.Name()))
		switch {
		case ref.IsZero():
		case isTrack:
			tracks = append(tracks, ref)
		default:
			children = append(children, ref)
		}
	}
	return attributes.ValidSnapshot(version, map[attributes.Key]any{
		library.PlaylistTracks.Key:   tracks,
		library.PlaylistChildren.Key: children,
	}), nil
}
