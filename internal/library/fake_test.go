package library_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/config"
	"tunes/internal/library"
	"tunes/internal/logging"
)

const (
	kindFakeTrack    = "fake-track"
	kindFakePlaylist = "fake-playlist"
)

type fakeTrack struct {
	title string
	album string
	tempo float64
}

type fakePlaylist struct {
	title      string
	tracks     []string
	importable bool
	deletable  bool
}

// fakeSource plays the remote service behind the fake backends.
type fakeSource struct {
	mu         sync.Mutex
	version    attributes.Version
	offline    bool
	tracks     map[string]fakeTrack
	playlists  map[string]*fakePlaylist
	fetches    map[string]int
	deleted    []string
	deleteErrs map[string]error
	imported   []library.Token
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		version:    "v1",
		tracks:     make(map[string]fakeTrack),
		playlists:  make(map[string]*fakePlaylist),
		fetches:    make(map[string]int),
		deleteErrs: make(map[string]error),
	}
}

func (s *fakeSource) registry() *library.Registry {
	reg := library.NewRegistry()
	reg.Register(kindFakeTrack, s.expandTrack)
	reg.Register(kindFakePlaylist, s.expandPlaylist)
	return reg
}

func (s *fakeSource) setVersion(v attributes.Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

func (s *fakeSource) setOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

func (s *fakeSource) fetchCount(id, group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[id+"/"+group]
}

func (s *fakeSource) deletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func (s *fakeSource) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErrs[id]; err != nil {
		return err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeTrackEntity struct {
	*library.Remote
	src *fakeSource
	id  string
}

func trackToken(id string) library.Token {
	return library.Token{Kind: kindFakeTrack, ID: id}
}

func playlistToken(id string) library.Token {
	return library.Token{Kind: kindFakePlaylist, ID: id}
}

func (s *fakeSource) expandTrack(_ context.Context, token library.Token) (library.Entity, error) {
	s.mu.Lock()
	offline := s.offline
	s.mu.Unlock()
	if offline {
		return nil, errors.New("service offline")
	}
	e := &fakeTrackEntity{src: s, id: token.ID}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:  cachedb.KindTrack,
		Token: token,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			"read":     {library.TrackTitle.Key, library.TrackAlbum.Key},
			"analysis": {library.TrackTempo.Key},
		}),
		Fetcher: attributes.FetcherFunc(e.fetch),
		Caps:    library.CapDelete,
	})
	if err != nil {
		return nil, err
	}
	e.Remote = remote
	return e, nil
}

func (e *fakeTrackEntity) fetch(_ context.Context, g attributes.Group) (attributes.Snapshot, error) {
	e.src.mu.Lock()
	defer e.src.mu.Unlock()
	e.src.fetches[e.id+"/"+string(g)]++
	track, ok := e.src.tracks[e.id]
	if !ok {
		return attributes.Snapshot{}, fmt.Errorf("track %s not found", e.id)
	}
	switch g {
	case "read":
		return attributes.ValidSnapshot(e.src.version, map[attributes.Key]any{
			library.TrackTitle.Key: track.title,
			library.TrackAlbum.Key: track.album,
		}), nil
	default:
		return attributes.ValidSnapshot(e.src.version, map[attributes.Key]any{
			library.TrackTempo.Key: track.tempo,
		}), nil
	}
}

func (e *fakeTrackEntity) Delete(context.Context) error {
	return e.src.delete(e.id)
}

type fakePlaylistEntity struct {
	*library.Remote
	src *fakeSource
	id  string
}

func (s *fakeSource) expandPlaylist(_ context.Context, token library.Token) (library.Entity, error) {
	s.mu.Lock()
	offline := s.offline
	p, ok := s.playlists[token.ID]
	s.mu.Unlock()
	if offline {
		return nil, errors.New("service offline")
	}
	if !ok {
		return nil, fmt.Errorf("playlist %s not found", token.ID)
	}
	var caps library.Capability
	if p.importable {
		caps |= library.CapImportTracks
	}
	if p.deletable {
		caps |= library.CapDelete
	}
	e := &fakePlaylistEntity{src: s, id: token.ID}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:        cachedb.KindPlaylist,
		Token:       token,
		ContentType: library.ContentTracks,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			"info":    {library.PlaylistTitle.Key},
			"content": {library.PlaylistTracks.Key},
		}),
		Fetcher: attributes.FetcherFunc(e.fetch),
		Caps:    caps,
	})
	if err != nil {
		return nil, err
	}
	e.Remote = remote
	return e, nil
}

func (e *fakePlaylistEntity) fetch(_ context.Context, g attributes.Group) (attributes.Snapshot, error) {
	e.src.mu.Lock()
	defer e.src.mu.Unlock()
	e.src.fetches[e.id+"/"+string(g)]++
	p := e.src.playlists[e.id]
	if g == "info" {
		return attributes.ValidSnapshot(e.src.version, map[attributes.Key]any{
			library.PlaylistTitle.Key: p.title,
		}), nil
	}
	refs := make([]library.Ref, 0, len(p.tracks))
	for _, id := range p.tracks {
		refs = append(refs, library.TokenRef(trackToken(id)))
	}
	return attributes.ValidSnapshot(e.src.version, map[attributes.Key]any{
		library.PlaylistTracks.Key: refs,
	}), nil
}

func (e *fakePlaylistEntity) Import(_ context.Context, kind cachedb.Kind, tokens []library.Token) error {
	if kind != cachedb.KindTrack {
		return library.ErrUnimportable
	}
	e.src.mu.Lock()
	defer e.src.mu.Unlock()
	p := e.src.playlists[e.id]
	for _, token := range tokens {
		p.tracks = append(p.tracks, token.ID)
		e.src.imported = append(e.src.imported, token)
	}
	return nil
}

func (e *fakePlaylistEntity) Delete(context.Context) error {
	return e.src.delete(e.id)
}

// transientPlaylist returns a playlist entity that no backend can re-create.
func transientPlaylist(t *testing.T, title string) library.Entity {
	t.Helper()
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind: cachedb.KindPlaylist,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			"none": {library.PlaylistTitle.Key},
		}),
		Fetcher: attributes.FetcherFunc(func(context.Context, attributes.Group) (attributes.Snapshot, error) {
			return attributes.Snapshot{}, errors.New("transient")
		}),
		Initial: attributes.ValidSnapshot("v1", map[attributes.Key]any{library.PlaylistTitle.Key: title}),
	})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	return remote
}

func openLibrary(t *testing.T, cfg *config.Config, src *fakeSource) (*library.Library, *cachedb.Store) {
	t.Helper()
	store, err := cachedb.Open(cfg)
	if err != nil {
		t.Fatalf("cachedb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	lib := library.New(store, src.registry(), logging.NewNop())
	t.Cleanup(lib.Close)
	return lib, store
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func await(t *testing.T, b *library.Branch, keys ...attributes.Key) attributes.Snapshot {
	t.Helper()
	ctx := testContext(t)
	snap, err := b.Attributes().Await(ctx, keys...)
	if err != nil {
		t.Fatalf("await %v: %v", keys, err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	return snap
}

func insertTrack(t *testing.T, lib *library.Library, src *fakeSource, id string, track fakeTrack) *library.Branch {
	t.Helper()
	src.mu.Lock()
	src.tracks[id] = track
	src.mu.Unlock()
	ctx := testContext(t)
	e, err := lib.Registry().Expand(ctx, trackToken(id))
	if err != nil {
		t.Fatalf("expand track: %v", err)
	}
	b, err := lib.Insert(ctx, e)
	if err != nil {
		t.Fatalf("insert track: %v", err)
	}
	return b
}
