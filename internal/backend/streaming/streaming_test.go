package streaming_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/backend/streaming"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/logging"
	"tunes/internal/testsupport"
)

var heyJude = map[string]any{
	"id": "t1", "name": "Hey Jude", "duration_ms": 431000,
	"album":   map[string]any{"name": "Single"},
	"artists": []map[string]any{{"name": "The Beatles"}},
}

type fakeService struct {
	mu       sync.Mutex
	tracks   []string
	requests map[string]int
}

func newService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	svc := &fakeService{tracks: []string{"t1"}, requests: make(map[string]int)}
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, payload any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}
	mux.HandleFunc("GET /tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
		write(w, heyJude)
	})
	mux.HandleFunc("GET /audio-features/t1", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
		write(w, map[string]any{"id": "t1", "tempo": 73.5, "key": 5, "mode": 1})
	})
	mux.HandleFunc("GET /playlists/p1", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
		write(w, map[string]any{"id": "p1", "name": "Classics", "snapshot_id": "s1"})
	})
	mux.HandleFunc("GET /playlists/p1/tracks", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
		svc.mu.Lock()
		defer svc.mu.Unlock()
		items := make([]map[string]any, 0, len(svc.tracks))
		for _, id := range svc.tracks {
			track := map[string]any{"id": id}
			if id == "t1" {
				track = heyJude
			}
			items = append(items, map[string]any{"track": track})
		}
		write(w, map[string]any{"items": items, "total": len(items)})
	})
	mux.HandleFunc("POST /playlists/p1/tracks", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
		var body struct {
			URIs []string `json:"uris"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		svc.mu.Lock()
		for _, uri := range body.URIs {
			svc.tracks = append(svc.tracks, uri[len("spotify:track:"):])
		}
		svc.mu.Unlock()
		write(w, map[string]any{"snapshot_id": "s2"})
	})
	mux.HandleFunc("DELETE /playlists/p1/followers", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
	})
	mux.HandleFunc("GET /users/u1", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
		write(w, map[string]any{"id": "u1", "display_name": ""})
	})
	mux.HandleFunc("GET /users/u1/playlists", func(w http.ResponseWriter, r *http.Request) {
		svc.count(r)
		write(w, map[string]any{"items": []map[string]any{{"id": "p1", "name": "Classics"}, {"id": "p2", "name": "Other"}}})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return svc, server
}

func (s *fakeService) count(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.Method+" "+r.URL.Path]++
}

func (s *fakeService) hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

func newBackend(t *testing.T, server *httptest.Server) *streaming.Backend {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStreaming(server.URL, "secret"))
	backend, err := streaming.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return backend
}

func await(t *testing.T, e library.Entity, keys ...attributes.Key) attributes.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := e.Attributes().Await(ctx, keys...)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	return snap
}

func TestTrackGroups(t *testing.T) {
	svc, server := newService(t)
	track, err := newBackend(t, server).Track("t1")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	defer track.Close()

	snap := await(t, track, library.TrackTitle.Key)
	if title, _ := library.TrackTitle.Get(snap); title != "Hey Jude" {
		t.Fatalf("title = %q", title)
	}
	if artists, _ := library.TrackArtists.Get(snap); !reflect.DeepEqual(artists, []string{"The Beatles"}) {
		t.Fatalf("artists = %v", artists)
	}
	if duration, _ := library.TrackDuration.Get(snap); duration != 431 {
		t.Fatalf("duration = %v", duration)
	}
	if svc.hits("GET /audio-features/t1") != 0 {
		t.Fatalf("analysis fetched without demand")
	}

	snap = await(t, track, library.TrackTempo.Key, library.TrackKey.Key)
	if tempo, _ := library.TrackTempo.Get(snap); tempo != 73.5 {
		t.Fatalf("tempo = %v", tempo)
	}
	if key, _ := library.TrackKey.Get(snap); key != "F major" {
		t.Fatalf("key = %q", key)
	}
	if svc.hits("GET /tracks/t1") != 1 {
		t.Fatalf("track endpoint hit %d times", svc.hits("GET /tracks/t1"))
	}
}

func TestPlaylistImportAndDelete(t *testing.T) {
	svc, server := newService(t)
	ctx := context.Background()
	playlist, err := newBackend(t, server).Playlist("p1")
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	defer playlist.Close()

	snap := await(t, playlist, library.PlaylistTitle.Key, library.PlaylistTracks.Key)
	if title, _ := library.PlaylistTitle.Get(snap); title != "Classics" {
		t.Fatalf("title = %q", title)
	}
	if tracks, _ := library.PlaylistTracks.Get(snap); len(tracks) != 1 || *tracks[0].Token != (library.Token{Kind: streaming.TrackKind, ID: "t1"}) {
		t.Fatalf("tracks = %+v", tracks)
	}

	if !playlist.Supports(library.CapImportTracks) || playlist.Supports(library.CapImportPlaylists) {
		t.Fatalf("unexpected capabilities")
	}
	if err := playlist.Import(ctx, cachedb.KindTrack, []library.Token{{Kind: streaming.TrackKind, ID: "t2"}}); err != nil {
		t.Fatalf("import: %v", err)
	}
	err = playlist.Import(ctx, cachedb.KindTrack, []library.Token{{Kind: "file", ID: "/a.mp3"}})
	if !errors.Is(err, library.ErrUnimportable) {
		t.Fatalf("import file error = %v, want ErrUnimportable", err)
	}

	if err := playlist.InvalidateCaches(ctx, attributes.MaskTracks); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	snap = await(t, playlist, library.PlaylistTracks.Key)
	if tracks, _ := library.PlaylistTracks.Get(snap); len(tracks) != 2 || tracks[1].Token.ID != "t2" {
		t.Fatalf("tracks after import = %+v", tracks)
	}

	if err := playlist.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if svc.hits("DELETE /playlists/p1/followers") != 1 {
		t.Fatalf("expected an unfollow request")
	}
}

func TestListedTrackIsNotFetchedAgain(t *testing.T) {
	svc, server := newService(t)
	backend := newBackend(t, server)

	playlist, err := backend.Playlist("p1")
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	defer playlist.Close()
	await(t, playlist, library.PlaylistTracks.Key)

	track, err := backend.Track("t1")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	defer track.Close()
	if got := track.Mapper().GroupState("track"); got != attributes.GroupFulfilled {
		t.Fatalf("track group = %s, want fulfilled from the listing", got)
	}

	snap := await(t, track, library.TrackTitle.Key, library.TrackArtists.Key, library.TrackDuration.Key)
	if title, _ := library.TrackTitle.Get(snap); title != "Hey Jude" {
		t.Fatalf("title = %q", title)
	}
	if duration, _ := library.TrackDuration.Get(snap); duration != 431 {
		t.Fatalf("duration = %v", duration)
	}
	if err := track.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n := svc.hits("GET /tracks/t1"); n != 0 {
		t.Fatalf("track endpoint hit %d times, want 0", n)
	}

	// Analysis is not part of a listing and still fetches.
	snap = await(t, track, library.TrackTempo.Key)
	if tempo, _ := library.TrackTempo.Get(snap); tempo != 73.5 {
		t.Fatalf("tempo = %v", tempo)
	}
}

func TestUserListsPlaylists(t *testing.T) {
	_, server := newService(t)
	reg := library.NewRegistry()
	newBackend(t, server).Register(reg)

	entity, err := reg.Expand(context.Background(), library.Token{Kind: streaming.UserKind, ID: "u1"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	defer entity.Close()
	if entity.ContentType() != library.ContentPlaylists {
		t.Fatalf("content type = %s", entity.ContentType())
	}
	snap := await(t, entity, library.PlaylistTitle.Key, library.PlaylistChildren.Key)
	if title, _ := library.PlaylistTitle.Get(snap); title != "u1" {
		t.Fatalf("title = %q, want the user id", title)
	}
	children, _ := library.PlaylistChildren.Get(snap)
	if len(children) != 2 || children[1].Token.ID != "p2" || children[1].Token.Kind != streaming.PlaylistKind {
		t.Fatalf("children = %+v", children)
	}
}

func TestFetchErrorMarksGroup(t *testing.T) {
	_, server := newService(t)
	track, err := newBackend(t, server).Track("missing")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	defer track.Close()
	snap := await(t, track, library.TrackTitle.Key)
	if !snap.State(library.TrackTitle.Key).IsError() {
		t.Fatalf("title state = %s, want error", snap.State(library.TrackTitle.Key))
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw  string
		want library.Token
		ok   bool
	}{
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", library.Token{Kind: streaming.TrackKind, ID: "4uLU6hMCjMI75M1A2tKUQC"}, true},
		{"https://open.spotify.com/intl-de/playlist/37i9dQZF1DX", library.Token{Kind: streaming.PlaylistKind, ID: "37i9dQZF1DX"}, true},
		{"spotify:user:someone", library.Token{Kind: streaming.UserKind, ID: "someone"}, true},
		{"spotify:album:abc", library.Token{}, false},
		{"https://example.com/track/abc", library.Token{}, false},
		{"/music/song.mp3", library.Token{}, false},
	}
	for _, tc := range tests {
		got, ok := streaming.ParseURL(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseURL(%q) = %v, %v; want %v, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
