package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"tunes/internal/backend/streaming/api"
)

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := api.NewClient("", "https://example.com", ""); err == nil {
		t.Fatal("expected error when token missing")
	}
	if _, err := api.NewClient("token", " ", ""); err == nil {
		t.Fatal("expected error when base url missing")
	}
}

func TestTrackSendsBearerTokenAndMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/tracks/abc" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("market"); got != "SE" {
			t.Errorf("market = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","name":"Dancing Queen","duration_ms":230400,"album":{"name":"Arrival"},"artists":[{"name":"ABBA"}]}`))
	}))
	t.Cleanup(server.Close)

	client, err := api.NewClient("secret", server.URL+"/", "SE")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	track, err := client.Track(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if track.Name != "Dancing Queen" || track.Album.Name != "Arrival" || len(track.Artists) != 1 || track.DurationMS != 230400 {
		t.Fatalf("unexpected track: %#v", track)
	}
}

func TestPlaylistTracksFollowsPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		switch offset {
		case 0:
			items := make([]map[string]any, 0, 50)
			for i := 0; i < 50; i++ {
				items = append(items, map[string]any{"track": map[string]any{"id": "t" + strconv.Itoa(i)}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "total": 52, "next": "more"})
		case 50:
			_, _ = w.Write([]byte(`{"items":[{"track":{"id":"t50"}},{"track":null},{"track":{"id":"t51","name":"Last","album":{"name":"End"}}}],"total":52,"next":null}`))
		default:
			t.Errorf("unexpected offset %d", offset)
		}
	}))
	t.Cleanup(server.Close)

	client, err := api.NewClient("secret", server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	tracks, err := client.PlaylistTracks(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PlaylistTracks: %v", err)
	}
	if len(tracks) != 52 || tracks[0].ID != "t0" || tracks[51].ID != "t51" {
		t.Fatalf("tracks = %v", tracks)
	}
	if tracks[51].Name != "Last" || tracks[51].Album.Name != "End" {
		t.Fatalf("last track = %#v, want the full track object", tracks[51])
	}
}

func TestAddTracksPostsURIs(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/playlists/p1/tracks" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			URIs []string `json:"uris"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		got = append(got, body.URIs...)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"snapshot_id":"snap-2"}`))
	}))
	t.Cleanup(server.Close)

	client, err := api.NewClient("secret", server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	snapshot, err := client.AddTracks(context.Background(), "p1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("AddTracks: %v", err)
	}
	if snapshot != "snap-2" {
		t.Fatalf("snapshot = %q", snapshot)
	}
	if len(got) != 2 || got[0] != "spotify:track:a" {
		t.Fatalf("uris = %v", got)
	}
}

func TestStatusErrorCarriesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":404,"message":"Non existing id"}}`))
	}))
	t.Cleanup(server.Close)

	client, err := api.NewClient("secret", server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.User(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !api.IsNotFound(err) {
		t.Fatalf("IsNotFound(%v) = false", err)
	}
	if want := "GET /users/ghost returned 404: Non existing id"; err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestUnfollowSendsDelete(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = r.Method == http.MethodDelete && r.URL.Path == "/playlists/p1/followers"
	}))
	t.Cleanup(server.Close)

	client, err := api.NewClient("secret", server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.Unfollow(context.Background(), "p1"); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}
	if !called {
		t.Fatal("expected DELETE on followers endpoint")
	}
}
