package localfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/backend/localfile"
	"tunes/internal/config"
	"tunes/internal/filecache"
	"tunes/internal/library"
	"tunes/internal/logging"
	"tunes/internal/testsupport"
)

const probePayload = `{"streams":[{"index":0,"codec_name":"MP3","codec_type":"audio","sample_rate":"44100","channels":2}],` +
	`"format":{"filename":"song.mp3","duration":"215.5","bit_rate":"320000","format_name":"mp3"}}`

func newBackend(t *testing.T, cfg *config.Config) *localfile.Backend {
	t.Helper()
	cache := filecache.New(filepath.Join(cfg.AnalysisCacheDir(), "ffprobe.json"), logging.NewNop())
	return localfile.New(cfg, cache, logging.NewNop())
}

func openTrack(t *testing.T, backend *localfile.Backend, path string) *localfile.Track {
	t.Helper()
	track, err := backend.Track(path)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	t.Cleanup(track.Close)
	return track
}

func awaitKeys(t *testing.T, track *localfile.Track, keys ...attributes.Key) attributes.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := track.Attributes().Await(ctx, keys...)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	return snap
}

func TestReadGroupParsesTags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "music", "song.mp3")
	testsupport.WriteTagged(t, path, testsupport.Tags{
		Title:  "So What",
		Artist: "Miles Davis; John Coltrane",
		Album:  "Kind of Blue",
		Genre:  "Jazz",
		Year:   "1959",
		Track:  "1/5",
	})

	track := openTrack(t, newBackend(t, cfg), path)
	snap := awaitKeys(t, track, library.TrackTitle.Key, library.TrackArtists.Key, library.TrackAlbum.Key)

	if title, _ := library.TrackTitle.Get(snap); title != "So What" {
		t.Fatalf("title = %q", title)
	}
	if artists, _ := library.TrackArtists.Get(snap); !reflect.DeepEqual(artists, []string{"Miles Davis", "John Coltrane"}) {
		t.Fatalf("artists = %v", artists)
	}
	if album, _ := library.TrackAlbum.Get(snap); album != "Kind of Blue" {
		t.Fatalf("album = %q", album)
	}
	if genre, _ := library.TrackGenre.Get(snap); genre != "Jazz" {
		t.Fatalf("genre = %q", genre)
	}
	if year, _ := library.TrackYear.Get(snap); year != 1959 {
		t.Fatalf("year = %d", year)
	}
	if number, _ := library.TrackNumber.Get(snap); number != 1 {
		t.Fatalf("track number = %d", number)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got, want := snap.State(library.TrackTitle.Key).Version, attributes.TimeVersion(info.ModTime()); got != want {
		t.Fatalf("version = %s, want %s", got, want)
	}
}

func TestReadGroupFallsBackToFileName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "music", "03 - slow_burn.mp3")
	testsupport.WriteFile(t, path, 256)

	track := openTrack(t, newBackend(t, cfg), path)
	snap := awaitKeys(t, track, library.TrackTitle.Key, library.TrackAlbum.Key)
	if title, _ := library.TrackTitle.Get(snap); title != "Slow Burn" {
		t.Fatalf("title = %q, want Slow Burn", title)
	}
	if !snap.State(library.TrackAlbum.Key).IsValid() {
		t.Fatalf("album should be valid without a value, got %s", snap.State(library.TrackAlbum.Key))
	}
	if album, _ := snap.Value(library.TrackAlbum.Key); album != nil {
		t.Fatalf("album = %v, want no value", album)
	}
}

func TestReadGroupFailsForMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "gone.mp3")

	track := openTrack(t, newBackend(t, cfg), path)
	snap := awaitKeys(t, track, library.TrackTitle.Key)
	if !snap.State(library.TrackTitle.Key).IsError() {
		t.Fatalf("title state = %s, want error", snap.State(library.TrackTitle.Key))
	}
}

func TestAnalysisIsCachedByModTime(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFFprobeOutput(probePayload))
	path := filepath.Join(testsupport.BaseDir(cfg), "music", "song.mp3")
	testsupport.WriteTagged(t, path, testsupport.Tags{Title: "Song"})
	backend := newBackend(t, cfg)

	snap := awaitKeys(t, openTrack(t, backend, path), library.TrackDuration.Key, library.TrackCodec.Key)
	if duration, _ := library.TrackDuration.Get(snap); duration != 215.5 {
		t.Fatalf("duration = %v", duration)
	}
	if codec, _ := library.TrackCodec.Get(snap); codec != "mp3" {
		t.Fatalf("codec = %q", codec)
	}
	if bitrate, _ := library.TrackBitRate.Get(snap); bitrate != 320000 {
		t.Fatalf("bitrate = %d", bitrate)
	}

	awaitKeys(t, openTrack(t, backend, path), library.TrackDuration.Key)
	if calls := testsupport.FFprobeCalls(t, cfg); calls != 1 {
		t.Fatalf("ffprobe calls = %d, want 1", calls)
	}

	// A fresh backend reads the persisted cache file.
	awaitKeys(t, openTrack(t, newBackend(t, cfg), path), library.TrackDuration.Key)
	if calls := testsupport.FFprobeCalls(t, cfg); calls != 1 {
		t.Fatalf("ffprobe calls after reload = %d, want 1", calls)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	awaitKeys(t, openTrack(t, backend, path), library.TrackDuration.Key)
	if calls := testsupport.FFprobeCalls(t, cfg); calls != 2 {
		t.Fatalf("ffprobe calls after modification = %d, want 2", calls)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "music", "song.mp3")
	testsupport.WriteFile(t, path, 64)

	track := openTrack(t, newBackend(t, cfg), path)
	if !track.Supports(library.CapDelete) {
		t.Fatalf("local tracks should be deletable")
	}
	if err := track.Delete(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still exists: %v", err)
	}
	if err := track.Delete(context.Background()); err != nil {
		t.Fatalf("deleting a missing file: %v", err)
	}
}

func TestSupportsAndExpand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	backend := newBackend(t, cfg)

	if !backend.Supports("/music/Song.FLAC") {
		t.Fatalf("flac should be supported")
	}
	if backend.Supports("/music/cover.jpg") {
		t.Fatalf("jpg should not be supported")
	}

	reg := library.NewRegistry()
	backend.Register(reg)
	entity, err := reg.Expand(context.Background(), library.Token{Kind: localfile.TokenKind, ID: "/music/song.mp3"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	defer entity.Close()
	if entity.Token().ID != "/music/song.mp3" {
		t.Fatalf("token = %v", entity.Token())
	}
	if _, err := backend.Expand(context.Background(), library.Token{Kind: "m3u", ID: "x"}); !errors.Is(err, library.ErrUnsupported) {
		t.Fatalf("expand error = %v, want ErrUnsupported", err)
	}
}
