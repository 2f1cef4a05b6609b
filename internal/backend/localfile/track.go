package localfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/logging"
	"tunes/internal/media/ffprobe"
	"tunes/internal/textutil"
)

const (
	groupRead     attributes.Group = "read"
	groupAnalysis attributes.Group = "analysis"
)

// Track is one audio file.
type Track struct {
	*library.Remote
	backend *Backend
	path    string
	logger  *slog.Logger
}

// analysis is the cached subset of an ffprobe result.
type analysis struct {
	Duration float64 `json:"duration"`
	BitRate  int64   `json:"bitrate"`
	Codec    string  `json:"codec"`
}

// Track returns the track entity of the file at path.
func (b *Backend) Track(path string) (*Track, error) {
	token, err := Token(path)
	if err != nil {
		return nil, err
	}
	t := &Track{
		backend: b,
		path:    token.ID,
		logger:  b.logger.With(logging.Token(token.Key())),
	}
	groups := map[attributes.Group][]attributes.Key{
		groupRead: {
			library.TrackTitle.Key,
			library.TrackArtists.Key,
			library.TrackAlbum.Key,
			library.TrackGenre.Key,
			library.TrackYear.Key,
			library.TrackNumber.Key,
		},
	}
	if b.analyze {
		groups[groupAnalysis] = []attributes.Key{
			library.TrackDuration.Key,
			library.TrackBitRate.Key,
			library.TrackCodec.Key,
		}
	}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:     cachedb.KindTrack,
		Token:    token,
		Relation: attributes.NewRelation(groups),
		Fetcher:  attributes.FetcherFunc(t.fetch),
		Caps:     library.CapDelete,
		Logger:   b.logger,
	})
	if err != nil {
		return nil, err
	}
	t.Remote = remote
	return t, nil
}

// Path returns the absolute path of the file.
func (t *Track) Path() string { return t.path }

func (t *Track) fetch(ctx context.Context, g attributes.Group) (attributes.Snapshot, error) {
	info, err := os.Stat(t.path)
	if err != nil {
		return attributes.Snapshot{}, fmt.Errorf("stat %s: %w", t.path, err)
	}
	version := attributes.TimeVersion(info.ModTime())
	switch g {
	case groupRead:
		values, err := t.readTags()
		if err != nil {
			return attributes.Snapshot{}, err
		}
		return attributes.ValidSnapshot(version, values), nil
	case groupAnalysis:
		result, err := t.analyze(ctx, info.ModTime())
		if err != nil {
			return attributes.Snapshot{}, err
		}
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.TrackDuration.Key: result.Duration,
			library.TrackBitRate.Key:  result.BitRate,
			library.TrackCodec.Key:    result.Codec,
		}), nil
	default:
		return attributes.Snapshot{}, fmt.Errorf("unknown request group %q", g)
	}
}

func (t *Track) readTags() (map[attributes.Key]any, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	fallback := textutil.TitleFromFileName(t.path, "Untitled")
	m, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		t.logger.Debug("no embedded tags, using file name")
		return map[attributes.Key]any{library.TrackTitle.Key: fallback}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tags of %s: %w", t.path, err)
	}

	title := strings.TrimSpace(m.Title())
	if title == "" {
		title = fallback
	}
	values := map[attributes.Key]any{library.TrackTitle.Key: title}
	artist := m.Artist()
	if artist == "" {
		artist = m.AlbumArtist()
	}
	if artists := splitArtists(artist); len(artists) > 0 {
		values[library.TrackArtists.Key] = artists
	}
	if album := strings.TrimSpace(m.Album()); album != "" {
		values[library.TrackAlbum.Key] = album
	}
	if genre := strings.TrimSpace(m.Genre()); genre != "" {
		values[library.TrackGenre.Key] = genre
	}
	if year := m.Year(); year > 0 {
		values[library.TrackYear.Key] = year
	}
	if number, _ := m.Track(); number > 0 {
		values[library.TrackNumber.Key] = number
	}
	return values, nil
}

// splitArtists splits a tag value holding several artists.
func splitArtists(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ';' || r == '/' || r == '\x00' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (t *Track) analyze(ctx context.Context, modTime time.Time) (analysis, error) {
	key := t.path + "@" + strconv.FormatInt(modTime.UnixNano(), 10)
	var cached analysis
	if t.backend.cache.Get(key, &cached) {
		return cached, nil
	}

	if err := t.backend.acquire(ctx); err != nil {
		return analysis{}, err
	}
	defer t.backend.release()

	start := time.Now()
	result, err := ffprobe.Inspect(ctx, t.backend.ffprobe, t.path)
	if err != nil {
		return analysis{}, fmt.Errorf("analyze %s: %w", t.path, err)
	}
	out := analysis{
		Duration: result.DurationSeconds(),
		BitRate:  result.BitRate(),
		Codec:    result.Codec(),
	}
	t.logger.Debug("analyzed file",
		logging.Duration("elapsed", time.Since(start)),
		logging.String("codec", out.Codec))

	// Older entries for the same path are stale once the file changed.
	if _, err := t.backend.cache.DeletePrefix(t.path + "@"); err != nil {
		t.logger.Debug("failed to prune analysis cache", logging.Error(err))
	}
	if err := t.backend.cache.Insert(key, out); err != nil {
		logging.WarnWithContext(t.logger, "failed to cache analysis", "analysis_cache_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the file will be analyzed again"))
	}
	return out, nil
}

// Delete removes the file from disk.
func (t *Track) Delete(context.Context) error {
	if err := os.Remove(t.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", t.path, err)
	}
	t.logger.Info("deleted file",
		logging.String(logging.FieldEventType, "file_deleted"))
	return nil
}
