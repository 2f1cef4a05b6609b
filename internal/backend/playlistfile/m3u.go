package playlistfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tunes/internal/attributes"
	"tunes/internal/backend/localfile"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/logging"
	"tunes/internal/textutil"
)

const (
	groupURL  attributes.Group = "url"
	groupRead attributes.Group = "read"
)

const playlistDirective = "#PLAYLIST:"

// M3U is a playlist file on disk.
type M3U struct {
	*library.Remote
	backend *Backend
	path    string
	logger  *slog.Logger
}

// M3U returns the playlist entity of the M3U file at path.
func (b *Backend) M3U(path string) (*M3U, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	token := library.Token{Kind: M3UKind, ID: abs}
	p := &M3U{
		backend: b,
		path:    abs,
		logger:  b.logger.With(logging.Token(token.Key())),
	}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:        cachedb.KindPlaylist,
		Token:       token,
		ContentType: library.ContentHybrid,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			groupURL:  {library.PlaylistTitle.Key},
			groupRead: {library.PlaylistTracks.Key, library.PlaylistChildren.Key},
		}),
		Fetcher: attributes.FetcherFunc(p.fetch),
		Caps:    library.CapDelete | library.CapImportTracks,
		Logger:  b.logger,
	})
	if err != nil {
		return nil, err
	}
	p.Remote = remote
	return p, nil
}

func (p *M3U) fetch(_ context.Context, g attributes.Group) (attributes.Snapshot, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return attributes.Snapshot{}, fmt.Errorf("stat %s: %w", p.path, err)
	}
	version := attributes.TimeVersion(info.ModTime())

	entries, title, err := p.parse()
	if err != nil {
		return attributes.Snapshot{}, err
	}
	if g == groupURL {
		if title == "" {
			title = textutil.TitleFromFileName(p.path, "Playlist")
		}
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.PlaylistTitle.Key: title,
		}), nil
	}

	tracks := []library.Ref{}
	children := []library.Ref{}
	for _, entry := range entries {
		ref, isTrack := p.backend.classify(entry)
		switch {
		case ref.IsZero():
			p.logger.Debug("skipping playlist entry", logging.String("entry", entry))
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

// parse returns the absolute entry paths and the #PLAYLIST title.
func (p *M3U) parse() ([]string, string, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", p.path, err)
	}
	defer f.Close()

	dir := filepath.Dir(p.path)
	var (
		entries []string
		title   string
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		switch {
		case line == "":
		case strings.HasPrefix(line, playlistDirective):
			title = strings.TrimSpace(strings.TrimPrefix(line, playlistDirective))
		case strings.HasPrefix(line, "#"):
		case strings.Contains(line, "://"):
			if path, ok := strings.CutPrefix(line, "file://"); ok {
				entries = append(entries, filepath.Clean(path))
			}
		default:
			if !filepath.IsAbs(line) {
				line = filepath.Join(dir, line)
			}
			entries = append(entries, filepath.Clean(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", p.path, err)
	}
	return entries, title, nil
}

// Import appends local files to the playlist. Paths inside the playlist's
// directory are written relative to it.
func (p *M3U) Import(_ context.Context, kind cachedb.Kind, tokens []library.Token) error {
	if kind != cachedb.KindTrack {
		return fmt.Errorf("import %s into %s: %w", kind, p.path, library.ErrUnimportable)
	}
	var lines strings.Builder
	dir := filepath.Dir(p.path)
	for _, token := range tokens {
		if token.Kind != localfile.TokenKind {
			return fmt.Errorf("import %s into %s: %w", token.Key(), p.path, library.ErrUnimportable)
		}
		entry := token.ID
		if rel, err := filepath.Rel(dir, entry); err == nil && !strings.HasPrefix(rel, "..") {
			entry = rel
		}
		lines.WriteString(entry)
		lines.WriteByte('\n')
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.path, err)
	}
	if err := ensureTrailingNewline(f, p.path); err != nil {
		f.Close()
		return err
	}
	if _, err := f.WriteString(lines.String()); err != nil {
		f.Close()
		return fmt.Errorf("append to %s: %w", p.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p.path, err)
	}
	p.logger.Info("imported tracks into playlist file",
		logging.String(logging.FieldEventType, "m3u_import"),
		logging.Int("track_count", len(tokens)))
	return nil
}

func ensureTrailingNewline(f *os.File, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}
	if _, err := f.WriteString("\n"); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

// Delete removes the playlist file. Referenced tracks stay on disk.
func (p *M3U) Delete(context.Context) error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p.path, err)
	}
	return nil
}
