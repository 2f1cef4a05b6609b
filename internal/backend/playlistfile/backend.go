package playlistfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tunes/internal/backend/localfile"
	"tunes/internal/library"
	"tunes/internal/logging"
)

const (
	// M3UKind identifies M3U playlist tokens.
	M3UKind = "m3u"
	// DirectoryKind identifies directory tokens.
	DirectoryKind = "directory"
)

// Backend creates playlist entities for M3U files and directories.
type Backend struct {
	files  *localfile.Backend
	logger *slog.Logger
}

// New returns a backend that classifies entries with files.
func New(files *localfile.Backend, logger *slog.Logger) *Backend {
	return &Backend{
		files:  files,
		logger: logging.NewComponentLogger(logger, "playlistfile"),
	}
}

// Register installs the expanders of both token kinds.
func (b *Backend) Register(reg *library.Registry) {
	reg.Register(M3UKind, b.Expand)
	reg.Register(DirectoryKind, b.Expand)
}

// IsM3U reports whether path names an M3U playlist.
func IsM3U(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u", ".m3u8":
		return true
	}
	return false
}

// Token returns the playlist token of path, or false when path is neither an
// M3U file nor a directory.
func Token(path string) (library.Token, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return library.Token{}, false, fmt.Errorf("resolve %s: %w", path, err)
	}
	if IsM3U(abs) {
		return library.Token{Kind: M3UKind, ID: abs}, true, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return library.Token{}, false, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return library.Token{Kind: DirectoryKind, ID: abs}, true, nil
	}
	return library.Token{}, false, nil
}

// Expand re-creates the playlist of token.
func (b *Backend) Expand(_ context.Context, token library.Token) (library.Entity, error) {
	switch token.Kind {
	case M3UKind:
		return b.M3U(token.ID)
	case DirectoryKind:
		return b.Directory(token.ID)
	default:
		return nil, fmt.Errorf("expand %s: %w", token.Key(), library.ErrUnsupported)
	}
}

// classify turns one path into a track or child playlist reference. Paths
// that are neither are skipped.
func (b *Backend) classify(path string) (library.Ref, bool) {
	if IsM3U(path) {
		return library.TokenRef(library.Token{Kind: M3UKind, ID: path}), false
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return library.TokenRef(library.Token{Kind: DirectoryKind, ID: path}), false
	}
	if b.files.Supports(path) {
		return library.TokenRef(library.Token{Kind: localfile.TokenKind, ID: path}), true
	}
	return library.Ref{}, false
}
