package localfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"tunes/internal/config"
	"tunes/internal/filecache"
	"tunes/internal/library"
	"tunes/internal/logging"
)

// TokenKind identifies local file tokens.
const TokenKind = "file"

// Backend creates track entities for local audio files. The analysis worker
// pool and cache are shared by every track it creates.
type Backend struct {
	ffprobe    string
	analyze    bool
	extensions []string
	cache      *filecache.Cache
	workers    chan struct{}
	logger     *slog.Logger
}

// New builds a backend from the local file configuration. A nil cache keeps
// analysis results in memory only.
func New(cfg *config.Config, cache *filecache.Cache, logger *slog.Logger) *Backend {
	logger = logging.NewComponentLogger(logger, "localfile")
	if cache == nil {
		cache = filecache.New("", logger)
	}
	workers := cfg.LocalFiles.Workers
	if workers < 1 {
		workers = 1
	}
	extensions := make([]string, 0, len(cfg.LocalFiles.Extensions))
	for _, ext := range cfg.LocalFiles.Extensions {
		extensions = append(extensions, strings.ToLower(ext))
	}
	return &Backend{
		ffprobe:    cfg.LocalFiles.FFprobeBinary,
		analyze:    cfg.LocalFiles.Analyze,
		extensions: extensions,
		cache:      cache,
		workers:    make(chan struct{}, workers),
		logger:     logger,
	}
}

// Register installs the backend's expander.
func (b *Backend) Register(reg *library.Registry) {
	reg.Register(TokenKind, b.Expand)
}

// Supports reports whether path has one of the configured audio extensions.
func (b *Backend) Supports(path string) bool {
	return slices.Contains(b.extensions, strings.ToLower(filepath.Ext(path)))
}

// Token returns the token of the file at path.
func Token(path string) (library.Token, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return library.Token{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	return library.Token{Kind: TokenKind, ID: abs}, nil
}

// Expand re-creates the track of a file token.
func (b *Backend) Expand(_ context.Context, token library.Token) (library.Entity, error) {
	if token.Kind != TokenKind {
		return nil, fmt.Errorf("expand %s: %w", token.Key(), library.ErrUnsupported)
	}
	return b.Track(token.ID)
}

// acquire takes a worker slot, waiting until one is free or ctx ends.
func (b *Backend) acquire(ctx context.Context) error {
	select {
	case b.workers <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) release() { <-b.workers }
