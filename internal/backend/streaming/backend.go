package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/backend/streaming/api"
	"tunes/internal/config"
	"tunes/internal/library"
	"tunes/internal/logging"
)

// Token kinds handled by the backend.
const (
	TrackKind    = "streaming-track"
	PlaylistKind = "streaming-playlist"
	UserKind     = "streaming-user"
)

// Backend creates entities for streaming service objects. Track objects seen
// in playlist listings are remembered so the tracks created from them start
// with their track group filled.
type Backend struct {
	client *api.Client
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	listed map[string]listedTrack
}

type listedTrack struct {
	track   api.Track
	version attributes.Version
}

// New builds a backend from the streaming configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...api.Option) (*Backend, error) {
	opts = append([]api.Option{api.WithTimeout(cfg.StreamingTimeout())}, opts...)
	client, err := api.NewClient(cfg.Streaming.Token, cfg.Streaming.BaseURL, cfg.Streaming.Market, opts...)
	if err != nil {
		return nil, fmt.Errorf("streaming backend: %w", err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient builds a backend around an existing client.
func NewWithClient(client *api.Client, logger *slog.Logger) *Backend {
	return &Backend{
		client: client,
		logger: logging.NewComponentLogger(logger, "streaming"),
		now:    time.Now,
		listed: make(map[string]listedTrack),
	}
}

// remember keeps the track objects of a listing. Objects without a name are
// references only and are skipped.
func (b *Backend) remember(version attributes.Version, tracks []api.Track) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, track := range tracks {
		if track.ID == "" || track.Name == "" {
			continue
		}
		b.listed[track.ID] = listedTrack{track: track, version: version}
	}
}

func (b *Backend) listedTrack(id string) (listedTrack, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lt, ok := b.listed[id]
	return lt, ok
}

// Client returns the API client.
func (b *Backend) Client() *api.Client { return b.client }

// Register installs the expanders of every streaming token kind.
func (b *Backend) Register(reg *library.Registry) {
	reg.Register(TrackKind, b.Expand)
	reg.Register(PlaylistKind, b.Expand)
	reg.Register(UserKind, b.Expand)
}

// Expand re-creates the entity of token.
func (b *Backend) Expand(_ context.Context, token library.Token) (library.Entity, error) {
	switch token.Kind {
	case TrackKind:
		return b.Track(token.ID)
	case PlaylistKind:
		return b.Playlist(token.ID)
	case UserKind:
		return b.User(token.ID)
	default:
		return nil, fmt.Errorf("expand %s: %w", token.Key(), library.ErrUnsupported)
	}
}

// ParseURL recognises open.spotify.com links and spotify: URIs.
func ParseURL(raw string) (library.Token, bool) {
	raw = strings.TrimSpace(raw)
	var kind, id string
	if rest, ok := strings.CutPrefix(raw, "spotify:"); ok {
		parts := strings.Split(rest, ":")
		if len(parts) != 2 {
			return library.Token{}, false
		}
		kind, id = parts[0], parts[1]
	} else {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host != "open.spotify.com" {
			return library.Token{}, false
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 3 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
		if len(parts) != 2 {
			return library.Token{}, false
		}
		kind, id = parts[0], parts[1]
	}
	if id == "" {
		return library.Token{}, false
	}
	switch kind {
	case "track":
		return library.Token{Kind: TrackKind, ID: id}, true
	case "playlist":
		return library.Token{Kind: PlaylistKind, ID: id}, true
	case "user":
		return library.Token{Kind: UserKind, ID: id}, true
	}
	return library.Token{}, false
}
