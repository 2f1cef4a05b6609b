package smart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/logging"
)

// TokenKind identifies query playlist tokens. The token id is the expression.
const TokenKind = "smart"

const (
	groupQuery  attributes.Group = "query"
	groupTracks attributes.Group = "tracks"
)

// Backend evaluates query playlists against the cache database.
type Backend struct {
	db     *cachedb.Store
	logger *slog.Logger
	now    func() time.Time
}

// New returns a backend reading tracks from db.
func New(db *cachedb.Store, logger *slog.Logger) *Backend {
	return &Backend{
		db:     db,
		logger: logging.NewComponentLogger(logger, "smart"),
		now:    time.Now,
	}
}

// Register installs the expander of query playlist tokens.
func (b *Backend) Register(reg *library.Registry) {
	reg.Register(TokenKind, b.Expand)
}

// Token returns the token of a query playlist.
func Token(expression string) library.Token {
	return library.Token{Kind: TokenKind, ID: strings.TrimSpace(expression)}
}

// Expand re-creates the playlist of token.
func (b *Backend) Expand(_ context.Context, token library.Token) (library.Entity, error) {
	if token.Kind != TokenKind {
		return nil, fmt.Errorf("expand %s: %w", token.Key(), library.ErrUnsupported)
	}
	return b.Playlist(token.ID)
}

// Playlist is a query playlist.
type Playlist struct {
	*library.Remote
	backend    *Backend
	expression string
	program    *exprvm.Program
}

// Playlist compiles expression and returns its playlist.
func (b *Backend) Playlist(expression string) (*Playlist, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("query playlist: expression must not be empty")
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile query %q: %w", expression, err)
	}
	p := &Playlist{backend: b, expression: expression, program: program}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:        cachedb.KindPlaylist,
		Token:       Token(expression),
		ContentType: library.ContentTracks,
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			groupQuery:  {library.PlaylistTitle.Key},
			groupTracks: {library.PlaylistTracks.Key},
		}),
		Fetcher: attributes.FetcherFunc(p.fetch),
		Logger:  b.logger,
	})
	if err != nil {
		return nil, err
	}
	p.Remote = remote
	return p, nil
}

func (p *Playlist) fetch(ctx context.Context, g attributes.Group) (attributes.Snapshot, error) {
	version := attributes.TimeVersion(p.backend.now())
	if g == groupQuery {
		return attributes.ValidSnapshot(version, map[attributes.Key]any{
			library.PlaylistTitle.Key: p.expression,
		}), nil
	}
	refs, err := p.match(ctx)
	if err != nil {
		return attributes.Snapshot{}, err
	}
	return attributes.ValidSnapshot(version, map[attributes.Key]any{
		library.PlaylistTracks.Key: refs,
	}), nil
}

// match returns the cached tracks the expression accepts, in insertion order.
func (p *Playlist) match(ctx context.Context) ([]library.Ref, error) {
	records, err := p.backend.db.ListRecords(ctx, cachedb.KindTrack)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", p.expression, err)
	}
	snaps, err := p.backend.db.LoadSnapshots(ctx, cachedb.KindTrack, library.TrackSchema)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", p.expression, err)
	}

	refs := []library.Ref{}
	for _, rec := range records {
		out, err := exprlang.Run(p.program, Env(snaps[rec.ID]))
		if err != nil {
			p.backend.logger.Debug("query failed for track",
				logging.EntityID(rec.ID),
				logging.Error(err))
			continue
		}
		if ok, _ := out.(bool); !ok {
			continue
		}
		ref := library.RecordRef(rec.ID)
		if !rec.Token.IsZero() {
			token := library.Token{Kind: rec.Token.Kind, ID: rec.Token.ID}
			ref.Token = &token
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Env returns the variables a query sees for one track. Missing values read
// as the zero value of their type.
func Env(snap attributes.Snapshot) map[string]any {
	title, _ := library.TrackTitle.Get(snap)
	artists, _ := library.TrackArtists.Get(snap)
	album, _ := library.TrackAlbum.Get(snap)
	genre, _ := library.TrackGenre.Get(snap)
	year, _ := library.TrackYear.Get(snap)
	number, _ := library.TrackNumber.Get(snap)
	duration, _ := library.TrackDuration.Get(snap)
	bitrate, _ := library.TrackBitRate.Get(snap)
	codec, _ := library.TrackCodec.Get(snap)
	tempo, _ := library.TrackTempo.Get(snap)
	key, _ := library.TrackKey.Get(snap)
	if artists == nil {
		artists = []string{}
	}
	return map[string]any{
		"title":        title,
		"artists":      artists,
		"artist":       strings.Join(artists, ", "),
		"album":        album,
		"genre":        genre,
		"year":         year,
		"track_number": number,
		"duration":     duration,
		"bitrate":      bitrate,
		"codec":        codec,
		"tempo":        tempo,
		"key":          key,
	}
}
