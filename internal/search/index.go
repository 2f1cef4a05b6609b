package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/logging"
)

const defaultLimit = 100

// Hit is one matching track.
type Hit struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Artist string  `json:"artist"`
	Album  string  `json:"album"`
	Score  float64 `json:"score"`
}

// Index is a memory-only track index.
type Index struct {
	index  bleve.Index
	logger *slog.Logger
}

// New creates an empty index.
func New(logger *slog.Logger) (*Index, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &Index{index: index, logger: logging.NewComponentLogger(logger, "search")}, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Count returns the number of indexed tracks.
func (i *Index) Count() (int, error) {
	n, err := i.index.DocCount()
	return int(n), err
}

func document(snap attributes.Snapshot) map[string]any {
	title, _ := library.TrackTitle.Get(snap)
	artists, _ := library.TrackArtists.Get(snap)
	album, _ := library.TrackAlbum.Get(snap)
	genre, _ := library.TrackGenre.Get(snap)
	doc := map[string]any{
		"title":  title,
		"artist": strings.Join(artists, ", "),
		"album":  album,
		"genre":  genre,
	}
	if year, ok := library.TrackYear.Get(snap); ok {
		doc["year"] = float64(year)
	}
	return doc
}

// Add indexes or replaces the track record id.
func (i *Index) Add(id string, snap attributes.Snapshot) error {
	if err := i.index.Index(id, document(snap)); err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	return nil
}

// Load indexes every cached track of db.
func (i *Index) Load(ctx context.Context, db *cachedb.Store) (int, error) {
	snaps, err := db.LoadSnapshots(ctx, cachedb.KindTrack, library.TrackSchema)
	if err != nil {
		return 0, fmt.Errorf("load tracks for search: %w", err)
	}
	batch := i.index.NewBatch()
	for id, snap := range snaps {
		if err := batch.Index(id, document(snap)); err != nil {
			return 0, fmt.Errorf("index %s: %w", id, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("index tracks: %w", err)
	}
	i.logger.Debug("indexed cached tracks", logging.Int("track_count", len(snaps)))
	return len(snaps), nil
}

// Search runs input against the index. An empty input matches everything.
func (i *Index) Search(input string, limit int) ([]Hit, error) {
	input = strings.TrimSpace(input)
	var q bleveQuery.Query
	switch {
	case input == "":
		q = bleve.NewMatchAllQuery()
	case strings.ContainsAny(input, "!@#$,"):
		q = prefixQuery(input)
	default:
		q = bleve.NewQueryStringQuery(input)
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"title", "artist", "album"}
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", input, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		field := func(name string) string {
			v, _ := h.Fields[name].(string)
			return v
		}
		hits = append(hits, Hit{
			ID:     h.ID,
			Title:  field("title"),
			Artist: field("artist"),
			Album:  field("album"),
			Score:  h.Score,
		})
	}
	return hits, nil
}

// prefixQuery builds the boolean query of the prefix syntax. Terms of the
// same scope are alternatives; different scopes must all match.
func prefixQuery(input string) bleveQuery.Query {
	scoped := make(map[string][]string)
	var free []string
	for _, word := range strings.Split(input, ",") {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		switch word[0] {
		case '!':
			scoped["genre"] = append(scoped["genre"], word[1:])
		case '@':
			scoped["artist"] = append(scoped["artist"], word[1:])
		case '#':
			scoped["album"] = append(scoped["album"], word[1:])
		case '$':
			scoped["title"] = append(scoped["title"], word[1:])
		default:
			free = append(free, word)
		}
	}

	root := bleve.NewBooleanQuery()
	for _, field := range []string{"genre", "artist", "album", "title"} {
		terms := scoped[field]
		if len(terms) == 0 {
			continue
		}
		sub := bleve.NewBooleanQuery()
		for _, term := range terms {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(field)
			sub.AddShould(mq)
		}
		root.AddMust(sub)
	}
	if len(free) > 0 {
		sub := bleve.NewBooleanQuery()
		for _, term := range free {
			for _, field := range []string{"artist", "album", "title"} {
				mq := bleve.NewMatchQuery(term)
				mq.SetField(field)
				sub.AddShould(mq)
			}
		}
		root.AddMust(sub)
	}
	return root
}
