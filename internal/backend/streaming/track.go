package streaming

import (
	"context"
	"fmt"

	"tunes/internal/attributes"
	"tunes/internal/backend/streaming/api"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/logging"
)

const (
	groupTrack    attributes.Group = "track"
	groupAnalysis attributes.Group = "analysis"
)

var pitchClasses = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Track is a track of the streaming service.
type Track struct {
	*library.Remote
	backend *Backend
	id      string
}

// Track returns the entity of track id. A track seen in a playlist listing
// starts with its track group offered from that listing.
func (b *Backend) Track(id string) (*Track, error) {
	t := &Track{backend: b, id: id}
	remote, err := library.NewRemote(library.RemoteConfig{
		Kind:  cachedb.KindTrack,
		Token: library.Token{Kind: TrackKind, ID: id},
		Relation: attributes.NewRelation(map[attributes.Group][]attributes.Key{
			groupTrack:    {library.TrackTitle.Key, library.TrackAlbum.Key, library.TrackArtists.Key, library.TrackDuration.Key},
			groupAnalysis: {library.TrackTempo.Key, library.TrackKey.Key},
		}),
		Fetcher: attributes.FetcherFunc(t.fetch),
		Logger:  b.logger,
	})
	if err != nil {
		return nil, err
	}
	t.Remote = remote

	if lt, ok := b.listedTrack(id); ok {
		if err := remote.Mapper().Offer(groupTrack, trackSnapshot(lt.version, &lt.track)); err != nil {
			b.logger.Debug("track offer rejected",
				logging.Token(remote.Token().Key()),
				logging.Error(err))
		}
	}
	return t, nil
}

func (t *Track) fetch(ctx context.Context, g attributes.Group) (attributes.Snapshot, error) {
	version := attributes.TimeVersion(t.backend.now())
	switch g {
	case groupTrack:
		track, err := t.backend.client.Track(ctx, t.id)
		if err != nil {
			return attributes.Snapshot{}, fmt.Errorf("fetch track %s: %w", t.id, err)
		}
		return trackSnapshot(version, track), nil
	case groupAnalysis:
		features, err := t.backend.client.AudioFeatures(ctx, t.id)
		if err != nil {
			return attributes.Snapshot{}, fmt.Errorf("fetch audio features %s: %w", t.id, err)
		}
		values := map[attributes.Key]any{library.TrackTempo.Key: features.Tempo}
		if name := keyName(features.Key, features.Mode); name != "" {
			values[library.TrackKey.Key] = name
		}
		return attributes.ValidSnapshot(version, values), nil
	default:
		return attributes.Snapshot{}, fmt.Errorf("unknown request group %q", g)
	}
}

func trackSnapshot(version attributes.Version, track *api.Track) attributes.Snapshot {
	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		artists = append(artists, a.Name)
	}
	return attributes.ValidSnapshot(version, map[attributes.Key]any{
		library.TrackTitle.Key:    track.Name,
		library.TrackAlbum.Key:    track.Album.Name,
		library.TrackArtists.Key:  artists,
		library.TrackDuration.Key: float64(track.DurationMS) / 1000,
	})
}

// keyName renders a pitch class and mode, e.g. "F# minor".
func keyName(key, mode int) string {
	if key < 0 || key >= len(pitchClasses) {
		return ""
	}
	if mode == 0 {
		return pitchClasses[key] + " minor"
	}
	return pitchClasses[key] + " major"
}
