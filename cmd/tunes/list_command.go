package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
)

var recordHeaders = []string{"ID", "Kind", "Title", "Token", "Cached"}

func newListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var all bool

	cmd := &cobra.Command{
		Use:   "ls [playlist]",
		Short: "List top-level playlists or the content of one playlist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Listing a playlist may insert records for entries the backend
			// returned by token only.
			mode := lockShared
			if len(args) == 1 {
				mode = lockExclusive
			}
			return ctx.withLibrary(cmd, mode, func(s *session) error {
				var (
					views []recordView
					err   error
				)
				switch {
				case len(args) == 1:
					views, err = playlistContent(cmd.Context(), s, args[0])
				case all || kind != "":
					views, err = allRecords(cmd.Context(), s, cachedb.Kind(kind))
				default:
					views, err = rootPlaylists(cmd.Context(), s)
				}
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"items": views})
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to list")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(recordHeaders, buildRecordRows(views), nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "List every record of this kind (track or playlist)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every record")
	return cmd
}

func rootPlaylists(ctx context.Context, s *session) ([]recordView, error) {
	records, err := s.lib.Roots(ctx)
	if err != nil {
		return nil, err
	}
	return recordViews(ctx, s, records)
}

func allRecords(ctx context.Context, s *session, kind cachedb.Kind) ([]recordView, error) {
	switch kind {
	case "", cachedb.KindTrack, cachedb.KindPlaylist:
	default:
		return nil, fmt.Errorf("unknown kind %q (want track or playlist)", kind)
	}
	records, err := s.lib.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	return recordViews(ctx, s, records)
}

func recordViews(ctx context.Context, s *session, records []*cachedb.Record) ([]recordView, error) {
	snaps := make(map[cachedb.Kind]map[string]attributes.Snapshot)
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		byID, ok := snaps[rec.Kind]
		if !ok {
			var err error
			byID, err = s.db.LoadSnapshots(ctx, rec.Kind, library.SchemaFor(rec.Kind))
			if err != nil {
				return nil, err
			}
			snaps[rec.Kind] = byID
		}
		views = append(views, buildRecordView(rec, byID[rec.ID]))
	}
	return views, nil
}

// playlistContent lists child playlists first, then tracks, in playlist
// order. Duplicate tracks are listed once per occurrence.
func playlistContent(ctx context.Context, s *session, id string) ([]recordView, error) {
	b, err := s.lib.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Kind() != cachedb.KindPlaylist {
		return nil, fmt.Errorf("%s is a %s, not a playlist", id, b.Kind())
	}
	snap, err := settle(ctx, b, 0, library.PlaylistChildren.Key, library.PlaylistTracks.Key)
	if err != nil {
		return nil, err
	}
	children, _ := library.PlaylistChildren.Get(snap)
	tracks, _ := library.PlaylistTracks.Get(snap)

	refs := append(append([]library.Ref{}, children...), tracks...)
	ids := make([]string, 0, len(refs))
	snaps := make(map[string]attributes.Snapshot, len(refs))
	for _, ref := range refs {
		child, err := s.lib.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		childSnap, err := settle(ctx, child, 0, titleKey(child))
		if err != nil {
			return nil, err
		}
		ids = append(ids, child.ID())
		snaps[child.ID()] = childSnap
	}

	records, err := s.db.GetRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, buildRecordView(rec, snaps[rec.ID]))
	}
	return views, nil
}
