package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tunes/internal/interpret"
	"tunes/internal/library"
)

type addResult struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Token string `json:"token"`
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "add <url|path>...",
		Short: "Add tracks and playlists to the library",
		Long: "Add streaming links, M3U files, directories, audio files or smart:<expression> queries.\n" +
			"With --to the items are imported into an existing playlist instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, lockExclusive, func(s *session) error {
				interp := interpret.Default(s.files)
				refs := make([]library.Ref, 0, len(args))
				for _, arg := range args {
					token, err := interp.Interpret(arg)
					if err != nil {
						return err
					}
					refs = append(refs, library.TokenRef(token))
				}

				out := cmd.OutOrStdout()
				if id := strings.TrimSpace(target); id != "" {
					if err := s.lib.Import(cmd.Context(), id, refs); err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, map[string]any{"playlist": id, "imported": len(refs)})
					}
					fmt.Fprintf(out, "Imported %d item(s) into %s\n", len(refs), id)
					return nil
				}

				results := make([]addResult, 0, len(refs))
				for _, ref := range refs {
					b, err := s.lib.Resolve(cmd.Context(), ref)
					if err != nil {
						return err
					}
					snap, err := settle(cmd.Context(), b, 0, titleKey(b))
					if err != nil {
						return err
					}
					title, _ := snap.Value(titleKey(b))
					results = append(results, addResult{
						ID:    b.ID(),
						Kind:  string(b.Kind()),
						Title: formatValue(title),
						Token: ref.Token.Key(),
					})
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"items": results})
				}
				for _, r := range results {
					fmt.Fprintf(out, "Added %s %s (%s)\n", r.Kind, r.ID, r.Title)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "Import into the playlist with this id")
	return cmd
}

func newLinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link <id> <url|path>",
		Short: "Attach another backend copy of an entity",
		Long:  "Secondary backends are refreshed and deleted together with the entity but never serve its attributes.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, lockExclusive, func(s *session) error {
				token, err := interpret.Default(s.files).Interpret(args[1])
				if err != nil {
					return err
				}
				if err := s.lib.AddSecondary(cmd.Context(), args[0], token); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s\n", token.Key(), args[0])
				return nil
			})
		},
	}
}

func newUnlinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <id> <url|path>",
		Short: "Detach a secondary backend from an entity",
		Long:  "The secondary copy itself is left in place.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, lockExclusive, func(s *session) error {
				token, err := interpret.Default(s.files).Interpret(args[1])
				if err != nil {
					return err
				}
				if err := s.lib.RemoveSecondary(cmd.Context(), args[0], token); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s from %s\n", token.Key(), args[0])
				return nil
			})
		},
	}
}
