package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tunes/internal/attributes"
	"tunes/internal/library"
)

func newFolderCommand(ctx *commandContext) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "folder <title>",
		Short: "Create a playlist folder kept only in the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, ok := library.ParseContentType(strings.ToLower(strings.TrimSpace(contentType)))
			if !ok {
				return fmt.Errorf("unknown content type %q (want tracks, playlists or hybrid)", contentType)
			}
			return ctx.withLibrary(cmd, lockExclusive, func(s *session) error {
				b, err := s.lib.NewFolder(cmd.Context(), args[0], content)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"id":           b.ID(),
						"title":        args[0],
						"content_type": string(b.ContentType()),
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s folder %q (%s)\n", b.ContentType(), args[0], b.ID())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&contentType, "type", "t", string(library.ContentHybrid), "Content type: tracks, playlists or hybrid")
	return cmd
}

func newRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Retitle a folder or other library-only entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, lockExclusive, func(s *session) error {
				b, err := s.lib.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := b.Write(cmd.Context(), map[attributes.Key]any{titleKey(b): args[1]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", b.ID(), args[1])
				return nil
			})
		},
	}
}
