package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tunes/internal/logging"
	"tunes/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search cached tracks by title, artist and album",
		Long: "Plain queries use the query string syntax (artist:name +album:blue).\n" +
			"Queries containing ! @ # $ or , use scoped prefixes: !title @artist #album $free.",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withLibrary(cmd, lockShared, func(s *session) error {
				index, err := search.New(s.logger)
				if err != nil {
					return err
				}
				defer index.Close()

				count, err := index.Load(cmd.Context(), s.db)
				if err != nil {
					return err
				}
				s.logger.Debug("search index loaded", logging.Int("tracks", count))

				hits, err := index.Search(query, limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"hits": hits})
				}
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching tracks")
					return nil
				}
				rows := make([][]string, 0, len(hits))
				for _, hit := range hits {
					rows = append(rows, []string{
						hit.ID,
						hit.Title,
						hit.Artist,
						hit.Album,
						strconv.FormatFloat(hit.Score, 'f', 2, 64),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Artist", "Album", "Score"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of hits")
	return cmd
}
