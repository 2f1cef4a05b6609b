package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tunes/internal/attributes"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Load and display every attribute of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, lockExclusive, func(s *session) error {
				b, err := s.lib.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				snap, err := settle(cmd.Context(), b, timeout, b.Schema().Keys().Sorted()...)
				if err != nil {
					return err
				}
				view := buildEntityView(b, snap)
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				printEntityView(cmd, view)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultSettleTimeout, "How long to wait for backends")
	return cmd
}

func printEntityView(cmd *cobra.Command, view entityView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", view.ID)
	fmt.Fprintf(out, "Kind:     %s\n", view.Kind)
	if view.Token != "" {
		fmt.Fprintf(out, "Token:    %s\n", view.Token)
	}
	if view.ContentType != "" {
		fmt.Fprintf(out, "Content:  %s\n", view.ContentType)
	}
	fmt.Fprintf(out, "Indexed:  %s\n", yesNo(view.Indexed))
	fmt.Fprintf(out, "Online:   %s\n", yesNo(view.Online))
	fmt.Fprintf(out, "Cached:   %s\n", view.CacheMask)
	fmt.Fprint(out, renderTable(
		[]string{"Attribute", "Value", "State", "Version"},
		buildAttributeRows(view.Attributes),
		nil,
	))
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var maskFlag string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "refresh <id>",
		Short: "Drop cached categories of an entity and fetch them again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, err := attributes.ParseMask(maskFlag)
			if err != nil {
				return err
			}
			if mask == attributes.MaskNone {
				return fmt.Errorf("refresh: empty mask %q", maskFlag)
			}
			return ctx.withLibrary(cmd, lockExclusive, func(s *session) error {
				b, err := s.lib.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := b.InvalidateCaches(cmd.Context(), mask); err != nil {
					return err
				}
				if _, err := settle(cmd.Context(), b, timeout, b.Schema().Category(mask).Sorted()...); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"id":         b.ID(),
						"refreshed":  mask.String(),
						"cache_mask": b.CacheMask().String(),
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s of %s (cached: %s)\n", mask, b.ID(), b.CacheMask())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&maskFlag, "mask", "all", "Categories to refresh: minimal, attributes, children, tracks or all")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultSettleTimeout, "How long to wait for backends")
	return cmd
}
