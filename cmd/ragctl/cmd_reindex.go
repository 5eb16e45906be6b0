package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the keyword index from the stored chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			chunks, err := root.client().Reindex(ctx)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			headerColor.Fprint(cmd.OutOrStdout(), "reindexed ")
			fmt.Fprintf(cmd.OutOrStdout(), "%d chunks\n", chunks)
			return nil
		},
	}
}
