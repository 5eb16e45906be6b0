package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var (
		topK    int
		filters map[string]string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question answered only from indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			res, err := root.client().Ask(ctx, askParams{
				Text:    strings.Join(args, " "),
				TopK:    topK,
				Domain:  root.domain,
				Filters: filters,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Evidence passages to retrieve (server default when 0)")
	cmd.Flags().StringToStringVarP(&filters, "filter", "f", nil, "Metadata filter key=value, repeatable")
	return cmd
}
