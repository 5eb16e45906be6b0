package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

func newUploadCmd(root *rootOptions) *cobra.Command {
	var (
		metadata map[string]string
		wait     bool
		poll     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload documents for extraction, chunking and indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := root.client()
			var failed int
			for _, path := range args {
				ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
				doc, err := client.Upload(ctx, path, root.domain, metadata)
				if err == nil && wait {
					doc, err = waitForDocument(ctx, client, doc, poll)
				}
				cancel()

				if err != nil {
					failed++
					errorColor.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				printDocument(cmd.OutOrStdout(), doc)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVarP(&metadata, "meta", "m", nil, "Document metadata key=value, repeatable")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the document is ready or failed")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "Status poll interval with --wait")
	return cmd
}

func waitForDocument(ctx context.Context, client *apiClient, doc *domain.Document, poll time.Duration) (*domain.Document, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		switch doc.Status {
		case domain.StatusReady:
			return doc, nil
		case domain.StatusFailed:
			return doc, errors.New("processing failed: " + doc.Error)
		}

		select {
		case <-ctx.Done():
			return doc, fmt.Errorf("waiting for %s: %w", doc.ID, ctx.Err())
		case <-ticker.C:
		}

		next, err := client.Document(ctx, doc.ID)
		if err != nil {
			return doc, err
		}
		doc = next
	}
}
