package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/grounded-qa/internal/adapters/mcp"
	"github.com/kirillkom/grounded-qa/internal/bootstrap"
	"github.com/kirillkom/grounded-qa/internal/config"
	"github.com/kirillkom/grounded-qa/internal/observability/logging"
)

// newMCPCmd serves the ask tool over stdio in-process. Logs go to stderr
// because stdout carries the protocol.
func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask tool to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithProfiles()
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, "ragctl-mcp", cfg.LogLevel, cfg.LogFormat)

			app, err := bootstrap.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			if _, err := app.ReloadCorpus(cmd.Context(), 3, time.Second); err != nil {
				return fmt.Errorf("load corpus: %w", err)
			}
			return mcpadapter.New(app.AnswerUC, cfg.QueryDefaultTopK, logger).ServeStdio()
		},
	}
}
