package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	apiURL  string
	domain  string
	timeout time.Duration
	noColor bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "ragctl",
		Short:        "Ask grounded questions and manage the document corpus",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				disableColor()
			}
		},
	}

	defaultURL := os.Getenv("RAGCTL_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", defaultURL, "Base URL of the API service")
	rootCmd.PersistentFlags().StringVarP(&opts.domain, "domain", "d", "", "Knowledge domain profile")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newAskCmd(opts),
		newUploadCmd(opts),
		newReindexCmd(opts),
		newMCPCmd(),
	)
	return rootCmd
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.apiURL, o.timeout)
}
