package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "httptask",
	Short: "HTTP requests as cancelable, retryable tasks.",
	Long: `httptask executes HTTP requests through a task engine that handles
retries, re-authentication and cancellation for you. Point it at a URL,
give it a retry budget and an auth mechanism, and it reports the single
terminal outcome of the whole exchange.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
