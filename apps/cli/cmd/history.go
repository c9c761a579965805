package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/httptask/packages/config"
	"github.com/abdul-hamid-achik/httptask/packages/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show previously recorded requests",
	Long: `Show requests recorded with --history-db (or the historyPath config
setting), newest first.

Examples:
  httptask history --history-db ~/.httptask.db
  httptask history --limit 5
  httptask history clear`,
	RunE: historyCommand,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistoryOrFail()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("history cleared")
		return nil
	},
}

var historyLimitFlag int

func init() {
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.PersistentFlags().StringVar(&historyFlag, "history-db", getEnvString("HTTPTASK_HISTORY", ""), "SQLite database holding the history (env: HTTPTASK_HISTORY)")
	historyCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("HTTPTASK_CONFIG", ""), "Path to config file (env: HTTPTASK_CONFIG)")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Maximum number of entries to show")
}

func openHistoryOrFail() (*history.Store, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("no history database configured; pass --history-db or set historyPath in the config")
	}
	return store, nil
}

func historyCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistoryOrFail()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(historyLimitFlag)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no recorded requests")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	for _, e := range entries {
		status := color.GreenString("%3d", e.Status)
		switch {
		case e.Status == 0 || e.Status >= 400:
			status = color.RedString("%3d", e.Status)
		case e.Status >= 300:
			status = color.YellowString("%3d", e.Status)
		}

		fmt.Printf("%s  %s %-6s %s", e.CreatedAt.Local().Format(time.DateTime), status, e.Method, e.URL)
		if e.Attempts > 1 {
			gray.Printf("  attempts=%d", e.Attempts)
		}
		if e.AuthRetry {
			gray.Printf("  auth-retry=1")
		}
		if e.Error != "" {
			gray.Printf("  %s", e.Error)
		}
		fmt.Println()
	}
	return nil
}
