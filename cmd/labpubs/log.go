package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var logLimit int

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 10, "Number of entries to show")
	rootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync runs",
	Long: `Show the sync log, newest first.

Examples:
  labpubs log
  labpubs log --limit 30 --human`,
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	entries, err := st.RecentSyncs(logLimit)
	if err != nil {
		exitWithError(ExitError, "reading sync log: %v", err)
	}

	if !humanOutput {
		return outputJSON(entries)
	}
	for _, e := range entries {
		fmt.Printf("%s  checked %d, new %d, updated %d, total %d",
			e.Timestamp.Local().Format(time.RFC3339),
			e.ResearchersChecked, e.NewWorks, e.UpdatedWorks, e.TotalWorks)
		if n := len(e.Errors); n > 0 {
			fmt.Printf(", %d errors", n)
		}
		fmt.Println()
	}
	return nil
}
