package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/labpubs/internal/notify"
	"github.com/matsen/labpubs/internal/syncer"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and reconcile publications for the whole roster",
	Long: `Fetch publications for every configured researcher from every
enabled source, deduplicate them against the catalog, and record the
run in the sync log.

A failing source for one researcher is reported but never aborts the
rest of the run. Exit code 4 signals a run that finished with source
errors.

Examples:
  labpubs sync
  labpubs sync --human`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	creds := mustLoadCredentials()
	st := mustOpenStore(cfg)
	defer st.Close()

	logger := newLogger()
	defer logger.Sync()

	s := syncer.New(st, buildBackends(cfg, creds), logger)
	result, err := s.Run(context.Background(), cfg.Roster())
	if err != nil {
		exitWithError(ExitError, "sync failed: %v", err)
	}

	if cfg.Notifications.Slack && creds.SlackWebhookURL != "" {
		if err := notify.NewSlack(creds.SlackWebhookURL).SyncDigest(result); err != nil {
			logger.Warn("slack notification failed", zap.Error(err))
		}
	}

	if humanOutput {
		fmt.Printf("Checked %d researchers: %d new, %d updated, %d total works\n",
			result.ResearchersChecked, len(result.NewWorks), len(result.UpdatedWorks), result.TotalWorks)
		for _, w := range result.NewWorks {
			fmt.Printf("  + %s\n", truncateString(w.Title, ListTitleMaxLen))
		}
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  ! %s/%s: %s\n", e.Researcher, e.Source, e.Message)
		}
	} else {
		if err := outputJSON(result); err != nil {
			return err
		}
	}

	if len(result.Errors) > 0 {
		os.Exit(ExitSyncErrors)
	}
	return nil
}
