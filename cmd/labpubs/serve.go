package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/labpubs/internal/notify"
	"github.com/matsen/labpubs/internal/syncer"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled syncs until interrupted",
	Long: `Run syncs on the cron schedule from the config file (default
daily at 06:00) until SIGINT or SIGTERM.

Examples:
  labpubs serve
  labpubs serve --verbose`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	creds := mustLoadCredentials()
	st := mustOpenStore(cfg)
	defer st.Close()

	logger := newLogger()
	defer logger.Sync()

	s := syncer.New(st, buildBackends(cfg, creds), logger)

	runOnce := func() {
		result, err := s.Run(context.Background(), cfg.Roster())
		if err != nil {
			logger.Error("scheduled sync failed", zap.Error(err))
			return
		}
		if cfg.Notifications.Slack && creds.SlackWebhookURL != "" {
			if err := notify.NewSlack(creds.SlackWebhookURL).SyncDigest(result); err != nil {
				logger.Warn("slack notification failed", zap.Error(err))
			}
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, runOnce); err != nil {
		exitWithError(ExitConfigError, "invalid schedule %q: %v", cfg.Schedule, err)
	}
	c.Start()
	logger.Info("scheduler started", zap.String("schedule", cfg.Schedule))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	<-c.Stop().Done()
	return nil
}
