// Package main provides the labpubs CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/labpubs/internal/config"
	"github.com/matsen/labpubs/internal/source"
	"github.com/matsen/labpubs/internal/source/openalex"
	"github.com/matsen/labpubs/internal/source/semanticscholar"
	"github.com/matsen/labpubs/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// configPath is the --config flag value.
var configPath string

// verbose enables debug logging.
var verbose bool

func main() {
	// .env is optional; missing file is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "labpubs",
	Short: "Lab publication tracking CLI",
	Long: `labpubs tracks a lab's publications across bibliographic catalogs.

Core features:
  - Sync the roster against OpenAlex and Semantic Scholar
  - Deduplicate records into one canonical work per publication
  - Export the catalog as BibTeX or CSL-JSON
  - Import works from PDFs via Crossref DOI lookup
  - Scheduled syncs with Slack digests

Configuration lives in a YAML roster file; discovered author IDs and
all works are stored in SQLite. Commands output JSON by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.Version = Version
}

// newLogger builds the process logger. Logs go to stderr so JSON output
// on stdout stays parseable.
func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		exitWithError(ExitError, "building logger: %v", err)
	}
	return logger
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenStore opens the SQLite database, exits on error.
// The caller is responsible for calling Close() on the returned store.
func mustOpenStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return st
}

// buildBackends constructs the enabled source backends.
func buildBackends(cfg *config.Config, creds config.Credentials) []source.Backend {
	var backends []source.Backend
	for _, s := range cfg.Sources {
		switch s {
		case "openalex":
			backends = append(backends, openalex.New(openalex.WithEmail(cfg.ContactEmail)))
		case "semantic_scholar":
			var opts []semanticscholar.Option
			if creds.S2APIKey != "" {
				opts = append(opts, semanticscholar.WithAPIKey(creds.S2APIKey))
			}
			backends = append(backends, semanticscholar.New(opts...))
		}
	}
	return backends
}

// mustLoadCredentials reads environment credentials, exits on error.
func mustLoadCredentials() config.Credentials {
	creds, err := config.LoadCredentials()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return creds
}
