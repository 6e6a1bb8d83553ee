package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/labpubs/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter config file",
	Long: `Write a starter config file to the --config path (default
~/.labpubs/config.yaml). Refuses to overwrite an existing file.

Example:
  labpubs init --config ./labpubs.yaml`,
	RunE: runInit,
}

const starterConfig = `# labpubs configuration
lab: My Lab
contact_email: lab@example.org
# database_path: ~/.labpubs/labpubs.db
# schedule: "0 6 * * *"
sources: [openalex, semantic_scholar]
researchers:
  - name: Jane Doe
    orcid: 0000-0001-0000-0001
    affiliation: Example University
    # openalex_id: A5023888391
    # semantic_scholar_id: "144"
notifications:
  slack: false
`

func runInit(cmd *cobra.Command, args []string) error {
	path := config.ExpandPath(configPath)
	if _, err := os.Stat(path); err == nil {
		exitWithError(ExitError, "config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		exitWithError(ExitError, "creating config directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0644); err != nil {
		exitWithError(ExitError, "writing config: %v", err)
	}

	if humanOutput {
		fmt.Printf("Wrote starter config to %s\n", path)
		return nil
	}
	return outputJSON(StatusResponse{Status: "created", Path: path})
}
