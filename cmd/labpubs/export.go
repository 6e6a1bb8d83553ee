package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/labpubs/internal/export"
	"github.com/matsen/labpubs/internal/store"
)

var (
	exportFormat   string
	exportYear     int
	exportVerified bool
	exportOutput   string
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "bibtex", "Output format: bibtex or csl-json")
	exportCmd.Flags().IntVar(&exportYear, "year", 0, "Export only works from this year")
	exportCmd.Flags().BoolVar(&exportVerified, "verified", false, "Export only verified works")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog as BibTeX or CSL-JSON",
	Long: `Export catalog works for websites and reference managers.

Examples:
  labpubs export > lab.bib
  labpubs export --format csl-json --verified -o lab.json
  labpubs export --year 2024`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	works, err := st.ListWorks(store.Filter{Year: exportYear, VerifiedOnly: exportVerified})
	if err != nil {
		exitWithError(ExitError, "listing works: %v", err)
	}

	var data []byte
	switch exportFormat {
	case "bibtex":
		data = []byte(export.ToBibTeXList(works))
	case "csl-json":
		data, err = export.ToCSLJSON(works)
		if err != nil {
			exitWithError(ExitError, "rendering CSL-JSON: %v", err)
		}
	default:
		exitWithError(ExitError, "unknown format %q (want bibtex or csl-json)", exportFormat)
	}

	if exportOutput != "" {
		if err := os.WriteFile(exportOutput, data, 0644); err != nil {
			exitWithError(ExitError, "writing %s: %v", exportOutput, err)
		}
		return nil
	}
	fmt.Print(string(data))
	return nil
}
