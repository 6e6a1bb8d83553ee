package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/labpubs/internal/pdfimport"
	"github.com/matsen/labpubs/internal/source/crossref"
	"github.com/matsen/labpubs/internal/syncer"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <pdf>...",
	Short: "Import works from PDFs via Crossref DOI lookup",
	Long: `Extract the DOI from each PDF, fetch its metadata from
Crossref, and reconcile the result into the catalog. An imported work
that matches an existing one merges instead of duplicating.

Examples:
  labpubs import paper.pdf
  labpubs import ~/Downloads/*.pdf --human`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

// ImportResult reports the outcome for one PDF.
type ImportResult struct {
	Path    string `json:"path"`
	DOI     string `json:"doi,omitempty"`
	Title   string `json:"title,omitempty"`
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	logger := newLogger()
	defer logger.Sync()

	enricher := crossref.New(crossref.WithEmail(cfg.ContactEmail))
	s := syncer.New(st, nil, logger)

	ctx := context.Background()
	var results []ImportResult
	failures := 0
	for _, path := range args {
		r := ImportResult{Path: path}
		w, err := pdfimport.Import(ctx, path, enricher)
		if err != nil {
			r.Error = err.Error()
			failures++
			results = append(results, r)
			continue
		}
		created, err := s.Ingest(w)
		if err != nil {
			r.Error = err.Error()
			failures++
			results = append(results, r)
			continue
		}
		r.DOI = w.DOI
		r.Title = w.Title
		r.Created = created
		results = append(results, r)
	}

	if humanOutput {
		for _, r := range results {
			switch {
			case r.Error != "":
				fmt.Printf("! %s: %s\n", r.Path, r.Error)
			case r.Created:
				fmt.Printf("+ %s (%s)\n", truncateString(r.Title, ListTitleMaxLen), r.DOI)
			default:
				fmt.Printf("= %s already known (%s)\n", truncateString(r.Title, ListTitleMaxLen), r.DOI)
			}
		}
	} else if err := outputJSON(results); err != nil {
		return err
	}

	if failures == len(args) {
		exitWithError(ExitDataError, "no PDFs imported")
	}
	return nil
}
