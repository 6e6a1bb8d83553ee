package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(fundersCmd)
}

var fundersCmd = &cobra.Command{
	Use:   "funders",
	Short: "List funders with publication counts",
	Long: `List every funder seen in the catalog with the number of works
it supported.

Example:
  labpubs funders --human`,
	RunE: runFunders,
}

// FunderCount pairs a funder with its publication count.
type FunderCount struct {
	Name         string `json:"name"`
	OpenAlexID   string `json:"openalex_id"`
	Publications int    `json:"publications"`
}

func runFunders(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	funders, counts, err := st.Funders()
	if err != nil {
		exitWithError(ExitError, "listing funders: %v", err)
	}

	results := make([]FunderCount, 0, len(funders))
	for i, f := range funders {
		results = append(results, FunderCount{
			Name:         f.Name,
			OpenAlexID:   f.OpenAlexID,
			Publications: counts[i],
		})
	}

	if !humanOutput {
		return outputJSON(results)
	}
	for _, r := range results {
		fmt.Printf("%4d  %s\n", r.Publications, r.Name)
	}
	return nil
}
