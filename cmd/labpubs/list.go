package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/store"
)

var (
	listResearcher string
	listYear       int
	listType       string
	listVerified   bool
	listResource   bool
	listFunder     string
	listAward      string
	listSearch     string
)

func init() {
	listCmd.Flags().StringVar(&listResearcher, "researcher", "", "Filter by researcher name (partial match)")
	listCmd.Flags().IntVar(&listYear, "year", 0, "Filter by publication year")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by work type (journal-article, preprint, ...)")
	listCmd.Flags().BoolVar(&listVerified, "verified", false, "Show only verified works")
	listCmd.Flags().BoolVar(&listResource, "with-resource", false, "Show only works with a linked resource")
	listCmd.Flags().StringVar(&listFunder, "funder", "", "Filter by funder name")
	listCmd.Flags().StringVar(&listAward, "award", "", "Filter by award number")
	listCmd.Flags().StringVar(&listSearch, "search", "", "Full-text search over titles and abstracts")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List works in the catalog",
	Long: `List catalog works, optionally filtered.

Examples:
  labpubs list --human
  labpubs list --researcher "Doe" --year 2024
  labpubs list --funder NIH --verified
  labpubs list --search "phylogenetic"`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	if listSearch != "" {
		works, err := st.SearchWorks(listSearch, 0)
		if err != nil {
			exitWithError(ExitError, "searching works: %v", err)
		}
		return printWorks(works)
	}

	f := store.Filter{
		Year:         listYear,
		Type:         model.WorkType(listType),
		VerifiedOnly: listVerified,
		WithResource: listResource,
		FunderName:   listFunder,
		AwardNumber:  listAward,
	}
	if listResearcher != "" {
		id, err := st.ResearcherID(listResearcher)
		if err != nil {
			exitWithError(ExitDataError, "unknown researcher %q", listResearcher)
		}
		f.ResearcherID = id
	}

	works, err := st.ListWorks(f)
	if err != nil {
		exitWithError(ExitError, "listing works: %v", err)
	}
	return printWorks(works)
}

func printWorks(works []model.Work) error {
	if humanOutput {
		printWorksHuman(works)
		return nil
	}
	return outputJSON(works)
}
