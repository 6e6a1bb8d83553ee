package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/labpubs/internal/model"
)

var (
	linkType  string
	linkName  string
	linkDesc  string
	linkAdded string
)

func init() {
	linkCmd.Flags().StringVar(&linkType, "type", "code", "Resource type: code, dataset, slides, video, other")
	linkCmd.Flags().StringVar(&linkName, "name", "", "Short resource name")
	linkCmd.Flags().StringVar(&linkDesc, "description", "", "Resource description")
	linkCmd.Flags().StringVar(&linkAdded, "by", "", "Who added the link")
	rootCmd.AddCommand(linkCmd)
}

var linkCmd = &cobra.Command{
	Use:   "link <doi> <url>",
	Short: "Attach a code repository, dataset, or other resource to a work",
	Long: `Attach an artifact URL to a catalog work.

Examples:
  labpubs link 10.1093/sysbio/syab001 https://github.com/matsen/bito
  labpubs link 10.1093/sysbio/syab001 https://zenodo.org/record/123 --type dataset`,
	Args: cobra.ExactArgs(2),
	RunE: runLink,
}

func runLink(cmd *cobra.Command, args []string) error {
	switch linkType {
	case "code", "dataset", "slides", "video", "other":
	default:
		exitWithError(ExitError, "invalid resource type %q", linkType)
	}

	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	id, err := st.WorkIDByDOI(args[0])
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	resource := model.LinkedResource{
		URL:         args[1],
		Type:        linkType,
		Name:        linkName,
		Description: linkDesc,
	}
	if err := st.AddLinkedResource(id, resource, linkAdded); err != nil {
		exitWithError(ExitError, "linking resource: %v", err)
	}

	if humanOutput {
		fmt.Printf("Linked %s (%s) to %s\n", args[1], linkType, args[0])
		return nil
	}
	return outputJSON(StatusResponse{Status: "linked"})
}
