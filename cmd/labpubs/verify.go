package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	verifyBy       string
	verifyIssueURL string
	verifyNotes    string
)

func init() {
	verifyCmd.Flags().StringVar(&verifyBy, "by", "", "Who verified the work")
	verifyCmd.Flags().StringVar(&verifyIssueURL, "issue", "", "Tracking issue URL")
	verifyCmd.Flags().StringVar(&verifyNotes, "notes", "", "Free-form notes")
	verifyCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify <doi>",
	Short: "Mark a work as human-verified",
	Long: `Record that a human confirmed a catalog work is correctly
attributed and merged. Verification survives later syncs; merges never
touch these fields.

Examples:
  labpubs verify 10.1093/sysbio/syab001 --by erick
  labpubs verify 10.1093/sysbio/syab001 --by erick --issue https://github.com/matsen/lab/issues/12`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	id, err := st.WorkIDByDOI(args[0])
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if err := st.MarkVerified(id, verifyBy, verifyIssueURL, verifyNotes); err != nil {
		exitWithError(ExitError, "marking verified: %v", err)
	}

	if humanOutput {
		fmt.Printf("Verified %s (by %s)\n", args[0], verifyBy)
		return nil
	}
	return outputJSON(StatusResponse{Status: "verified"})
}
