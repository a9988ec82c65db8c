package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/prep"
)

var prepCmd = &cobra.Command{
	Use:   "prep",
	Short: "Prepare imported records for processing",
	Long: `Prep runs the configured preparation rounds over imported records:
formatting fixes, curated-index enrichment, and a quality gate that parks
incomplete records for manual preparation. An interrupted run resumes
where it stopped; afterwards citation keys are reassigned.`,
	RunE: runPrep,
}

func init() {
	prepCmd.Flags().Bool("keep-ids", false, "keep citation keys unchanged after preparation")
	prepCmd.Flags().Int("workers", 0, "parallel preparation workers (0 = configured default)")

	rootCmd.AddCommand(prepCmd)
}

func runPrep(cmd *cobra.Command, args []string) error {
	keepIDs, _ := cmd.Flags().GetBool("keep-ids")
	workers, _ := cmd.Flags().GetInt("workers")

	d, err := openDataset()
	if err != nil {
		return err
	}

	p, err := prep.New(d, prep.Options{KeepIDs: keepIDs, Workers: workers, Progress: os.Stdout})
	if err != nil {
		return err
	}
	return p.Run(context.Background())
}
