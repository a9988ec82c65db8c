package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/synth"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Track synthesis of included records in the manuscript",
	Long: `Data maintains the review manuscript (data/paper.md). Newly included
records are appended under the NEW_RECORD_SOURCE marker as pending
citations; records cited in the written text advance to rev_synthesized
and complete their lifecycle.`,
	RunE: runData,
}

func init() {
	rootCmd.AddCommand(dataCmd)
}

func runData(cmd *cobra.Command, args []string) error {
	d, err := openDataset()
	if err != nil {
		return err
	}

	_, err = synth.New(d, synth.Options{Progress: os.Stdout}).Run(context.Background())
	return err
}
