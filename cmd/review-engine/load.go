package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/load"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Import new search results into the record store",
	Long: `Load walks the registered search sources and imports feed entries the
store has not seen yet. Each new record starts the lifecycle at
md_imported, carries its origin token, and gets a citation key. Changes
are committed per source.`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().Bool("keep-ids", false, "keep feed citation keys instead of generating new ones")

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	keepIDs, _ := cmd.Flags().GetBool("keep-ids")

	d, err := openDataset()
	if err != nil {
		return err
	}

	_, err = load.New(d, load.Options{KeepIDs: keepIDs, Progress: os.Stdout}).Run(context.Background())
	return err
}
