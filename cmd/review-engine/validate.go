package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the record store's integrity invariants",
	Long: `Validate checks the working store against the review's integrity rules:
unique identifiers and origin tokens, origins resolving to registered
feeds, defined status values, lifecycle-conformant transitions since the
last commit, screening criteria consistency, and stability of persisted
identifiers. Exits non-zero when any rule is violated.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	d, err := openDataset()
	if err != nil {
		return err
	}

	problems := d.Validate(context.Background())
	for _, p := range problems {
		fmt.Fprintln(os.Stderr, p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d integrity problem(s) found", len(problems))
	}
	fmt.Println("no integrity problems found")
	return nil
}
