package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/review-engine/internal/status"
	"github.com/pdiddy/review-engine/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where every record stands in the review lifecycle",
	Long: `Status tallies the record store by lifecycle state and reports review
progress: counts per state, pending work per step, curation coverage, and
whether the review is complete.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "output statistics as JSON")
	statusCmd.Flags().String("format", "", "output format: table, json, or yaml")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := openDataset()
	if err != nil {
		return err
	}

	list, err := d.Load()
	if err != nil {
		return err
	}
	searchCount, err := d.SearchResultCount()
	if err != nil {
		return err
	}

	stats := status.NewStats(list.Records(), status.Options{
		SearchResultCount: searchCount,
		Criteria:          d.CriteriaNames(),
		CuratedRepo:       d.Settings().IsCuratedMasterdataRepo(),
	})

	format, _ := cmd.Flags().GetString("format")
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut && format == "" {
		format = "json"
	}

	switch format {
	case "", "table":
		printStatsTable(stats)
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case "yaml":
		data, err := yaml.Marshal(stats)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported format %q: use table, json, or yaml", format)
	}
}

func printStatsTable(s *status.Stats) {
	fmt.Fprintf(os.Stdout, "%-30s  %9s  %9s\n", "State", "Currently", "Overall")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 52))
	for _, st := range types.Statuses() {
		fmt.Fprintf(os.Stdout, "%-30s  %9d  %9d\n", st, s.Currently.Of(st), s.Overall.Of(st))
	}

	if info := s.ActiveMetadataInfo(); info != "" {
		fmt.Fprintf(os.Stdout, "\nmetadata: %s\n", info)
	}
	if info := s.ActivePdfInfo(); info != "" {
		fmt.Fprintf(os.Stdout, "pdfs: %s\n", info)
	}
	if s.NrCuratedRecords > 0 {
		fmt.Fprintf(os.Stdout, "\ncurated metadata: %d records (%d%%)\n", s.NrCuratedRecords, s.PercCurated)
	}

	fmt.Fprintf(os.Stdout, "\nprogress: %d of %d steps done", s.CompletedAtomicSteps, s.AtomicSteps)
	if s.CompletenessCondition {
		fmt.Fprint(os.Stdout, " (review complete)")
	}
	fmt.Fprintln(os.Stdout)
}
