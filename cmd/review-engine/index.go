// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/index"
	"github.com/pdiddy/review-engine/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the machine-wide index of curated records",
	Long: `Index manages the local index of curated records. Register curated
review checkouts, build the index from them, and query it. Preparation
and citation-key assignment consult the same index.`,
}

// --- build subcommand ---

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Index the registered curated repositories",
	Long: `Build ingests every registered curated repository into the index. Only
processed records with curated masterdata are indexed; re-building
replaces earlier versions of a record.`,
	RunE: runIndexBuild,
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	repoPath, _ := cmd.Flags().GetString("repo")
	repoURL, _ := cmd.Flags().GetString("url")

	var repos []index.RegistryEntry
	if repoPath != "" {
		repos = []index.RegistryEntry{{Path: repoPath, URL: repoURL}}
	} else {
		reg, err := index.LoadRegistry(store.Dir())
		if err != nil {
			return err
		}
		repos = reg.Repos
	}
	if len(repos) == 0 {
		return fmt.Errorf("no repositories to index: register one or pass --repo")
	}

	ctx := context.Background()
	failed := 0
	for _, repo := range repos {
		fmt.Printf("indexing %s\n", repo.Path)
		summary, err := store.Ingest(ctx, index.IngestOptions{
			RepoPath:  repo.Path,
			SourceURL: repo.URL,
		}, os.Stdout)
		if err != nil {
			return err
		}
		failed += summary.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d record(s) failed indexing", failed)
	}
	return nil
}

// --- retrieve subcommand ---

var indexRetrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Search the curated index",
	Long: `Retrieve runs a full-text search over the indexed titles and authors
and prints the matching curated records with their source.`,
	RunE: runIndexRetrieve,
}

func runIndexRetrieve(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide a search query")
	}
	query := strings.Join(args, " ")

	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	results, err := store.Search(context.Background(), query, limit)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatIndexResults(results, jsonOutput)
}

func formatIndexResults(results []*types.Record, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-24s  %-50s  %-6s  %s\n", "Key", "Title", "Year", "Source")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for _, rec := range results {
		key := rec.ID
		if len(key) > 24 {
			key = key[:21] + "..."
		}
		title := rec.Get(types.FieldTitle)
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-24s  %-50s  %-6s  %s\n",
			key, title, rec.Get(types.FieldYear), rec.MdProvenance.CuratedSource())
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- register subcommand ---

var indexRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a curated repository for indexing",
	Long: `Register records a curated review checkout in the registry next to the
index database. Build ingests every registered repository.`,
	RunE: runIndexRegister,
}

func runIndexRegister(cmd *cobra.Command, args []string) error {
	repoPath, _ := cmd.Flags().GetString("path")
	if repoPath == "" {
		return fmt.Errorf("provide the checkout path with --path")
	}
	repoURL, _ := cmd.Flags().GetString("url")

	dir, err := indexDir()
	if err != nil {
		return err
	}
	reg, err := index.LoadRegistry(dir)
	if err != nil {
		return err
	}
	if !reg.Register(index.RegistryEntry{Path: repoPath, URL: repoURL}) {
		fmt.Printf("%s already registered\n", repoPath)
		return nil
	}
	if err := reg.Save(dir); err != nil {
		return err
	}
	fmt.Printf("registered %s\n", repoPath)
	return nil
}

// --- shared helpers ---

func openIndex() (*index.Store, error) {
	cfg, err := engineConfig()
	if err != nil {
		return nil, err
	}
	return index.NewStore(cfg.Index)
}

func indexDir() (string, error) {
	cfg, err := engineConfig()
	if err != nil {
		return "", err
	}
	if cfg.Index.IndexDir != "" {
		return cfg.Index.IndexDir, nil
	}
	return index.DefaultDir()
}

func init() {
	indexBuildCmd.Flags().String("repo", "", "index a single checkout instead of the registry")
	indexBuildCmd.Flags().String("url", "", "source url for --repo records")

	indexRetrieveCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	indexRetrieveCmd.Flags().Bool("json", false, "output results as JSON")

	indexRegisterCmd.Flags().String("path", "", "curated checkout to register")
	indexRegisterCmd.Flags().String("url", "", "public source url of the repository")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexRetrieveCmd)
	indexCmd.AddCommand(indexRegisterCmd)

	rootCmd.AddCommand(indexCmd)
}
