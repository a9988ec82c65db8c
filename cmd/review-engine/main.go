// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the review-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/review-engine/internal/dataset"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the review-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "review-engine",
	Short: "Versioned record store and status engine for literature reviews",
	Long: `review-engine manages a literature review as a versioned record store.
Records enter through registered search sources, move through a defined
lifecycle, and every operation commits its changes together with a report
so the review history documents itself.

Each operation is a subcommand: load, prep, set-ids, data. status shows
where the review stands, validate checks the store's integrity, and index
maintains the machine-wide index of curated records.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := engineConfig()
		if err != nil {
			return err
		}
		return logging.Init(cfg.Log)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./review-engine.yaml or ~/.config/review-engine/config.yaml)")
	rootCmd.PersistentFlags().String("project", ".", "review project root")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("review-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "review-engine"))
		}
	}

	viper.SetEnvPrefix("REVIEW_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfig merges the configuration file over the engine defaults.
// Config keys follow the yaml tags of types.EngineConfig.
func engineConfig() (types.EngineConfig, error) {
	cfg := types.DefaultEngineConfig()
	err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" })
	if err != nil {
		return cfg, fmt.Errorf("reading engine configuration: %w", err)
	}
	return cfg, nil
}

// openDataset binds the review project named by --project.
func openDataset() (*dataset.Dataset, error) {
	root, _ := rootCmd.PersistentFlags().GetString("project")
	cfg, err := engineConfig()
	if err != nil {
		return nil, err
	}
	return dataset.Open(root, cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
