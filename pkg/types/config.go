// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"time"
)

// PathsConfig locates the review project's working files. All paths are
// relative to the project root (the git checkout).
type PathsConfig struct {
	// RecordsFile is the main records store (default "data/records.bib").
	RecordsFile string `json:"records_file" yaml:"records_file"`

	// SearchDir holds per-source feed files (default "data/search").
	SearchDir string `json:"search_dir" yaml:"search_dir"`

	// PdfDir holds retrieved PDFs (default "data/pdfs").
	PdfDir string `json:"pdf_dir" yaml:"pdf_dir"`

	// WorkDir holds engine-private scratch files such as the parallel
	// preparation buffer (default ".review").
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// ReportFile is the operation report log (default "report.log").
	ReportFile string `json:"report_file" yaml:"report_file"`
}

// IndexConfig holds settings for the curated local index.
type IndexConfig struct {
	// IndexDir is the directory for the index database and the registry
	// of curated repositories (default "~/.review-engine").
	IndexDir string `json:"index_dir" yaml:"index_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the zap log level: debug, info, warn, error (default "info").
	Level string `json:"level" yaml:"level"`
}

// PrepConfig holds settings for the preparation operation.
type PrepConfig struct {
	// Workers is the number of parallel preparation workers (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// LockTimeout bounds the advisory wait for the version-control index
	// lock before an operation gives up (default 30s).
	LockTimeout time.Duration `json:"lock_timeout" yaml:"lock_timeout"`
}

// EngineConfig groups all engine configuration.
type EngineConfig struct {
	Paths PathsConfig `json:"paths" yaml:"paths"`
	Index IndexConfig `json:"index" yaml:"index"`
	Log   LogConfig   `json:"log" yaml:"log"`
	Prep  PrepConfig  `json:"prep" yaml:"prep"`
}

// DefaultEngineConfig returns the engine configuration defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Paths: PathsConfig{
			RecordsFile: filepath.Join("data", "records.bib"),
			SearchDir:   filepath.Join("data", "search"),
			PdfDir:      filepath.Join("data", "pdfs"),
			WorkDir:     ".review",
			ReportFile:  "report.log",
		},
		Index: IndexConfig{
			MaxResults: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
		Prep: PrepConfig{
			Workers:     4,
			LockTimeout: 30 * time.Second,
		},
	}
}
