// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
)

// SettingsFile is the project settings filename at the review project root.
const SettingsFile = "settings.json"

// IDPattern selects how citation keys are generated from record metadata.
type IDPattern string

const (
	IDPatternFirstAuthorYear  IDPattern = "first_author_year"
	IDPatternThreeAuthorsYear IDPattern = "three_authors_year"
)

// SearchType classifies how a search source produces records.
type SearchType string

const (
	SearchTypeAPI   SearchType = "API"
	SearchTypeDB    SearchType = "DB"
	SearchTypeMD    SearchType = "MD"
	SearchTypePDFS  SearchType = "PDFS"
	SearchTypeOther SearchType = "OTHER"
)

// SearchSource describes one registered origin of records: a feed file under
// the search directory plus the endpoint that fills it.
type SearchSource struct {
	Endpoint         string         `json:"endpoint"`
	Filename         string         `json:"filename"`
	SearchType       SearchType     `json:"search_type"`
	SearchParameters map[string]any `json:"search_parameters"`
	Comment          string         `json:"comment"`
}

// OriginPrefix returns the prefix used in origin tokens contributed by this
// source: the feed file's base name, e.g. "pubmed.bib" for origins like
// "pubmed.bib/000023".
func (s SearchSource) OriginPrefix() string {
	return path.Base(strings.ReplaceAll(s.Filename, "\\", "/"))
}

// ProjectSettings holds review-level settings.
type ProjectSettings struct {
	Title                    string    `json:"title"`
	Authors                  []string  `json:"authors"`
	Keywords                 []string  `json:"keywords"`
	ReviewType               string    `json:"review_type"`
	IDPattern                IDPattern `json:"id_pattern"`
	DelayAutomatedProcessing bool      `json:"delay_automated_processing"`
	Version                  string    `json:"version"`
}

// SearchSettings holds settings shared by all search sources.
type SearchSettings struct {
	RetrieveForthcoming bool `json:"retrieve_forthcoming"`
}

// PrepRound names one preparation pass and the endpoints it runs.
type PrepRound struct {
	Name       string   `json:"name"`
	Similarity float64  `json:"similarity"`
	Endpoints  []string `json:"prep_package_endpoints"`
}

// PrepSettings holds preparation settings.
type PrepSettings struct {
	FieldsToKeep []string    `json:"fields_to_keep"`
	Rounds       []PrepRound `json:"prep_rounds"`
}

// ScreenCriterion is one screening criterion records are screened against.
// Screening results are stored per record as "name1:in;name2:out".
type ScreenCriterion struct {
	Explanation   string `json:"explanation"`
	Comment       string `json:"comment"`
	CriterionType string `json:"criterion_type"`
}

// ScreenSettings holds screen criteria keyed by criterion name.
type ScreenSettings struct {
	Explanation string                     `json:"explanation"`
	Criteria    map[string]ScreenCriterion `json:"criteria"`
}

// PrescreenSettings holds prescreen settings.
type PrescreenSettings struct {
	Explanation string `json:"explanation"`
}

// DedupeSettings holds deduplication settings.
type DedupeSettings struct {
	SameSourceMerges string `json:"same_source_merges"`
}

// PdfGetSettings holds PDF retrieval settings.
type PdfGetSettings struct {
	PdfPathType                      string `json:"pdf_path_type"`
	PdfRequiredForScreenAndSynthesis bool   `json:"pdf_required_for_screen_and_synthesis"`
	RenamePdfs                       bool   `json:"rename_pdfs"`
}

// Settings is the project settings document stored as settings.json at the
// review project root.
type Settings struct {
	Project   ProjectSettings   `json:"project"`
	Sources   []SearchSource    `json:"sources"`
	Search    SearchSettings    `json:"search"`
	Prep      PrepSettings      `json:"prep"`
	Dedupe    DedupeSettings    `json:"dedupe"`
	Prescreen PrescreenSettings `json:"prescreen"`
	PdfGet    PdfGetSettings    `json:"pdf_get"`
	Screen    ScreenSettings    `json:"screen"`
}

// DefaultSettings returns settings for a newly initialized review project.
func DefaultSettings() *Settings {
	return &Settings{
		Project: ProjectSettings{
			ReviewType: "literature_review",
			IDPattern:  IDPatternThreeAuthorsYear,
		},
		Search: SearchSettings{RetrieveForthcoming: true},
		Prep: PrepSettings{
			Rounds: []PrepRound{
				{Name: "prep", Similarity: 0.8, Endpoints: []string{"format", "local_index"}},
			},
		},
		Dedupe: DedupeSettings{SameSourceMerges: "prevent"},
		PdfGet: PdfGetSettings{
			PdfPathType:                      "symlink",
			PdfRequiredForScreenAndSynthesis: true,
			RenamePdfs:                       true,
		},
		Screen: ScreenSettings{Criteria: map[string]ScreenCriterion{}},
	}
}

// LoadSettings reads settings.json from path.
func LoadSettings(filename string) (*Settings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", filename, err)
	}
	if s.Project.IDPattern == "" {
		s.Project.IDPattern = IDPatternThreeAuthorsYear
	}
	return &s, nil
}

// SaveSettings writes settings.json to path.
func (s *Settings) SaveSettings(filename string) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// IsCuratedMasterdataRepo reports whether this project is a curated
// masterdata repository rather than a regular review.
func (s *Settings) IsCuratedMasterdataRepo() bool {
	return s.Project.ReviewType == "curated_masterdata"
}

// SourceByPrefix returns the source whose origin prefix matches, or nil.
func (s *Settings) SourceByPrefix(prefix string) *SearchSource {
	for i := range s.Sources {
		if s.Sources[i].OriginPrefix() == prefix {
			return &s.Sources[i]
		}
	}
	return nil
}
