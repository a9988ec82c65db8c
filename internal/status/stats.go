// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package status

import (
	"fmt"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Tally counts records per state.
type Tally struct {
	MdRetrieved               int `json:"md_retrieved" yaml:"md_retrieved"`
	MdImported                int `json:"md_imported" yaml:"md_imported"`
	MdNeedsManualPreparation  int `json:"md_needs_manual_preparation" yaml:"md_needs_manual_preparation"`
	MdPrepared                int `json:"md_prepared" yaml:"md_prepared"`
	MdProcessed               int `json:"md_processed" yaml:"md_processed"`
	RevPrescreenExcluded      int `json:"rev_prescreen_excluded" yaml:"rev_prescreen_excluded"`
	RevPrescreenIncluded      int `json:"rev_prescreen_included" yaml:"rev_prescreen_included"`
	PdfNeedsManualRetrieval   int `json:"pdf_needs_manual_retrieval" yaml:"pdf_needs_manual_retrieval"`
	PdfImported               int `json:"pdf_imported" yaml:"pdf_imported"`
	PdfNotAvailable           int `json:"pdf_not_available" yaml:"pdf_not_available"`
	PdfNeedsManualPreparation int `json:"pdf_needs_manual_preparation" yaml:"pdf_needs_manual_preparation"`
	PdfPrepared               int `json:"pdf_prepared" yaml:"pdf_prepared"`
	RevExcluded               int `json:"rev_excluded" yaml:"rev_excluded"`
	RevIncluded               int `json:"rev_included" yaml:"rev_included"`
	RevSynthesized            int `json:"rev_synthesized" yaml:"rev_synthesized"`
}

func (t *Tally) counter(s types.Status) *int {
	switch s {
	case types.StatusMdRetrieved:
		return &t.MdRetrieved
	case types.StatusMdImported:
		return &t.MdImported
	case types.StatusMdNeedsManualPreparation:
		return &t.MdNeedsManualPreparation
	case types.StatusMdPrepared:
		return &t.MdPrepared
	case types.StatusMdProcessed:
		return &t.MdProcessed
	case types.StatusRevPrescreenExcluded:
		return &t.RevPrescreenExcluded
	case types.StatusRevPrescreenIncluded:
		return &t.RevPrescreenIncluded
	case types.StatusPdfNeedsManualRetrieval:
		return &t.PdfNeedsManualRetrieval
	case types.StatusPdfImported:
		return &t.PdfImported
	case types.StatusPdfNotAvailable:
		return &t.PdfNotAvailable
	case types.StatusPdfNeedsManualPreparation:
		return &t.PdfNeedsManualPreparation
	case types.StatusPdfPrepared:
		return &t.PdfPrepared
	case types.StatusRevExcluded:
		return &t.RevExcluded
	case types.StatusRevIncluded:
		return &t.RevIncluded
	case types.StatusRevSynthesized:
		return &t.RevSynthesized
	}
	return nil
}

// Of returns the count for a state, zero for unknown states.
func (t *Tally) Of(s types.Status) int {
	if c := t.counter(s); c != nil {
		return *c
	}
	return 0
}

// Current tallies records by their present state, with derived counts used
// for progress reporting.
type Current struct {
	Tally `yaml:",inline"`
	// NonProcessed counts records before md_processed.
	NonProcessed int `json:"non_processed" yaml:"non_processed"`
	// NonCompleted counts records that still have operations ahead.
	NonCompleted int `json:"non_completed" yaml:"non_completed"`
	// PdfNeedsRetrieval mirrors RevPrescreenIncluded.
	PdfNeedsRetrieval int `json:"pdf_needs_retrieval" yaml:"pdf_needs_retrieval"`
}

// Overall tallies records that are at or have passed through each state.
type Overall struct {
	Tally `yaml:",inline"`
	// RevPrescreen is the number of records that reached the prescreen.
	RevPrescreen int `json:"rev_prescreen" yaml:"rev_prescreen"`
	// RevScreen is the number of records that reached the screen.
	RevScreen int `json:"rev_screen" yaml:"rev_screen"`
}

// Options feeds external context into the statistics calculation.
type Options struct {
	// SearchResultCount is the total number of entries across the search
	// source files; it becomes Overall.MdRetrieved.
	SearchResultCount int
	// Criteria lists the screening criterion names from the settings.
	Criteria []string
	// CuratedRepo marks a curated masterdata repository, where every
	// processed record counts as curated.
	CuratedRepo bool
}

// Stats summarizes the pipeline position of every record in the store.
type Stats struct {
	Currently Current `json:"currently" yaml:"currently"`
	Overall   Overall `json:"overall" yaml:"overall"`

	MdDuplicatesRemoved int `json:"md_duplicates_removed" yaml:"md_duplicates_removed"`
	NrOrigins           int `json:"nr_origins" yaml:"nr_origins"`
	NrCuratedRecords    int `json:"nr_curated_records" yaml:"nr_curated_records"`
	PercCurated         int `json:"perc_curated" yaml:"perc_curated"`

	// AtomicSteps is the total number of operation steps this review
	// requires; CompletedAtomicSteps counts how many are already done.
	AtomicSteps           int  `json:"atomic_steps" yaml:"atomic_steps"`
	CompletedAtomicSteps  int  `json:"completed_atomic_steps" yaml:"completed_atomic_steps"`
	CompletenessCondition bool `json:"completeness_condition" yaml:"completeness_condition"`

	// ScreeningStatistics counts, per criterion, how many records were
	// screened out by it.
	ScreeningStatistics map[string]int `json:"screening_statistics" yaml:"screening_statistics"`
}

// completedSteps maps each state to the number of the eight operation
// steps (load, prep, dedupe, prescreen, pdf_get, pdf_prep, screen, data) a
// record in that state has completed. Manual follow-ups do not count as
// extra steps.
var completedSteps = map[types.Status]int{
	types.StatusMdRetrieved:               0,
	types.StatusMdImported:                1,
	types.StatusMdNeedsManualPreparation:  2,
	types.StatusMdPrepared:                2,
	types.StatusMdProcessed:               3,
	types.StatusRevPrescreenExcluded:      4,
	types.StatusRevPrescreenIncluded:      4,
	types.StatusPdfNeedsManualRetrieval:   5,
	types.StatusPdfImported:               5,
	types.StatusPdfNotAvailable:           5,
	types.StatusPdfNeedsManualPreparation: 6,
	types.StatusPdfPrepared:               6,
	types.StatusRevExcluded:               7,
	types.StatusRevIncluded:               7,
	types.StatusRevSynthesized:            8,
}

// NewStats computes status statistics over the given records.
func NewStats(records []*types.Record, opts Options) *Stats {
	s := &Stats{
		ScreeningStatistics: map[string]int{},
	}
	for _, name := range opts.Criteria {
		s.ScreeningStatistics[name] = 0
	}

	for _, rec := range records {
		if c := s.Currently.counter(rec.Status); c != nil {
			*c++
		}

		nonMd := 0
		for _, origin := range rec.Origins {
			if !strings.HasPrefix(origin, "md_") {
				nonMd++
			}
		}
		s.NrOrigins += nonMd
		if nonMd > 1 {
			s.MdDuplicatesRemoved += nonMd - 1
		}

		if criteria := rec.Get(types.FieldScreeningCriteria); criteria != "" && criteria != types.NA {
			for _, part := range strings.Split(criteria, ";") {
				name, decision, ok := strings.Cut(part, "=")
				if ok && decision == "out" {
					s.ScreeningStatistics[name]++
				}
			}
		}

		if rec.MasterdataCurated() {
			s.NrCuratedRecords++
		}

		s.CompletedAtomicSteps += completedSteps[rec.Status]
		if !rec.Status.Terminal() {
			s.Currently.NonCompleted++
		}
	}

	// Overall counts records at or beyond each state, following the
	// transition graph rather than the linear order so that side branches
	// (e.g. pdf_not_available) are not attributed to states they never
	// passed through.
	for _, state := range types.Statuses() {
		total := 0
		for reached := range reachableFrom(state) {
			total += s.Currently.Of(reached)
		}
		if c := s.Overall.counter(state); c != nil {
			*c = total
		}
	}

	s.Currently.NonProcessed = s.Currently.MdImported +
		s.Currently.MdRetrieved +
		s.Currently.MdNeedsManualPreparation +
		s.Currently.MdPrepared

	s.Overall.MdRetrieved = opts.SearchResultCount
	s.Currently.MdRetrieved = max(s.Overall.MdRetrieved-s.NrOrigins, 0)
	s.Currently.PdfNeedsRetrieval = s.Currently.RevPrescreenIncluded

	s.Overall.RevScreen = s.Overall.PdfPrepared
	s.Overall.RevPrescreen = s.Overall.MdProcessed

	if opts.CuratedRepo {
		s.NrCuratedRecords = s.Overall.MdProcessed
	}

	s.AtomicSteps = 8*s.Overall.MdRetrieved -
		5*s.MdDuplicatesRemoved -
		4*s.Currently.RevPrescreenExcluded -
		3*s.Currently.PdfNotAvailable -
		s.Currently.RevExcluded

	s.CompletenessCondition = s.Currently.NonCompleted == 0 &&
		s.Currently.MdRetrieved == 0 &&
		s.Overall.MdRetrieved > 0

	denominator := s.Overall.MdProcessed +
		s.Currently.MdPrepared +
		s.Currently.MdNeedsManualPreparation +
		s.Currently.MdImported
	if denominator > 0 {
		s.PercCurated = s.NrCuratedRecords * 100 / denominator
	}

	return s
}

// ActiveMetadataInfo summarizes pending metadata work for progress output.
func (s *Stats) ActiveMetadataInfo() string {
	var infos []string
	if s.Currently.MdRetrieved > 0 {
		infos = append(infos, fmt.Sprintf("%d to load", s.Currently.MdRetrieved))
	}
	if s.Currently.MdImported > 0 {
		infos = append(infos, fmt.Sprintf("%d to prepare", s.Currently.MdImported))
	}
	if s.Currently.MdNeedsManualPreparation > 0 {
		infos = append(infos, fmt.Sprintf("%d to prepare manually", s.Currently.MdNeedsManualPreparation))
	}
	if s.Currently.MdPrepared > 0 {
		infos = append(infos, fmt.Sprintf("%d to deduplicate", s.Currently.MdPrepared))
	}
	return strings.Join(infos, ", ")
}

// ActivePdfInfo summarizes pending PDF work for progress output.
func (s *Stats) ActivePdfInfo() string {
	var infos []string
	if s.Currently.RevPrescreenIncluded > 0 {
		infos = append(infos, fmt.Sprintf("%d to retrieve", s.Currently.RevPrescreenIncluded))
	}
	if s.Currently.PdfNeedsManualRetrieval > 0 {
		infos = append(infos, fmt.Sprintf("%d to retrieve manually", s.Currently.PdfNeedsManualRetrieval))
	}
	if s.Currently.PdfImported > 0 {
		infos = append(infos, fmt.Sprintf("%d to prepare", s.Currently.PdfImported))
	}
	if s.Currently.PdfNeedsManualPreparation > 0 {
		infos = append(infos, fmt.Sprintf("%d to prepare manually", s.Currently.PdfNeedsManualPreparation))
	}
	return strings.Join(infos, ", ")
}
