// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package status

import (
	"testing"

	"github.com/pdiddy/review-engine/pkg/types"
)

func statRecord(id string, status types.Status, origins ...string) *types.Record {
	rec := types.NewRecord(id, "article")
	rec.Status = status
	rec.Origins = origins
	return rec
}

// statsFixture covers one record per relevant branch of the lifecycle:
// a synthesized merge of two origins, an excluded record, one mid-pdf,
// one unavailable pdf, one prescreen-excluded from a curated source file,
// and one freshly imported curated record.
func statsFixture() []*types.Record {
	synth := statRecord("Synth2020", types.StatusRevSynthesized, "pubmed.bib/000001", "dblp.bib/000001")
	synth.Set(types.FieldScreeningCriteria, "clarity=in;scope=in")

	excl := statRecord("Excl2020", types.StatusRevExcluded, "pubmed.bib/000002")
	excl.Set(types.FieldScreeningCriteria, "clarity=in;scope=out")

	imp := statRecord("Imp2022", types.StatusMdImported, "dblp.bib/000003")
	imp.MdProvenance = types.ProvenanceMap{
		types.Curated: {Source: "https://git.example.org/curated-repo"},
	}

	return []*types.Record{
		synth,
		excl,
		statRecord("Pdf2021", types.StatusPdfImported, "dblp.bib/000002"),
		statRecord("NotAvail2021", types.StatusPdfNotAvailable, "pubmed.bib/000003"),
		statRecord("Presc2021", types.StatusRevPrescreenExcluded, "md_curated.bib/000001"),
		imp,
	}
}

func TestNewStatsCurrently(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10, Criteria: []string{"clarity", "scope"}})

	if s.Currently.RevSynthesized != 1 || s.Currently.RevExcluded != 1 ||
		s.Currently.PdfImported != 1 || s.Currently.PdfNotAvailable != 1 ||
		s.Currently.RevPrescreenExcluded != 1 || s.Currently.MdImported != 1 {
		t.Errorf("Currently = %+v", s.Currently)
	}
	if s.Currently.MdRetrieved != 4 {
		t.Errorf("Currently.MdRetrieved = %d, want 10 results - 6 origins", s.Currently.MdRetrieved)
	}
	if s.Currently.NonProcessed != 1 {
		t.Errorf("NonProcessed = %d", s.Currently.NonProcessed)
	}
	if s.Currently.NonCompleted != 2 {
		t.Errorf("NonCompleted = %d", s.Currently.NonCompleted)
	}
	if s.Currently.PdfNeedsRetrieval != 0 {
		t.Errorf("PdfNeedsRetrieval = %d", s.Currently.PdfNeedsRetrieval)
	}
}

func TestNewStatsOverall(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10})

	if s.Overall.MdRetrieved != 10 {
		t.Errorf("Overall.MdRetrieved = %d", s.Overall.MdRetrieved)
	}
	if s.Overall.MdImported != 6 {
		t.Errorf("Overall.MdImported = %d", s.Overall.MdImported)
	}
	if s.Overall.MdProcessed != 5 {
		t.Errorf("Overall.MdProcessed = %d", s.Overall.MdProcessed)
	}
	if s.Overall.RevPrescreenIncluded != 4 {
		t.Errorf("Overall.RevPrescreenIncluded = %d", s.Overall.RevPrescreenIncluded)
	}
	// pdf_not_available branches off before pdf_imported and must not be
	// counted as having passed through it.
	if s.Overall.PdfImported != 3 {
		t.Errorf("Overall.PdfImported = %d", s.Overall.PdfImported)
	}
	if s.Overall.RevIncluded != 1 || s.Overall.RevSynthesized != 1 {
		t.Errorf("Overall included/synthesized = %d/%d", s.Overall.RevIncluded, s.Overall.RevSynthesized)
	}
	if s.Overall.RevPrescreen != 5 || s.Overall.RevScreen != 2 {
		t.Errorf("RevPrescreen/RevScreen = %d/%d", s.Overall.RevPrescreen, s.Overall.RevScreen)
	}
}

func TestNewStatsOriginsAndDuplicates(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10})

	// md_-prefixed source files do not count as search origins.
	if s.NrOrigins != 6 {
		t.Errorf("NrOrigins = %d", s.NrOrigins)
	}
	if s.MdDuplicatesRemoved != 1 {
		t.Errorf("MdDuplicatesRemoved = %d", s.MdDuplicatesRemoved)
	}
}

func TestNewStatsAtomicSteps(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10})

	// 8*10 results - 5*1 duplicate - 4*1 prescreen-excluded
	// - 3*1 pdf-unavailable - 1 excluded.
	if s.AtomicSteps != 67 {
		t.Errorf("AtomicSteps = %d", s.AtomicSteps)
	}
	// 8 + 7 + 5 + 5 + 4 + 1 completed per record.
	if s.CompletedAtomicSteps != 30 {
		t.Errorf("CompletedAtomicSteps = %d", s.CompletedAtomicSteps)
	}
}

func TestNewStatsScreeningStatistics(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10, Criteria: []string{"clarity", "scope"}})

	if s.ScreeningStatistics["clarity"] != 0 {
		t.Errorf("clarity = %d", s.ScreeningStatistics["clarity"])
	}
	if s.ScreeningStatistics["scope"] != 1 {
		t.Errorf("scope = %d", s.ScreeningStatistics["scope"])
	}
}

func TestNewStatsCuration(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10})
	if s.NrCuratedRecords != 1 {
		t.Errorf("NrCuratedRecords = %d", s.NrCuratedRecords)
	}
	// 1 curated / (5 processed + 1 imported).
	if s.PercCurated != 16 {
		t.Errorf("PercCurated = %d", s.PercCurated)
	}

	s = NewStats(statsFixture(), Options{SearchResultCount: 10, CuratedRepo: true})
	if s.NrCuratedRecords != 5 {
		t.Errorf("curated repo NrCuratedRecords = %d", s.NrCuratedRecords)
	}
	if s.PercCurated != 83 {
		t.Errorf("curated repo PercCurated = %d", s.PercCurated)
	}
}

func TestNewStatsCompleteness(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10})
	if s.CompletenessCondition {
		t.Error("incomplete store reported complete")
	}

	done := []*types.Record{statRecord("Done2020", types.StatusRevSynthesized, "pubmed.bib/000001")}
	s = NewStats(done, Options{SearchResultCount: 1})
	if !s.CompletenessCondition {
		t.Errorf("complete store not detected: %+v", s)
	}

	s = NewStats(nil, Options{})
	if s.CompletenessCondition {
		t.Error("empty store reported complete")
	}
}

func TestActiveInfo(t *testing.T) {
	s := NewStats(statsFixture(), Options{SearchResultCount: 10})

	if got := s.ActiveMetadataInfo(); got != "4 to load, 1 to prepare" {
		t.Errorf("ActiveMetadataInfo = %q", got)
	}
	if got := s.ActivePdfInfo(); got != "1 to prepare" {
		t.Errorf("ActivePdfInfo = %q", got)
	}
}
