// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prep

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/dataset"
	"github.com/pdiddy/review-engine/internal/index"
	"github.com/pdiddy/review-engine/pkg/types"
)

func prepRounds(endpoints ...string) []types.PrepRound {
	return []types.PrepRound{{Name: "prep", Similarity: 0.8, Endpoints: endpoints}}
}

// newPrepDataset creates a review project checkout with the given
// preparation rounds and an index directory local to the test.
func newPrepDataset(t *testing.T, rounds []types.PrepRound) *dataset.Dataset {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not installed: %v", err)
	}

	root := t.TempDir()
	settings := types.DefaultSettings()
	settings.Prep.Rounds = rounds
	require.NoError(t, settings.SaveSettings(filepath.Join(root, types.SettingsFile)))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data", "search"), 0o755))

	cfg := types.DefaultEngineConfig()
	cfg.Index.IndexDir = filepath.Join(root, "index")
	d, err := dataset.Open(root, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Git().Init(ctx))
	gitRun(t, root, "config", "user.email", "dev@example.org")
	gitRun(t, root, "config", "user.name", "Dev")
	return d
}

func gitRun(t *testing.T, root string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

// imported builds a complete md_imported article as load leaves it.
func imported(id string) *types.Record {
	rec := &types.Record{ID: id, Type: "article", Status: types.StatusMdImported}
	rec.AddOrigin("test_api.bib/000001")
	rec.Set(types.FieldAuthor, "Webster, Jane and Watson, Richard T.")
	rec.Set(types.FieldTitle, "Analyzing the Past to Prepare for the Future")
	rec.Set(types.FieldJournal, "MIS Quarterly")
	rec.Set(types.FieldYear, "2002")
	rec.Set(types.FieldVolume, "26")
	rec.Set(types.FieldNumber, "2")
	return rec
}

func saveStore(t *testing.T, d *dataset.Dataset, recs ...*types.Record) {
	t.Helper()
	list := bib.NewRecordList()
	for _, rec := range recs {
		require.NoError(t, list.Add(rec))
	}
	require.NoError(t, d.Save(list))
}

func reload(t *testing.T, d *dataset.Dataset, id string) *types.Record {
	t.Helper()
	list, err := d.Load()
	require.NoError(t, err)
	rec, ok := list.Get(id)
	require.True(t, ok, "record %s not found after run", id)
	return rec
}

func newPrep(t *testing.T, d *dataset.Dataset, opts Options) (*Prep, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	opts.Progress = out
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	p, err := New(d, opts)
	require.NoError(t, err)
	return p, out
}

// fakeEndpoint records its invocations and applies a mutation function.
type fakeEndpoint struct {
	name        string
	alwaysApply bool
	called      int
	mutate      func(rec *types.Record)
}

func (f *fakeEndpoint) Name() string      { return f.name }
func (f *fakeEndpoint) AlwaysApply() bool { return f.alwaysApply }
func (f *fakeEndpoint) Prepare(_ context.Context, rec *types.Record) error {
	f.called++
	if f.mutate != nil {
		f.mutate(rec)
	}
	return nil
}

// --- rounds ---

func TestRunPreparesCompleteRecord(t *testing.T) {
	d := newPrepDataset(t, prepRounds(EndpointFormat))
	rec := imported("Webster2002")
	rec.Set("source_link", "https://aggregator.example.org/12")
	saveStore(t, d, rec)

	p, out := newPrep(t, d, Options{KeepIDs: true})
	require.NoError(t, p.Run(context.Background()))

	got := reload(t, d, "Webster2002")
	assert.Equal(t, types.StatusMdPrepared, got.Status)
	assert.Equal(t, "", got.Get("source_link"), "loader artifact should be dropped in the last round")
	assert.Equal(t, "MIS Quarterly", got.Get(types.FieldJournal))
	assert.Contains(t, out.String(), "md_imported -> md_prepared")
	assert.Contains(t, gitRun(t, d.Root(), "log", "--oneline"), "Prepare records (prep)")
}

func TestRunParksIncompleteRecord(t *testing.T) {
	d := newPrepDataset(t, prepRounds(EndpointFormat))
	rec := imported("Anon2002")
	rec.Remove(types.FieldAuthor)
	rec.Remove(types.FieldJournal)
	saveStore(t, d, rec)

	p, _ := newPrep(t, d, Options{KeepIDs: true})
	require.NoError(t, p.Run(context.Background()))

	got := reload(t, d, "Anon2002")
	assert.Equal(t, types.StatusMdNeedsManualPreparation, got.Status)
	assert.Equal(t, "missing", got.MdProvenance[types.FieldAuthor].Note)
	assert.Equal(t, "missing", got.MdProvenance[types.FieldJournal].Note)
	assert.Equal(t, "test_api.bib/000001", got.MdProvenance[types.FieldAuthor].Source)
}

func TestRunResumesInterruptedRun(t *testing.T) {
	d := newPrepDataset(t, prepRounds(EndpointFormat))
	first := imported("Webster2002")
	second := imported("Second2010")
	second.Set(types.FieldAuthor, "Second, Ann")
	second.Set(types.FieldYear, "2010")
	saveStore(t, d, first, second)

	// An earlier run finished the first record before being interrupted.
	buffered := imported("Webster2002")
	buffered.Status = types.StatusMdPrepared
	buffered.Set(types.FieldTitle, "Analyzing the Past")
	require.NoError(t, os.MkdirAll(filepath.Join(d.Root(), ".review"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(d.Root(), ".review", currentTempFile),
		append(bib.EncodeRecord(buffered), '\n'), 0o644))

	p, out := newPrep(t, d, Options{KeepIDs: true})
	require.NoError(t, p.Run(context.Background()))

	assert.Contains(t, out.String(), "continuing an interrupted run: 1 records already prepared")

	got := reload(t, d, "Webster2002")
	assert.Equal(t, types.StatusMdPrepared, got.Status)
	assert.Equal(t, "Analyzing the Past", got.Get(types.FieldTitle),
		"buffered result should win over re-preparing the record")
	assert.Equal(t, types.StatusMdPrepared, reload(t, d, "Second2010").Status)

	for _, name := range []string{currentTempFile, tempFile} {
		_, err := os.Stat(filepath.Join(d.Root(), ".review", name))
		assert.True(t, os.IsNotExist(err), "buffer %s should be cleared", name)
	}
}

func TestRunStopsAtPrescreenExclusion(t *testing.T) {
	d := newPrepDataset(t, prepRounds("excluder", "tail"))
	saveStore(t, d, imported("Webster2002"))

	tail := &fakeEndpoint{name: "tail"}
	p, _ := newPrep(t, d, Options{KeepIDs: true})
	p.Register(&fakeEndpoint{name: "excluder", mutate: func(rec *types.Record) {
		rec.PrescreenExclude(types.ValueRetracted)
	}})
	p.Register(tail)
	require.NoError(t, p.Run(context.Background()))

	got := reload(t, d, "Webster2002")
	assert.Equal(t, types.StatusRevPrescreenExcluded, got.Status)
	assert.Equal(t, types.ValueRetracted, got.Get(types.FieldPrescreenExclusion))
	assert.Zero(t, tail.called, "endpoints after an exclusion should not run")
}

func TestRunDiscardsUnsavedEndpointChanges(t *testing.T) {
	rounds := []types.PrepRound{
		{Name: "first", Similarity: 0.8, Endpoints: []string{"setter"}},
		{Name: "second", Similarity: 0.8, Endpoints: []string{EndpointFormat}},
	}
	d := newPrepDataset(t, rounds)
	saveStore(t, d, imported("Webster2002"))

	p, out := newPrep(t, d, Options{KeepIDs: true})
	p.Register(&fakeEndpoint{name: "setter", mutate: func(rec *types.Record) {
		rec.Set("note", "from-round-one")
	}})
	require.NoError(t, p.Run(context.Background()))

	got := reload(t, d, "Webster2002")
	assert.Equal(t, types.StatusMdPrepared, got.Status)
	assert.Equal(t, "", got.Get("note"),
		"changes of a non-final round reach the store only on a save condition")
	assert.Contains(t, out.String(), "prepare (first)")
	assert.Contains(t, out.String(), "prepare (second)")
}

func TestRunNoRecords(t *testing.T) {
	d := newPrepDataset(t, prepRounds(EndpointFormat))

	p, out := newPrep(t, d, Options{KeepIDs: true})
	require.NoError(t, p.Run(context.Background()))
	assert.Contains(t, out.String(), "no records to prepare")
}

func TestRunNoRounds(t *testing.T) {
	d := newPrepDataset(t, nil)

	p, out := newPrep(t, d, Options{KeepIDs: true})
	require.NoError(t, p.Run(context.Background()))
	assert.Contains(t, out.String(), "no preparation rounds configured")
}

func TestRunSetsIDs(t *testing.T) {
	d := newPrepDataset(t, prepRounds(EndpointFormat))
	rec := imported("_tmp_0001")
	saveStore(t, d, rec)

	p, _ := newPrep(t, d, Options{})
	require.NoError(t, p.Run(context.Background()))

	list, err := d.Load()
	require.NoError(t, err)
	_, ok := list.Get("_tmp_0001")
	assert.False(t, ok, "temporary key should be replaced")
	got, ok := list.Get("WebsterWatson2002")
	require.True(t, ok, "pattern-generated key expected")
	assert.Equal(t, types.StatusMdPrepared, got.Status)
	assert.Contains(t, gitRun(t, d.Root(), "log", "--oneline"), "Set IDs")
}

// --- curated index endpoint ---

const curatedRepoURL = "https://github.com/org/curated-repo"

// curatedStoreRecord builds a processed record as a curated repository
// publishes it.
func curatedStoreRecord() *types.Record {
	rec := &types.Record{ID: "WebsterWatson2002", Type: "article", Status: types.StatusMdProcessed}
	rec.AddOrigin("md_source.bib/000001")
	rec.MdProvenance = types.ProvenanceMap{types.Curated: {Source: curatedRepoURL}}
	rec.Set(types.FieldAuthor, "Webster, Jane and Watson, Richard T.")
	rec.Set(types.FieldTitle, "Analyzing the Past to Prepare for the Future")
	rec.Set(types.FieldJournal, "MIS Quarterly")
	rec.Set(types.FieldYear, "2002")
	rec.Set(types.FieldVolume, "26")
	rec.Set(types.FieldDOI, "10.2307/4132319")
	return rec
}

func ingestCurated(t *testing.T, d *dataset.Dataset, recs ...*types.Record) {
	t.Helper()
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "data"), 0o755))
	list := bib.NewRecordList()
	for _, rec := range recs {
		require.NoError(t, list.Add(rec))
	}
	f, err := os.Create(filepath.Join(repo, "data", "records.bib"))
	require.NoError(t, err)
	require.NoError(t, bib.Encode(f, list))
	require.NoError(t, f.Close())

	store, err := index.NewStore(d.Config().Index)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Ingest(context.Background(), index.IngestOptions{RepoPath: repo}, io.Discard)
	require.NoError(t, err)
}

func TestRunCuratedEndpoint(t *testing.T) {
	d := newPrepDataset(t, prepRounds(EndpointFormat, EndpointCuratedIndex))
	ingestCurated(t, d, curatedStoreRecord())

	// The imported copy misspells the journal, carries a number the curated
	// version does not, and shares the DOI the lookup resolves.
	rec := imported("Webster2002")
	rec.Set(types.FieldJournal, "MISQ")
	rec.Set(types.FieldNumber, "3")
	rec.Set(types.FieldDOI, "10.2307/4132319")
	saveStore(t, d, rec)

	p, out := newPrep(t, d, Options{KeepIDs: true})
	require.NoError(t, p.Run(context.Background()))

	got := reload(t, d, "Webster2002")
	assert.Equal(t, types.StatusMdPrepared, got.Status)
	assert.True(t, got.MasterdataCurated())
	assert.Equal(t, curatedRepoURL, got.MdProvenance.CuratedSource())
	assert.Equal(t, "MIS Quarterly", got.Get(types.FieldJournal))
	assert.Equal(t, "26", got.Get(types.FieldVolume))
	assert.Equal(t, "", got.Get(types.FieldNumber),
		"number absent from the curated version should be dropped")
	assert.Equal(t, []string{"test_api.bib/000001"}, got.Origins)
	assert.Contains(t, out.String(), "(curated)")

	// The retrieval is tracked in the curated feed under its curation ID.
	f, err := os.Open(filepath.Join(d.Root(), "data", "search", "md_curated.bib"))
	require.NoError(t, err)
	defer f.Close()
	feedList, err := bib.Parse(f, bib.ParseOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, feedList.Len())
	entry, ok := feedList.Get("000001")
	require.True(t, ok)
	assert.Equal(t, curatedRepoURL+"#WebsterWatson2002", entry.Get(types.FieldCurationID))

	// Saving the feed registers the source.
	settings, err := types.LoadSettings(filepath.Join(d.Root(), types.SettingsFile))
	require.NoError(t, err)
	found := false
	for _, src := range settings.Sources {
		if src.Filename == "data/search/md_curated.bib" {
			found = true
		}
	}
	assert.True(t, found, "curated feed source should be registered")
}

func TestRunCuratedEndpointLeavesUnknownRecords(t *testing.T) {
	d := newPrepDataset(t, prepRounds(EndpointFormat, EndpointCuratedIndex))
	ingestCurated(t, d, curatedStoreRecord())

	rec := &types.Record{ID: "Lee2019", Type: "article", Status: types.StatusMdImported}
	rec.AddOrigin("test_api.bib/000002")
	rec.Set(types.FieldAuthor, "Lee, Ann")
	rec.Set(types.FieldTitle, "A Study of Something Else Entirely")
	rec.Set(types.FieldJournal, "Journal of Unrelated Research")
	rec.Set(types.FieldYear, "2019")
	saveStore(t, d, rec)

	p, _ := newPrep(t, d, Options{KeepIDs: true})
	require.NoError(t, p.Run(context.Background()))

	got := reload(t, d, "Lee2019")
	assert.False(t, got.MasterdataCurated())
	assert.Equal(t, types.StatusMdPrepared, got.Status,
		"complete metadata passes the quality gate without a curated match")
	assert.Equal(t, "Journal of Unrelated Research", got.Get(types.FieldJournal))
}

// --- format endpoint ---

func TestFormatMovesHowpublishedURL(t *testing.T) {
	rec := &types.Record{ID: "Report2020", Type: "misc"}
	rec.Set("howpublished", `\url{https://example.org/report}`)

	require.NoError(t, NewFormat().Prepare(context.Background(), rec))

	assert.Equal(t, "https://example.org/report", rec.Get(types.FieldURL))
	assert.Equal(t, "", rec.Get("howpublished"))
	assert.Equal(t, "online", rec.Type)
}

func TestFormatRenamesWebpageType(t *testing.T) {
	rec := &types.Record{ID: "Page2020", Type: "webpage"}
	rec.Set(types.FieldTitle, "Some page")

	require.NoError(t, NewFormat().Prepare(context.Background(), rec))
	assert.Equal(t, "online", rec.Type)
}
