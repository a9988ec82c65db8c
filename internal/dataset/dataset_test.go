// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/gitrepo"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/pkg/types"
)

// newTestProject creates a review project checkout with settings, a
// registered test source, and an initialized git repository.
func newTestProject(t *testing.T) *Dataset {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not installed: %v", err)
	}

	root := t.TempDir()
	settings := types.DefaultSettings()
	settings.Sources = []types.SearchSource{{
		Endpoint:   "api.test",
		Filename:   "data/search/test.bib",
		SearchType: types.SearchTypeAPI,
	}}
	require.NoError(t, settings.SaveSettings(filepath.Join(root, types.SettingsFile)))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data", "search"), 0o755))

	d, err := Open(root, types.DefaultEngineConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Git().Init(ctx))
	gitRun(t, root, "config", "user.email", "dev@example.org")
	gitRun(t, root, "config", "user.name", "Dev")
	return d
}

func gitRun(t *testing.T, root string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func newTestReport(t *testing.T, d *Dataset) *logging.Report {
	t.Helper()
	report, err := logging.NewReport(d.ReportPath(), types.OpLoad)
	require.NoError(t, err)
	t.Cleanup(func() { _ = report.Close() })
	return report
}

func record(id string, st types.Status, origins ...string) *types.Record {
	rec := &types.Record{ID: id, Type: "article", Status: st}
	rec.AddOrigin(origins...)
	rec.Set(types.FieldAuthor, "Webster, Jane")
	rec.Set(types.FieldTitle, "Analyzing the past")
	rec.Set(types.FieldJournal, "MISQ")
	rec.Set(types.FieldYear, "2002")
	return rec
}

func saveStore(t *testing.T, d *Dataset, recs ...*types.Record) {
	t.Helper()
	list := bib.NewRecordList()
	for _, rec := range recs {
		require.NoError(t, list.Add(rec))
	}
	require.NoError(t, d.Save(list))
}

func commitStore(t *testing.T, d *Dataset, msg string) {
	t.Helper()
	ctx := context.Background()
	created, err := d.CreateCommit(ctx, CommitOptions{Message: msg})
	require.NoError(t, err)
	require.True(t, created, "expected a commit for %q", msg)
}

// writeFeed fills the registered test feed with entries under the given
// feed ids.
func writeFeed(t *testing.T, d *Dataset, ids ...string) {
	t.Helper()
	list := bib.NewRecordList()
	for _, id := range ids {
		rec := &types.Record{ID: id, Type: "article"}
		rec.Set(types.FieldTitle, "Feed entry "+id)
		require.NoError(t, list.Add(rec))
	}
	f, err := os.Create(filepath.Join(d.Root(), "data", "search", "test.bib"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, bib.Encode(f, list))
}

// --- store access ---

func TestOpenRequiresSettings(t *testing.T) {
	_, err := Open(t.TempDir(), types.DefaultEngineConfig())
	assert.Error(t, err)
}

func TestOpenUsesConfiguredLockTimeout(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not installed: %v", err)
	}

	root := t.TempDir()
	settings := types.DefaultSettings()
	require.NoError(t, settings.SaveSettings(filepath.Join(root, types.SettingsFile)))

	cfg := types.DefaultEngineConfig()
	cfg.Prep.LockTimeout = 200 * time.Millisecond
	d, err := Open(root, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Git().Init(context.Background()))

	old := gitrepo.LockPollInterval
	gitrepo.LockPollInterval = 20 * time.Millisecond
	t.Cleanup(func() { gitrepo.LockPollInterval = old })

	lock := filepath.Join(root, ".git", "index.lock")
	require.NoError(t, os.WriteFile(lock, nil, 0o644))

	start := time.Now()
	err = d.Git().WaitForIndexLock(context.Background())
	require.Error(t, err)
	// With the default 30s bound this would block far longer.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLoadMissingRecordsFile(t *testing.T) {
	d := newTestProject(t)

	list, err := d.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, list.Len())

	items, err := d.LoadHeaders()
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	d := newTestProject(t)
	saveStore(t, d,
		record("Webster2002", types.StatusMdImported, "test.bib/000001"),
		record("Smith2019", types.StatusMdProcessed, "test.bib/000002", "test.bib/000003"),
	)

	list, err := d.Load()
	require.NoError(t, err)
	require.Equal(t, 2, list.Len())

	rec, ok := list.Get("Smith2019")
	require.True(t, ok)
	assert.Equal(t, types.StatusMdProcessed, rec.Status)
	assert.Equal(t, []string{"test.bib/000002", "test.bib/000003"}, rec.Origins)
}

func TestSaveRecordsPatchesInPlace(t *testing.T) {
	d := newTestProject(t)
	saveStore(t, d,
		record("Webster2002", types.StatusMdImported, "test.bib/000001"),
		record("Smith2019", types.StatusMdImported, "test.bib/000002"),
	)
	before, err := os.ReadFile(d.RecordsPath())
	require.NoError(t, err)

	list, err := d.Load()
	require.NoError(t, err)
	rec, _ := list.Get("Webster2002")
	rec.Status = types.StatusMdPrepared
	require.NoError(t, d.SaveRecords(rec))

	after, err := os.ReadFile(d.RecordsPath())
	require.NoError(t, err)
	assert.Contains(t, string(after), string(types.StatusMdPrepared))
	// The untouched record's bytes survive verbatim.
	smithStart := strings.Index(string(before), "@article{Smith2019")
	require.Greater(t, smithStart, 0)
	assert.Contains(t, string(after), string(before)[smithStart:])
}

func TestOriginStates(t *testing.T) {
	d := newTestProject(t)
	saveStore(t, d,
		record("Webster2002", types.StatusMdImported, "test.bib/000001"),
		record("Smith2019", types.StatusMdProcessed, "test.bib/000002", "test.bib/000003"),
	)

	states, err := d.OriginStates()
	require.NoError(t, err)
	assert.Equal(t, map[string]types.Status{
		"test.bib/000001": types.StatusMdImported,
		"test.bib/000002": types.StatusMdProcessed,
		"test.bib/000003": types.StatusMdProcessed,
	}, states)

	imported, err := d.ImportedOrigins()
	require.NoError(t, err)
	assert.True(t, imported["test.bib/000003"])
	assert.False(t, imported["test.bib/000004"])
}

func TestKnownOriginsAndSearchResultCount(t *testing.T) {
	d := newTestProject(t)
	writeFeed(t, d, "000001", "000002", "000003")

	known, err := d.KnownOrigins()
	require.NoError(t, err)
	assert.True(t, known["test.bib/000002"])
	assert.False(t, known["other.bib/000002"])

	count, err := d.SearchResultCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestReprocessRemovesSelectedRecords(t *testing.T) {
	d := newTestProject(t)
	ctx := context.Background()
	saveStore(t, d,
		record("Webster2002", types.StatusMdImported, "test.bib/000001"),
		record("Smith2019", types.StatusMdImported, "test.bib/000002"),
	)
	commitStore(t, d, "load: import records")

	require.NoError(t, d.Reprocess(ctx, []string{"Webster2002"}))

	list, err := d.Load()
	require.NoError(t, err)
	_, ok := list.Get("Webster2002")
	assert.False(t, ok)
	_, ok = list.Get("Smith2019")
	assert.True(t, ok)
}

func TestReprocessAllRemovesStore(t *testing.T) {
	d := newTestProject(t)
	ctx := context.Background()
	saveStore(t, d, record("Webster2002", types.StatusMdImported, "test.bib/000001"))
	commitStore(t, d, "load: import records")

	require.NoError(t, d.Reprocess(ctx, nil))
	_, err := os.Stat(d.RecordsPath())
	assert.True(t, os.IsNotExist(err))
}

// --- commits ---

func TestCreateCommitAttachesReport(t *testing.T) {
	d := newTestProject(t)
	ctx := context.Background()
	saveStore(t, d, record("Webster2002", types.StatusMdImported, "test.bib/000001"))

	report := newTestReport(t, d)
	report.Infof("imported 1 record")

	created, err := d.CreateCommit(ctx, CommitOptions{Message: "load: import search results", Report: report})
	require.NoError(t, err)
	require.True(t, created)

	msg, err := d.Git().HeadMessage(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "load: import search results"))
	assert.Contains(t, msg, "imported 1 record")
}

func TestCreateCommitNothingToCommit(t *testing.T) {
	d := newTestProject(t)
	ctx := context.Background()
	saveStore(t, d, record("Webster2002", types.StatusMdImported, "test.bib/000001"))
	commitStore(t, d, "load: import records")

	created, err := d.CreateCommit(ctx, CommitOptions{Message: "prep: no-op"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCreateCommitRequiresMessage(t *testing.T) {
	d := newTestProject(t)
	_, err := d.CreateCommit(context.Background(), CommitOptions{})
	assert.Error(t, err)
}
