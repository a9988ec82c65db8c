// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dataset is the operation-facing facade over a review project:
// loading and saving the record store, reading its committed history,
// integrity validation, citation-key assignment, and operation commits.
// The records file is the source of truth; every operation reloads what it
// needs and writes results back through the codec or the patch writer.
package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/gitrepo"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Dataset binds a review project checkout: its records store, settings,
// and version control. Methods are not safe for concurrent use; the engine
// runs one mutating operation at a time per project.
type Dataset struct {
	root     string
	cfg      types.EngineConfig
	settings *types.Settings
	git      *gitrepo.Client
}

// Open binds the review project rooted at root. The project must carry a
// settings file; a missing records file is treated as an empty store.
func Open(root string, cfg types.EngineConfig) (*Dataset, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	settings, err := types.LoadSettings(filepath.Join(abs, types.SettingsFile))
	if err != nil {
		return nil, err
	}

	git, err := gitrepo.NewClient(abs)
	if err != nil {
		return nil, err
	}
	git.SetLockTimeout(cfg.Prep.LockTimeout)

	return &Dataset{root: abs, cfg: cfg, settings: settings, git: git}, nil
}

// Root returns the project root directory.
func (d *Dataset) Root() string { return d.root }

// Settings returns the project settings loaded at Open.
func (d *Dataset) Settings() *types.Settings { return d.settings }

// Git returns the version-control client for the project checkout.
func (d *Dataset) Git() *gitrepo.Client { return d.git }

// Config returns the engine configuration the dataset was opened with.
func (d *Dataset) Config() types.EngineConfig { return d.cfg }

// RecordsPath returns the absolute path of the records file.
func (d *Dataset) RecordsPath() string {
	return filepath.Join(d.root, d.cfg.Paths.RecordsFile)
}

// RecordsRel returns the records file path relative to the project root,
// as used in git commands.
func (d *Dataset) RecordsRel() string { return d.cfg.Paths.RecordsFile }

// SearchDir returns the absolute path of the search feed directory.
func (d *Dataset) SearchDir() string {
	return filepath.Join(d.root, d.cfg.Paths.SearchDir)
}

// WorkDir returns the absolute path of the engine scratch directory,
// creating it on first use.
func (d *Dataset) WorkDir() (string, error) {
	dir := filepath.Join(d.root, d.cfg.Paths.WorkDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	return dir, nil
}

// ReportPath returns the absolute path of the operation report log.
func (d *Dataset) ReportPath() string {
	return filepath.Join(d.root, d.cfg.Paths.ReportFile)
}

// Load parses the full record store. A missing records file yields an
// empty list.
func (d *Dataset) Load() (*bib.RecordList, error) {
	f, err := os.Open(d.RecordsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return bib.NewRecordList(), nil
		}
		return nil, fmt.Errorf("opening records file: %w", err)
	}
	defer f.Close()

	list, err := bib.Parse(f, bib.ParseOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing records file: %w", err)
	}
	return list, nil
}

// Save writes the full record store, replacing the previous content.
func (d *Dataset) Save(list *bib.RecordList) error {
	if err := os.MkdirAll(filepath.Dir(d.RecordsPath()), 0o755); err != nil {
		return fmt.Errorf("creating records directory: %w", err)
	}

	f, err := os.Create(d.RecordsPath())
	if err != nil {
		return fmt.Errorf("creating records file: %w", err)
	}
	if err := bib.Encode(f, list); err != nil {
		f.Close()
		return fmt.Errorf("encoding records: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing records file: %w", err)
	}
	return f.Close()
}

// SaveRecords rewrites the given records in place through the patch
// writer, leaving the rest of the store untouched. Every record must
// already exist in the store under its ID.
func (d *Dataset) SaveRecords(recs ...*types.Record) error {
	if len(recs) == 0 {
		return nil
	}
	replacements := make(map[string]*types.Record, len(recs))
	for _, rec := range recs {
		replacements[rec.ID] = rec
	}
	_, err := bib.ReplaceRecords(d.RecordsPath(), replacements, bib.PatchOptions{})
	return err
}

// ReplaceField sets one header field to the same value on all given
// records through the patch writer.
func (d *Dataset) ReplaceField(ids []string, key, value string) (bib.PatchResult, error) {
	return bib.ReplaceField(d.RecordsPath(), ids, key, value, bib.PatchOptions{})
}

// LoadHeaders scans the engine-managed header fields of every record
// without parsing full entries. A missing records file yields nil.
func (d *Dataset) LoadHeaders() ([]bib.HeaderItem, error) {
	f, err := os.Open(d.RecordsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening records file: %w", err)
	}
	defer f.Close()

	items, err := bib.ScanHeaders(f)
	if err != nil {
		return nil, fmt.Errorf("scanning record headers: %w", err)
	}
	return items, nil
}

// OriginStates returns the status of every origin token in the working
// store. When two records share a token, which should not happen, the
// first record wins.
func (d *Dataset) OriginStates() (map[string]types.Status, error) {
	items, err := d.LoadHeaders()
	if err != nil {
		return nil, err
	}
	states := map[string]types.Status{}
	for _, item := range items {
		for _, origin := range item.Origins {
			if _, seen := states[origin]; !seen {
				states[origin] = item.Status
			}
		}
	}
	return states, nil
}

// ImportedOrigins returns the set of origin tokens already present in the
// working store. Load uses it to skip feed entries that were imported
// before.
func (d *Dataset) ImportedOrigins() (map[string]bool, error) {
	items, err := d.LoadHeaders()
	if err != nil {
		return nil, err
	}
	imported := map[string]bool{}
	for _, item := range items {
		for _, origin := range item.Origins {
			imported[origin] = true
		}
	}
	return imported, nil
}

// KnownOrigins returns the set of origin tokens that resolve to an entry
// in a registered search feed file. Tokens are "<feed file>/<feed id>".
func (d *Dataset) KnownOrigins() (map[string]bool, error) {
	known := map[string]bool{}
	for _, source := range d.settings.Sources {
		prefix := source.OriginPrefix()
		items, err := d.feedHeaders(source)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			known[prefix+"/"+item.ID] = true
		}
	}
	return known, nil
}

// SearchResultCount returns the total number of entries across all
// registered search feed files. It anchors the overall retrieval count in
// the status statistics.
func (d *Dataset) SearchResultCount() (int, error) {
	total := 0
	for _, source := range d.settings.Sources {
		items, err := d.feedHeaders(source)
		if err != nil {
			return 0, err
		}
		total += len(items)
	}
	return total, nil
}

func (d *Dataset) feedHeaders(source types.SearchSource) ([]bib.HeaderItem, error) {
	path := filepath.Join(d.root, filepath.FromSlash(source.Filename))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening feed file %s: %w", source.Filename, err)
	}
	defer f.Close()

	items, err := bib.ScanHeaders(f)
	if err != nil {
		return nil, fmt.Errorf("scanning feed file %s: %w", source.Filename, err)
	}
	return items, nil
}

// Reprocess removes records from the store so that a later load imports
// them afresh from their feeds. A nil ids slice removes the records file
// entirely. The removal is staged but not committed.
func (d *Dataset) Reprocess(ctx context.Context, ids []string) error {
	if ids == nil {
		if err := os.Remove(d.RecordsPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing records file: %w", err)
		}
		if d.git.IsRepository(ctx) && d.git.FileInHead(ctx, d.RecordsRel()) {
			return d.git.Remove(ctx, d.RecordsRel())
		}
		return nil
	}

	list, err := d.Load()
	if err != nil {
		return err
	}
	for _, id := range ids {
		list.Remove(id)
	}
	if err := d.Save(list); err != nil {
		return err
	}
	if d.git.IsRepository(ctx) {
		return d.AddRecordChanges(ctx)
	}
	return nil
}
