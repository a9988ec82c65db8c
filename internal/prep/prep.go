// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prep improves record metadata after import. The preparation
// rounds from the project settings run their endpoints over every record
// awaiting preparation; parallel workers buffer finished records in a
// scratch file so an interrupted run resumes where it stopped instead of
// redoing completed records. The shared store is only written by the
// operation itself after all workers are done.
package prep

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/dataset"
	"github.com/pdiddy/review-engine/internal/index"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Endpoint is one preparation step applied to each record of a round.
// Endpoints receive a working copy; the operation decides whether its
// changes reach the stored record.
type Endpoint interface {
	// Name is the identifier under which project settings select the
	// endpoint.
	Name() string

	// Prepare improves the record's metadata in place.
	Prepare(ctx context.Context, rec *types.Record) error

	// AlwaysApply reports whether the endpoint's changes are kept even on
	// records that do not reach a final preparation state in this round.
	AlwaysApply() bool
}

// Built-in endpoint names, as referenced by settings.json.
const (
	EndpointFormat       = "format"
	EndpointCuratedIndex = "local_index"
)

// Buffer files for interrupted runs, under the engine scratch directory.
// Workers append to the first; at the start of a run it is folded into the
// second, which records what an earlier run already finished.
const (
	currentTempFile = "cur_temp_recs.bib"
	tempFile        = "temp_recs.bib"
)

// noteMissing marks a masterdata field whose value preparation could not
// determine.
const noteMissing = "missing"

// fieldsToKeep lists the generic fields kept on records after the last
// preparation round. Everything else is a loader artifact no downstream
// stage reads. Project settings can extend the set.
var fieldsToKeep = map[string]bool{
	types.FieldTitle:     true,
	types.FieldAuthor:    true,
	types.FieldYear:      true,
	types.FieldJournal:   true,
	types.FieldBooktitle: true,
	"chapter":            true,
	"publisher":          true,
	types.FieldVolume:    true,
	types.FieldNumber:    true,
	types.FieldPages:     true,
	types.FieldEditor:    true,
	"institution":        true,
	"month":              true,

	types.FieldSeries:   true,
	types.FieldAbstract: true,
	types.FieldLanguage: true,
	"address":           true,
	"edition":           true,
	"school":            true,
	"note":              true,
	"isbn":              true,
	"issn":              true,
	"fulltext":          true,
	"keywords":          true,
	"cited_by":          true,

	types.FieldDOI:                true,
	types.FieldURL:                true,
	types.FieldDblpKey:            true,
	types.FieldSemScholarID:       true,
	types.FieldWosAccession:       true,
	types.FieldFile:               true,
	types.FieldPrescreenExclusion: true,
}

// Options configure one preparation run.
type Options struct {
	// KeepIDs leaves citation keys unchanged after preparation.
	KeepIDs bool

	// Workers caps the number of concurrent preparation workers. Zero
	// uses the configured default.
	Workers int

	// Progress receives per-record outcome lines. Defaults to io.Discard.
	Progress io.Writer
}

// Prep is the preparation operation.
type Prep struct {
	d        *dataset.Dataset
	opts     Options
	progress io.Writer
	report   *logging.Report

	custom map[string]Endpoint

	lastRound bool
	pad       int
	workDir   string

	tempMu  sync.Mutex
	printMu sync.Mutex
}

// New sets up the preparation operation over a dataset.
func New(d *dataset.Dataset, opts Options) (*Prep, error) {
	if opts.Workers <= 0 {
		opts.Workers = d.Config().Prep.Workers
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	p := &Prep{d: d, opts: opts, progress: opts.Progress, custom: map[string]Endpoint{}}
	if p.progress == nil {
		p.progress = io.Discard
	}
	workDir, err := d.WorkDir()
	if err != nil {
		return nil, err
	}
	p.workDir = workDir
	return p, nil
}

// Register makes an endpoint available to rounds under its name,
// overriding a built-in of the same name.
func (p *Prep) Register(ep Endpoint) { p.custom[ep.Name()] = ep }

// Run executes every preparation round and, unless KeepIDs, reassigns
// citation keys afterwards.
func (p *Prep) Run(ctx context.Context) error {
	rounds := p.d.Settings().Prep.Rounds
	if len(rounds) == 0 {
		fmt.Fprintln(p.progress, "no preparation rounds configured")
		return nil
	}

	report, err := logging.NewReport(p.d.ReportPath(), types.OpPrep)
	if err != nil {
		return err
	}
	defer report.Close()
	p.report = report

	for i, round := range rounds {
		p.lastRound = i == len(rounds)-1
		if len(rounds) > 1 {
			fmt.Fprintf(p.progress, "prepare (%s)\n", round.Name)
		}
		if err := p.runRound(ctx, round); err != nil {
			return err
		}
	}

	if p.opts.KeepIDs {
		return nil
	}
	return p.assignIDs(ctx)
}

func (p *Prep) runRound(ctx context.Context, round types.PrepRound) error {
	eps, closeEndpoints, err := p.roundEndpoints(round)
	if err != nil {
		return err
	}
	defer closeEndpoints()

	items, err := p.collectRecords()
	if err != nil {
		return err
	}
	if len(items) == 0 && !p.hasResumeBuffer() {
		fmt.Fprintln(p.progress, "no records to prepare")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	prepared := make([]*types.Record, len(items))
	for i, rec := range items {
		i, rec := i, rec
		g.Go(func() error {
			if err := p.prepareRecord(gctx, eps, rec); err != nil {
				return err
			}
			prepared[i] = rec
			return p.bufferRecord(rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	all, err := p.completeResumed(prepared)
	if err != nil {
		return err
	}
	if err := p.d.SaveRecords(all...); err != nil {
		return err
	}
	p.logRoundDetails(all)

	_, err = p.d.CreateCommit(ctx, dataset.CommitOptions{
		Message: fmt.Sprintf("Prepare records (%s)", round.Name),
		Report:  p.report,
	})
	return err
}

// roundEndpoints resolves the round's endpoint names to instances.
// Endpoints holding resources report a close function for the round's end.
func (p *Prep) roundEndpoints(round types.PrepRound) ([]Endpoint, func(), error) {
	var eps []Endpoint
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	for _, name := range round.Endpoints {
		if ep, ok := p.custom[name]; ok {
			eps = append(eps, ep)
			continue
		}
		switch name {
		case EndpointFormat:
			eps = append(eps, NewFormat())
		case EndpointCuratedIndex:
			ep, err := NewCuratedIndex(p.d, round.Similarity)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			eps = append(eps, ep)
			closers = append(closers, ep)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("resolving preparation endpoint %q: not available", name)
		}
	}
	return eps, closeAll, nil
}

// collectRecords loads the records awaiting preparation. Buffered results
// of an interrupted run are folded into the resume buffer first, and the
// records it covers are skipped.
func (p *Prep) collectRecords() ([]*types.Record, error) {
	list, err := p.d.Load()
	if err != nil {
		return nil, err
	}

	var items []*types.Record
	p.pad = 0
	for _, rec := range list.Records() {
		if rec.Status != types.StatusMdImported && rec.Status != types.StatusMdNeedsManualPreparation {
			continue
		}
		if len(rec.ID)+2 > p.pad {
			p.pad = len(rec.ID) + 2
		}
		items = append(items, rec)
	}
	if p.pad > 35 {
		p.pad = 35
	}

	if err := p.promoteBuffer(); err != nil {
		return nil, err
	}

	buffered, err := p.loadResumeBuffer()
	if err != nil {
		return nil, err
	}
	if buffered.Len() > 0 {
		skipped := 0
		kept := items[:0]
		for _, rec := range items {
			if _, ok := buffered.Get(rec.ID); ok {
				skipped++
				continue
			}
			kept = append(kept, rec)
		}
		items = kept
		fmt.Fprintf(p.progress, "continuing an interrupted run: %d records already prepared\n", skipped)
	}
	return items, nil
}

// prepareRecord runs the round's endpoints over one record. Endpoint
// changes accumulate on a working copy and reach the stored record only
// when it lands in a final preparation state, so half-prepared metadata
// never overwrites the imported version.
func (p *Prep) prepareRecord(ctx context.Context, eps []Endpoint, rec *types.Record) error {
	if !statusToPrepare(rec.Status) {
		return nil
	}
	prior := rec.Status
	working := rec.Clone()

	for _, ep := range eps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := ep.Prepare(ctx, working); err != nil {
			return fmt.Errorf("preparing %s with %s: %w", rec.ID, ep.Name(), err)
		}
		if ep.AlwaysApply() || saveCondition(working) {
			*rec = *working.Clone()
		}
		if err := checkPrepared(rec, ep.Name()); err != nil {
			return err
		}
		if working.Status == types.StatusRevPrescreenExcluded {
			*rec = *working.Clone()
			break
		}
	}

	p.finishRecord(rec, working, prior)
	return nil
}

// finishRecord settles the record after all endpoints ran: the last round
// adopts the working copy and drops loader artifacts, then records with
// complete masterdata advance to md_prepared while incomplete ones are
// parked for a manual pass.
func (p *Prep) finishRecord(rec, working *types.Record, prior types.Status) {
	if p.lastRound && statusToPrepare(rec.Status) {
		*rec = *working.Clone()
		p.dropLoaderArtifacts(rec)
	}
	qualityGate(rec)
	p.printOutcome(rec, prior)
}

func (p *Prep) dropLoaderArtifacts(rec *types.Record) {
	for _, key := range rec.FieldKeys() {
		if !p.keepField(key) || rec.Get(key) == "" || rec.Get(key) == types.NA {
			rec.Remove(key)
		}
	}
}

func (p *Prep) keepField(key string) bool {
	if fieldsToKeep[key] {
		return true
	}
	for _, extra := range p.d.Settings().Prep.FieldsToKeep {
		if key == extra {
			return true
		}
	}
	return false
}

func statusToPrepare(s types.Status) bool {
	switch s {
	case types.StatusMdImported, types.StatusMdNeedsManualPreparation, types.StatusMdPrepared:
		return true
	}
	return false
}

// saveCondition reports whether the working copy reached a state whose
// changes belong in the store.
func saveCondition(rec *types.Record) bool {
	return rec.Status == types.StatusMdPrepared || rec.Status == types.StatusRevPrescreenExcluded
}

// checkPrepared verifies an endpoint left the record in a state the
// preparation lifecycle allows.
func checkPrepared(rec *types.Record, endpoint string) error {
	switch rec.Status {
	case types.StatusMdImported, types.StatusMdPrepared,
		types.StatusMdNeedsManualPreparation, types.StatusRevPrescreenExcluded:
	default:
		return fmt.Errorf("preparing %s with %s: invalid status %q", rec.ID, endpoint, rec.Status)
	}
	if rec.ID == "" || rec.Type == "" {
		return fmt.Errorf("preparing record with %s: missing identifier or entry type", endpoint)
	}
	return nil
}

// qualityGate advances records whose masterdata is complete and parks the
// rest for manual preparation, noting each missing field in its
// provenance. Curated records passed review upstream and advance
// unconditionally.
func qualityGate(rec *types.Record) {
	if !statusToPrepare(rec.Status) {
		return
	}
	if rec.MasterdataCurated() {
		rec.Status = types.StatusMdPrepared
		return
	}

	missing := missingMasterdata(rec)
	if len(missing) == 0 {
		rec.Status = types.StatusMdPrepared
		return
	}

	rec.Status = types.StatusMdNeedsManualPreparation
	if rec.MdProvenance == nil {
		rec.MdProvenance = types.ProvenanceMap{}
	}
	for _, field := range missing {
		entry := rec.MdProvenance[field]
		if entry.Source == "" {
			if len(rec.Origins) > 0 {
				entry.Source = rec.Origins[0]
			} else {
				entry.Source = types.NA
			}
		}
		if entry.Note == "" {
			entry.Note = noteMissing
		} else if !strings.Contains(entry.Note, noteMissing) {
			entry.Note += "," + noteMissing
		}
		rec.MdProvenance[field] = entry
	}
}

// missingMasterdata returns the identifying fields a complete record of
// this entry type needs but rec lacks.
func missingMasterdata(rec *types.Record) []string {
	required := []string{types.FieldAuthor, types.FieldTitle, types.FieldYear}
	switch rec.Type {
	case "article":
		required = append(required, types.FieldJournal)
	case "inproceedings":
		required = append(required, types.FieldBooktitle)
	}

	var missing []string
	for _, field := range required {
		if v := rec.Get(field); v == "" || v == types.ValueUnknown {
			missing = append(missing, field)
		}
	}
	return missing
}

func (p *Prep) printOutcome(rec *types.Record, prior types.Status) {
	suffix := ""
	if rec.Status == types.StatusMdPrepared && rec.MasterdataCurated() {
		suffix = " (curated)"
	}

	p.printMu.Lock()
	fmt.Fprintf(p.progress, " %-*s %s -> %s%s\n", p.pad, rec.ID, prior, rec.Status, suffix)
	p.printMu.Unlock()

	if p.report != nil {
		p.report.Infof("%s: %s -> %s", rec.ID, prior, rec.Status)
	}
}

func (p *Prep) logRoundDetails(recs []*types.Record) {
	var curated, prepared, manual, excluded int
	for _, rec := range recs {
		if rec.MasterdataCurated() {
			curated++
		}
		switch rec.Status {
		case types.StatusMdPrepared:
			prepared++
		case types.StatusMdNeedsManualPreparation:
			manual++
		case types.StatusRevPrescreenExcluded:
			excluded++
		}
	}

	summary := fmt.Sprintf("prepared %d (%d curated), needs manual preparation %d, prescreen excluded %d",
		prepared, curated, manual, excluded)
	fmt.Fprintln(p.progress, summary)
	if p.report != nil {
		p.report.Infof("%s", summary)
	}
}

// bufferRecord appends the finished record to the append buffer. A single
// mutex serializes the appends; workers never write the shared store.
func (p *Prep) bufferRecord(rec *types.Record) error {
	p.tempMu.Lock()
	defer p.tempMu.Unlock()

	f, err := os.OpenFile(filepath.Join(p.workDir, currentTempFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening preparation buffer: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(bib.EncodeRecord(rec), '\n')); err != nil {
		return fmt.Errorf("buffering %s: %w", rec.ID, err)
	}
	return nil
}

// promoteBuffer folds the append buffer of an interrupted run into the
// resume buffer. Workers append one record at a time, so after a crash the
// append buffer holds exactly the records the next run must not redo.
func (p *Prep) promoteBuffer() error {
	cur := filepath.Join(p.workDir, currentTempFile)
	f, err := os.Open(cur)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening preparation buffer: %w", err)
	}
	curList, err := bib.Parse(f, bib.ParseOptions{})
	f.Close()
	if err != nil {
		return fmt.Errorf("parsing preparation buffer: %w", err)
	}

	combined, err := p.loadResumeBuffer()
	if err != nil {
		return err
	}
	for _, rec := range curList.Records() {
		if existing, ok := combined.Get(rec.ID); ok {
			*existing = *rec
		} else if err := combined.Add(rec); err != nil {
			return fmt.Errorf("merging preparation buffers: %w", err)
		}
	}

	w, err := os.Create(filepath.Join(p.workDir, tempFile))
	if err != nil {
		return fmt.Errorf("writing resume buffer: %w", err)
	}
	if err := bib.Encode(w, combined); err != nil {
		w.Close()
		return fmt.Errorf("writing resume buffer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing resume buffer: %w", err)
	}
	return os.Remove(cur)
}

// completeResumed folds records prepared by interrupted runs into the
// round's results and clears both buffers.
func (p *Prep) completeResumed(prepared []*types.Record) ([]*types.Record, error) {
	all := make([]*types.Record, 0, len(prepared))
	seen := map[string]bool{}
	for _, rec := range prepared {
		if rec == nil {
			continue
		}
		all = append(all, rec)
		seen[rec.ID] = true
	}

	buffered, err := p.loadResumeBuffer()
	if err != nil {
		return nil, err
	}
	for _, rec := range buffered.Records() {
		if !seen[rec.ID] {
			all = append(all, rec)
		}
	}

	for _, name := range []string{tempFile, currentTempFile} {
		if err := os.Remove(filepath.Join(p.workDir, name)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("clearing preparation buffer: %w", err)
		}
	}
	return all, nil
}

func (p *Prep) loadResumeBuffer() (*bib.RecordList, error) {
	f, err := os.Open(filepath.Join(p.workDir, tempFile))
	if os.IsNotExist(err) {
		return bib.NewRecordList(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening resume buffer: %w", err)
	}
	defer f.Close()

	list, err := bib.Parse(f, bib.ParseOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing resume buffer: %w", err)
	}
	return list, nil
}

func (p *Prep) hasResumeBuffer() bool {
	_, err := os.Stat(filepath.Join(p.workDir, tempFile))
	return err == nil
}

// assignIDs regenerates citation keys once preparation settled the
// metadata, consulting the curated index for curated keys.
func (p *Prep) assignIDs(ctx context.Context) error {
	var lookup dataset.IDLookup
	store, err := index.NewStore(p.d.Config().Index)
	if err != nil {
		fmt.Fprintf(p.progress, "warning: curated index unavailable: %v\n", err)
	} else {
		defer store.Close()
		lookup = store
	}

	renames, err := p.d.SetIDs(ctx, nil, lookup, nil)
	if err != nil {
		return err
	}
	for _, rn := range renames {
		if p.report != nil {
			p.report.Infof("citation key %s -> %s", rn.Old, rn.New)
		}
	}

	_, err = p.d.CreateCommit(ctx, dataset.CommitOptions{Message: "Set IDs", Report: p.report})
	return err
}
