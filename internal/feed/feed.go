// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package feed maintains per-source search feed files. A feed keeps every
// record its source ever returned under a stable feed-local ID, so repeated
// retrieval runs can tell additions from changes and push field updates into
// the main record store without disturbing review decisions.
package feed

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/dataset"
	"github.com/pdiddy/review-engine/internal/match"
	"github.com/pdiddy/review-engine/pkg/types"
)

// curatedFeedName is the feed file of a curated metadata source. Only
// updates arriving through it may touch curated records in the main store.
const curatedFeedName = "md_curated.bib"

// timeVariantFields drift between retrievals of the same paper. In
// update-only mode the previous feed value wins over the retrieved one.
var timeVariantFields = map[string]bool{"cited_by": true}

// restrictionsSource marks a masterdata field as governed by curation
// restrictions; IGNORE notes under it suppress re-adding the field.
const restrictionsSource = "colrev_curation.masterdata_restrictions"

// NotIdentifiableError reports a retrieved record that lacks the source's
// identifier field and therefore cannot receive a stable feed ID.
type NotIdentifiableError struct {
	Field string
}

func (e *NotIdentifiableError) Error() string {
	return fmt.Sprintf("record cannot be identified in feed: missing %s", e.Field)
}

// Options configure a feed for one retrieval run.
type Options struct {
	// SourceIdentifier names the field whose value identifies a record
	// within this source, e.g. doi or dblp_key.
	SourceIdentifier string

	// UpdateOnly keeps time-variant field values from the previous feed
	// version instead of taking the freshly retrieved ones.
	UpdateOnly bool

	// SkipTimeVariantFields leaves time-variant fields in the main store
	// untouched when pushing updates.
	SkipTimeVariantFields bool

	// PrepMode runs the feed for lookups during preparation: saving
	// writes the feed file but never touches the main record store.
	PrepMode bool

	// Progress receives per-record notices. Defaults to io.Discard.
	Progress io.Writer
}

// Feed tracks one source's retrieved records across runs.
type Feed struct {
	d        *dataset.Dataset
	source   types.SearchSource
	opts     Options
	progress io.Writer

	feedRecords *bib.RecordList
	records     *bib.RecordList

	// availableIDs maps a source identifier value to the feed ID it was
	// assigned when first seen.
	availableIDs map[string]string
	nextID       int

	added   int
	changed int
}

// New opens the feed for the given source, loading the feed file and,
// outside prep mode, the main record store.
func New(d *dataset.Dataset, source types.SearchSource, opts Options) (*Feed, error) {
	if opts.SourceIdentifier == "" {
		return nil, fmt.Errorf("opening feed %s: no source identifier", source.Filename)
	}
	f := &Feed{
		d:            d,
		source:       source,
		opts:         opts,
		progress:     opts.Progress,
		feedRecords:  bib.NewRecordList(),
		availableIDs: map[string]string{},
		nextID:       1,
	}
	if f.progress == nil {
		f.progress = io.Discard
	}
	if err := f.loadFeedFile(); err != nil {
		return nil, err
	}
	if !opts.PrepMode {
		records, err := d.Load()
		if err != nil {
			return nil, err
		}
		f.records = records
	}
	return f, nil
}

// Source returns the search source this feed belongs to.
func (f *Feed) Source() types.SearchSource { return f.source }

// Added returns the number of records added since the last save.
func (f *Feed) Added() int { return f.added }

// Changed returns the number of main records changed since the last save.
func (f *Feed) Changed() int { return f.changed }

// Records returns the feed's records in file order.
func (f *Feed) Records() []*types.Record { return f.feedRecords.Records() }

func (f *Feed) path() string {
	return filepath.Join(f.d.Root(), filepath.FromSlash(f.source.Filename))
}

func (f *Feed) loadFeedFile() error {
	fh, err := os.Open(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening feed file %s: %w", f.source.Filename, err)
	}
	defer fh.Close()

	list, err := bib.Parse(fh, bib.ParseOptions{})
	if err != nil {
		return fmt.Errorf("parsing feed file %s: %w", f.source.Filename, err)
	}
	f.feedRecords = list

	f.nextID = 2
	for _, rec := range list.Records() {
		if v := rec.Get(f.opts.SourceIdentifier); v != "" {
			f.availableIDs[v] = rec.ID
		}
		if n, err := strconv.Atoi(rec.ID); err == nil && n+1 > f.nextID {
			f.nextID = n + 1
		}
	}
	return nil
}

// SetID assigns the record its feed ID: the ID under which this source
// returned it before, or the next free zero-padded number.
func (f *Feed) SetID(rec *types.Record) error {
	value := rec.Get(f.opts.SourceIdentifier)
	if value == "" {
		return &NotIdentifiableError{Field: f.opts.SourceIdentifier}
	}
	if id, ok := f.availableIDs[value]; ok {
		rec.ID = id
		return nil
	}
	rec.ID = fmt.Sprintf("%06d", f.nextID)
	return nil
}

// PrevFeedRecord returns a copy of the feed's version of the record from
// the previous run, or nil when the source has not returned it before.
func (f *Feed) PrevFeedRecord(rec *types.Record) (*types.Record, error) {
	clone := rec.Clone()
	if err := f.SetID(clone); err != nil {
		return nil, err
	}
	if prev, ok := f.feedRecords.Get(clone.ID); ok {
		return prev.Clone(), nil
	}
	return nil, nil
}

// AddUpdate stores one retrieved record: it is added to the feed or
// replaces its previous feed version, and outside prep mode any field
// changes are pushed into the main store. The record's ID is set to its
// feed ID. Reports whether the record was new to the feed.
func (f *Feed) AddUpdate(rec *types.Record) (bool, error) {
	if err := f.SetID(rec); err != nil {
		return false, err
	}
	var prev *types.Record
	if p, ok := f.feedRecords.Get(rec.ID); ok {
		prev = p.Clone()
	}
	added, err := f.addToFeed(rec, prev)
	if err != nil || f.opts.PrepMode {
		return added, err
	}
	f.updateMain(rec.Clone(), prev)
	return added, nil
}

// addToFeed stores the record under its feed ID, stripped of the
// engine-managed fields. A published forthcoming paper updates the year of
// the previous feed version so the change detector does not flag it.
func (f *Feed) addToFeed(rec, prev *types.Record) (bool, error) {
	value := rec.Get(f.opts.SourceIdentifier)
	added := false
	if _, ok := f.availableIDs[value]; !ok {
		added = true
		f.nextID++
		f.added++
	}
	f.availableIDs[value] = rec.ID

	if forthcomingPublished(rec, prev) {
		fmt.Fprintf(f.progress, "update published forthcoming paper: %s\n", rec.ID)
		prev.Set(types.FieldYear, rec.Get(types.FieldYear))
	}

	feedRec := rec.Clone()
	feedRec.Status = ""
	feedRec.Origins = nil
	feedRec.MdProvenance = nil
	feedRec.DataProvenance = nil

	if f.opts.UpdateOnly && prev != nil {
		for key := range timeVariantFields {
			if prev.Has(key) {
				feedRec.Set(key, prev.Get(key))
			} else {
				feedRec.Remove(key)
			}
		}
	}

	if existing, ok := f.feedRecords.Get(feedRec.ID); ok {
		*existing = *feedRec
	} else if err := f.feedRecords.Add(feedRec); err != nil {
		return added, fmt.Errorf("storing feed record %s: %w", feedRec.ID, err)
	}
	return added, nil
}

// updateMain pushes the retrieved record's changes into the record of the
// main store carrying the matching origin, if any.
func (f *Feed) updateMain(rec, prev *types.Record) bool {
	origin := f.source.OriginPrefix() + "/" + rec.ID
	rec.Origins = []string{origin}
	rec.AddProvenanceAll(origin)

	main, ok := f.records.ByOrigin(origin)
	if !ok {
		return false
	}

	changed := false
	if rec.Retracted() {
		fmt.Fprintf(f.progress, "found paper retract: %s\n", main.ID)
		main.PrescreenExclude(types.ValueRetracted)
		main.Remove("warning")
		changed = true
	}

	if main.MasterdataCurated() && f.source.OriginPrefix() != curatedFeedName {
		return false
	}

	similarity := match.Similarity(rec, emptyWhenNil(prev))
	f.updateFields(rec, main, prev, origin)

	if haveChanged(main, prev) || haveChanged(rec, prev) {
		changed = true
		f.changed++
		switch {
		case forthcomingPublished(rec, prev):
			// notified when the feed record was updated
		case similarity > 0.98:
			fmt.Fprintf(f.progress, " check/update %s\n", origin)
		default:
			fmt.Fprintf(f.progress, " check/update %s leads to substantial changes (%.4f) in %s\n",
				origin, similarity, main.ID)
		}
	}
	return changed
}

// updateFields copies retrieved field values into the main record. A value
// the reviewers may have edited is only replaced when the main store still
// holds what this feed delivered last time; the curated metadata feed
// overrides unconditionally.
func (f *Feed) updateFields(rec, main, prev *types.Record, origin string) {
	curatedFeed := f.source.OriginPrefix() == curatedFeedName

	if rec.Type != "" && rec.Type != main.Type {
		if curatedFeed || (prev != nil && prev.Type == main.Type) {
			main.Type = rec.Type
		}
	}

	for _, key := range rec.FieldKeys() {
		value := rec.Get(key)
		if f.opts.SkipTimeVariantFields && timeVariantFields[key] {
			continue
		}
		if key == types.FieldCurationID {
			continue
		}

		if !main.Has(key) {
			if missingIgnoredField(main, key) {
				continue
			}
			main.UpdateField(key, value, origin, true)
			continue
		}

		if !curatedFeed {
			if prev == nil || !prev.Has(key) || prev.Get(key) != main.Get(key) {
				continue
			}
		}
		if strings.ReplaceAll(value, " - ", ": ") == strings.ReplaceAll(main.Get(key), " - ", ": ") {
			continue
		}
		if key == types.FieldURL && strings.Contains(value, "dblp.org") {
			continue
		}
		main.UpdateField(key, value, origin, true)
	}
}

// missingIgnoredField reports whether curation restrictions deliberately
// leave the field unset, so updates must not re-add it.
func missingIgnoredField(main *types.Record, key string) bool {
	p, ok := main.MdProvenance[key]
	return ok && p.Source == restrictionsSource && strings.Contains(p.Note, "IGNORE:missing")
}

// haveChanged reports whether any field of b differs in a. Extra fields of
// a are fine; feed-internal bookkeeping fields are skipped.
func haveChanged(a, b *types.Record) bool {
	if b == nil {
		return false
	}
	if b.Type != "" && a.Type != b.Type {
		return true
	}
	for _, key := range b.FieldKeys() {
		if key == types.FieldCurationID {
			continue
		}
		value := b.Get(key)
		if value == "" {
			continue
		}
		if !a.Has(key) || a.Get(key) != value {
			return true
		}
	}
	return false
}

// forthcomingPublished reports whether an article previously announced as
// forthcoming has now been published: its year became a real year, or its
// volume and number turned from unknown to known.
func forthcomingPublished(rec, prev *types.Record) bool {
	if prev == nil || rec.Type != "article" {
		return false
	}
	if !rec.Has(types.FieldYear) || !prev.Has(types.FieldYear) {
		return false
	}
	if prev.Get(types.FieldYear) == "forthcoming" && rec.Get(types.FieldYear) != "forthcoming" {
		return true
	}
	return rec.GetDefault(types.FieldVolume, types.ValueUnknown) != types.ValueUnknown &&
		prev.GetDefault(types.FieldVolume, types.ValueUnknown) == types.ValueUnknown &&
		rec.GetDefault(types.FieldNumber, types.ValueUnknown) != types.ValueUnknown &&
		prev.GetDefault(types.FieldNumber, types.ValueUnknown) == types.ValueUnknown
}

func emptyWhenNil(rec *types.Record) *types.Record {
	if rec == nil {
		return &types.Record{}
	}
	return rec
}

// Save writes the feed file, registers the source in the project settings
// when missing, stages the feed file, and outside prep mode saves the main
// record store. The added and changed counters reset afterwards.
func (f *Feed) Save(ctx context.Context, skipPrint bool) error {
	if !skipPrint && !f.opts.PrepMode {
		f.printPostRunInfos()
	}

	if f.feedRecords.Len() > 0 {
		if err := os.MkdirAll(filepath.Dir(f.path()), 0o755); err != nil {
			return fmt.Errorf("creating search directory: %w", err)
		}
		fh, err := os.Create(f.path())
		if err != nil {
			return fmt.Errorf("creating feed file %s: %w", f.source.Filename, err)
		}
		if err := bib.Encode(fh, f.feedRecords); err != nil {
			fh.Close()
			return fmt.Errorf("encoding feed file %s: %w", f.source.Filename, err)
		}
		if err := fh.Close(); err != nil {
			return fmt.Errorf("closing feed file %s: %w", f.source.Filename, err)
		}

		if err := f.registerSource(); err != nil {
			return err
		}
		if err := f.d.AddChanges(ctx, f.source.Filename); err != nil {
			return fmt.Errorf("staging feed file %s: %w", f.source.Filename, err)
		}
	}

	if !f.opts.PrepMode && f.records != nil {
		if err := f.d.Save(f.records); err != nil {
			return err
		}
	}
	f.added = 0
	f.changed = 0
	return nil
}

func (f *Feed) registerSource() error {
	settings := f.d.Settings()
	for _, s := range settings.Sources {
		if s.OriginPrefix() == f.source.OriginPrefix() {
			return nil
		}
	}
	settings.Sources = append(settings.Sources, f.source)
	if err := settings.SaveSettings(filepath.Join(f.d.Root(), types.SettingsFile)); err != nil {
		return fmt.Errorf("registering source %s: %w", f.source.Filename, err)
	}
	return nil
}

func (f *Feed) printPostRunInfos() {
	if f.added > 0 {
		fmt.Fprintf(f.progress, "retrieved %d records\n", f.added)
	} else {
		fmt.Fprintln(f.progress, "no additional records retrieved")
	}
	if f.changed > 0 {
		fmt.Fprintf(f.progress, "updated %d records\n", f.changed)
	} else if f.records != nil && f.records.Len() > 0 {
		fmt.Fprintf(f.progress, "records (%s) up-to-date\n", f.d.RecordsRel())
	}
}
