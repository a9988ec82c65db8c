// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/status"
	"github.com/pdiddy/review-engine/pkg/types"
)

// History iterates over the committed versions of the records file, newest
// first. Content is fetched lazily per revision; a fresh iterator restarts
// the walk.
type History struct {
	ctx  context.Context
	d    *Dataset
	revs []string
	pos  int

	revision string
	content  []byte
	err      error
}

// History returns an iterator over the committed versions of the records
// file. It is empty when the file has never been committed.
func (d *Dataset) History(ctx context.Context) (*History, error) {
	revs, err := d.git.Revisions(ctx, d.RecordsRel())
	if err != nil {
		return nil, fmt.Errorf("listing records revisions: %w", err)
	}
	return &History{ctx: ctx, d: d, revs: revs}, nil
}

// Next advances to the next committed version. It returns false when the
// walk is exhausted or failed; Err distinguishes the two.
func (h *History) Next() bool {
	if h.err != nil || h.pos >= len(h.revs) {
		return false
	}
	rev := h.revs[h.pos]
	content, err := h.d.git.Show(h.ctx, rev, h.d.RecordsRel())
	if err != nil {
		h.err = fmt.Errorf("reading records at %s: %w", rev, err)
		return false
	}
	h.pos++
	h.revision = rev
	h.content = content
	return true
}

// Revision returns the commit SHA of the current version.
func (h *History) Revision() string { return h.revision }

// Content returns the raw records file bytes of the current version.
func (h *History) Content() []byte { return h.content }

// Err returns the first error encountered during the walk.
func (h *History) Err() error { return h.err }

// RecordsAt parses the record store as of the given revision.
func (d *Dataset) RecordsAt(ctx context.Context, revision string) (*bib.RecordList, error) {
	content, err := d.git.Show(ctx, revision, d.RecordsRel())
	if err != nil {
		return nil, fmt.Errorf("reading records at %s: %w", revision, err)
	}
	list, err := bib.Parse(bytes.NewReader(content), bib.ParseOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing records at %s: %w", revision, err)
	}
	return list, nil
}

// HeadersAt scans the record headers as of the given revision.
func (d *Dataset) HeadersAt(ctx context.Context, revision string) ([]bib.HeaderItem, error) {
	content, err := d.git.Show(ctx, revision, d.RecordsRel())
	if err != nil {
		return nil, fmt.Errorf("reading records at %s: %w", revision, err)
	}
	items, err := bib.ScanHeaders(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("scanning records at %s: %w", revision, err)
	}
	return items, nil
}

// RecordAtRevision returns the record identified by key at the given
// revision. The key is tried as a record identifier first and as an origin
// token second, since identifiers may legitimately change before a record
// is processed.
func (d *Dataset) RecordAtRevision(ctx context.Context, revision, key string) (*types.Record, error) {
	list, err := d.RecordsAt(ctx, revision)
	if err != nil {
		return nil, err
	}
	if rec, ok := list.Get(key); ok {
		return rec, nil
	}
	if rec, ok := list.ByOrigin(key); ok {
		return rec, nil
	}
	return nil, fmt.Errorf("record %s not found at %s", key, revision)
}

// RetrievePrior builds the prior origin view from the most recent
// committed version of the records file. With no committed version the
// prior view is empty and every record counts as newly loaded.
func (d *Dataset) RetrievePrior(ctx context.Context) (status.Prior, error) {
	revs, err := d.git.Revisions(ctx, d.RecordsRel())
	if err != nil {
		return status.Prior{}, fmt.Errorf("listing records revisions: %w", err)
	}
	if len(revs) == 0 {
		return status.PriorFromHeaders(nil), nil
	}
	items, err := d.HeadersAt(ctx, revs[0])
	if err != nil {
		return status.Prior{}, err
	}
	return status.PriorFromHeaders(items), nil
}

// CommittedOriginStates returns the origin→status map of the most recent
// committed version, nil when the records file was never committed.
func (d *Dataset) CommittedOriginStates(ctx context.Context) (map[string]types.Status, error) {
	prior, err := d.RetrievePrior(ctx)
	if err != nil {
		return nil, err
	}
	if len(prior.Statuses) == 0 {
		return nil, nil
	}
	return prior.Statuses, nil
}

// EverCurated reports whether any committed version of the record carrying
// the given origin token had curated masterdata provenance.
func (d *Dataset) EverCurated(ctx context.Context, origin string) (bool, error) {
	history, err := d.History(ctx)
	if err != nil {
		return false, err
	}
	for history.Next() {
		list, err := bib.Parse(bytes.NewReader(history.Content()), bib.ParseOptions{})
		if err != nil {
			// Unparseable historic versions cannot vouch for curation.
			continue
		}
		if rec, ok := list.ByOrigin(origin); ok && rec.MasterdataCurated() {
			return true, nil
		}
	}
	return false, history.Err()
}
