// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"context"

	"go.uber.org/zap"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/identify"
	"github.com/pdiddy/review-engine/pkg/types"
)

// IDLookup resolves the citation key a curated source assigned to a
// record. The local index implements it; a nil lookup falls back to
// pattern-generated keys throughout.
type IDLookup interface {
	// CitationKey returns the curated key for rec and whether one exists.
	CitationKey(rec *types.Record) (string, bool)
}

// RenamedID documents one citation-key change.
type RenamedID struct {
	Old string
	New string
}

// SetIDs assigns citation keys across the store and saves the result.
// Keys come from the curated lookup when available and from the project's
// id pattern otherwise, disambiguated against every key in the store.
//
// Only records in md_imported or md_prepared are renamed: identifiers of
// processed records have propagated into screening and data artifacts and
// must not change silently. A non-nil selected set overrides that rule and
// renames exactly the selected records. Curated records keep their keys
// unconditionally.
func (d *Dataset) SetIDs(ctx context.Context, list *bib.RecordList, lookup IDLookup, selected map[string]bool) ([]RenamedID, error) {
	if list == nil {
		loaded, err := d.Load()
		if err != nil {
			return nil, err
		}
		list = loaded
	}

	ids := make([]string, 0, list.Len())
	for _, rec := range list.Records() {
		ids = append(ids, rec.ID)
	}

	var renames []RenamedID
	for _, rec := range append([]*types.Record(nil), list.Records()...) {
		if rec.MasterdataCurated() {
			continue
		}
		if selected != nil {
			if !selected[rec.ID] {
				continue
			}
		} else if rec.Status != types.StatusMdImported && rec.Status != types.StatusMdPrepared {
			continue
		}

		oldID := rec.ID
		taken := withoutOnce(ids, oldID)

		var newID string
		if key, ok := curatedKey(lookup, rec); ok {
			newID = identify.Disambiguate(key, taken)
		} else {
			newID = identify.GenerateID(rec, d.settings.Project.IDPattern, taken)
		}

		if newID == oldID {
			continue
		}
		if err := list.Rename(oldID, newID); err != nil {
			return nil, err
		}
		ids = append(withoutOnce(ids, oldID), newID)
		renames = append(renames, RenamedID{Old: oldID, New: newID})
		zap.L().Debug("citation key assigned",
			zap.String("old", oldID), zap.String("new", newID))
	}

	if err := d.Save(list); err != nil {
		return nil, err
	}
	if d.git.IsRepository(ctx) {
		if err := d.AddRecordChanges(ctx); err != nil {
			return nil, err
		}
	}
	return renames, nil
}

func curatedKey(lookup IDLookup, rec *types.Record) (string, bool) {
	if lookup == nil {
		return "", false
	}
	key, ok := lookup.CitationKey(rec)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// withoutOnce returns ids with a single occurrence of id removed, so a
// record may keep its own key while duplicates of it still collide.
func withoutOnce(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	removed := false
	for _, x := range ids {
		if !removed && x == id {
			removed = true
			continue
		}
		out = append(out, x)
	}
	return out
}
