// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prep

import (
	"context"
	"errors"
	"sync"

	"github.com/pdiddy/review-engine/internal/dataset"
	"github.com/pdiddy/review-engine/internal/feed"
	"github.com/pdiddy/review-engine/internal/identify"
	"github.com/pdiddy/review-engine/internal/index"
	"github.com/pdiddy/review-engine/pkg/types"
)

// curatedFeedFile is the feed under which curated retrievals are tracked.
const curatedFeedFile = "data/search/md_curated.bib"

// CuratedIndex prepares records against the local index of curated
// repositories. A record found there adopts the curated masterdata
// wholesale and advances to md_prepared; records the index does not know
// pass through unchanged. Retrievals are tracked in the md_curated.bib
// feed so later index updates can reach the record.
type CuratedIndex struct {
	d         *dataset.Dataset
	store     *index.Store
	threshold float64
	source    types.SearchSource

	// mu serializes feed access; preparation workers share one endpoint.
	mu sync.Mutex
}

// NewCuratedIndex opens the curated-index endpoint. similarity bounds
// table-of-contents matches; the round's retrieval similarity goes here.
func NewCuratedIndex(d *dataset.Dataset, similarity float64) (*CuratedIndex, error) {
	store, err := index.NewStore(d.Config().Index)
	if err != nil {
		return nil, err
	}

	e := &CuratedIndex{d: d, store: store, threshold: similarity}
	for _, src := range d.Settings().Sources {
		if src.Filename == curatedFeedFile {
			e.source = src
			break
		}
	}
	if e.source.Filename == "" {
		e.source = types.SearchSource{
			Endpoint:         EndpointCuratedIndex,
			Filename:         curatedFeedFile,
			SearchType:       types.SearchTypeMD,
			SearchParameters: map[string]any{},
		}
	}
	return e, nil
}

func (e *CuratedIndex) Name() string { return EndpointCuratedIndex }

func (e *CuratedIndex) AlwaysApply() bool { return false }

// Close releases the index database.
func (e *CuratedIndex) Close() error { return e.store.Close() }

func (e *CuratedIndex) Prepare(ctx context.Context, rec *types.Record) error {
	retrieved, err := e.retrieve(ctx, rec)
	if err != nil {
		return err
	}
	if retrieved == nil || !retrieved.MasterdataCurated() {
		return nil
	}

	source := retrieved.MdProvenance.CuratedSource()
	if source == "" {
		source = "LOCAL_INDEX"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := feed.New(e.d, e.source, feed.Options{
		SourceIdentifier: types.FieldCurationID,
		PrepMode:         true,
	})
	if err != nil {
		return err
	}
	if _, err := f.AddUpdate(retrieved); err != nil {
		return err
	}
	retrieved.Remove(types.FieldCurationID)

	mergeCurated(rec, retrieved, source)
	rec.Status = types.StatusMdPrepared
	if rec.Get(types.FieldPrescreenExclusion) == types.ValueRetracted {
		rec.PrescreenExclude(types.ValueRetracted)
	}

	return f.Save(ctx, true)
}

// retrieve looks the record up in the index, falling back to a
// table-of-contents match and then to a match across a container's other
// issues. A miss at the end of the chain returns nil with no error.
func (e *CuratedIndex) retrieve(ctx context.Context, rec *types.Record) (*types.Record, error) {
	retrieved, err := e.store.Retrieve(ctx, rec, false)
	if err == nil {
		return retrieved, nil
	}

	var notInIndex *index.RecordNotInIndexError
	var notEnoughData *identify.NotEnoughDataToIdentifyError
	if !errors.As(err, &notInIndex) && !errors.As(err, &notEnoughData) {
		return nil, err
	}

	retrieved, err = e.store.RetrieveFromTOC(ctx, rec, e.threshold, false)
	if err == nil {
		return retrieved, nil
	}
	var notInTOC *index.RecordNotInTOCError
	var notIdentifiable *index.NotTOCIdentifiableError
	if errors.As(err, &notInTOC) || errors.As(err, &notIdentifiable) {
		return nil, nil
	}
	if !errors.As(err, &notInIndex) {
		return nil, err
	}

	retrieved, err = e.store.RetrieveFromTOC(ctx, rec, e.threshold, true)
	if err == nil {
		return retrieved, nil
	}
	if errors.As(err, &notInTOC) || errors.As(err, &notIdentifiable) || errors.As(err, &notInIndex) {
		return nil, nil
	}
	return nil, err
}

// mergeCurated adopts the curated masterdata onto rec. The curated copy
// wins every identifying field; volume and number the curated record does
// not carry are dropped. Identity stays with rec: its citation key and
// origins are untouched, and the provenance collapses to a single CURATED
// entry naming the curated repository.
func mergeCurated(rec, retrieved *types.Record, source string) {
	rec.MdProvenance = types.ProvenanceMap{types.Curated: {Source: source}}

	for _, key := range retrieved.FieldKeys() {
		value := retrieved.Get(key)
		if types.IsIdentifyingField(key) {
			rec.Set(key, value)
			continue
		}
		rec.UpdateField(key, value, source, true)
	}

	for _, key := range []string{types.FieldVolume, types.FieldNumber} {
		if rec.Get(key) != "" && retrieved.Get(key) == "" {
			rec.Remove(key)
		}
	}

	for _, id := range retrieved.ColrevIDs {
		rec.AddColrevID(id)
	}
}
