// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/identify"
	"github.com/pdiddy/review-engine/internal/match"
	"github.com/pdiddy/review-engine/pkg/types"
)

// RecordNotInIndexError reports a record absent from the local index.
type RecordNotInIndexError struct {
	ID string
}

func (e *RecordNotInIndexError) Error() string {
	return fmt.Sprintf("record %s is not in the local index", e.ID)
}

// RecordNotInTOCError reports that a table of contents holds no entry
// similar enough to the record.
type RecordNotInTOCError struct {
	ID     string
	TocKey string
}

func (e *RecordNotInTOCError) Error() string {
	return fmt.Sprintf("record %s not found in table of contents %s", e.ID, e.TocKey)
}

// NotTOCIdentifiableError reports a record whose entry type has no table
// of contents.
type NotTOCIdentifiableError struct {
	Reason string
}

func (e *NotTOCIdentifiableError) Error() string {
	return fmt.Sprintf("record has no table of contents: %s", e.Reason)
}

// TocKey returns the key grouping a record with the other entries of its
// journal issue or proceedings volume.
func TocKey(rec *types.Record) (string, error) {
	switch strings.ToLower(rec.Type) {
	case "article":
		journal := rec.Get(types.FieldJournal)
		if journal == "" {
			return "", &NotTOCIdentifiableError{Reason: "missing journal"}
		}
		return normalizeContainer(journal) + "|" + tocPart(rec, types.FieldVolume) + "|" + tocPart(rec, types.FieldNumber), nil
	case "inproceedings":
		booktitle := rec.Get(types.FieldBooktitle)
		if booktitle == "" {
			return "", &NotTOCIdentifiableError{Reason: "missing booktitle"}
		}
		return normalizeContainer(booktitle) + "|" + rec.Get(types.FieldYear), nil
	}
	return "", &NotTOCIdentifiableError{Reason: "entry type " + rec.Type}
}

func tocPart(rec *types.Record, field string) string {
	v := rec.Get(field)
	if v == "" || v == types.ValueUnknown {
		return "-"
	}
	return v
}

func normalizeContainer(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", "-"))
}

type lookupKey struct {
	column string
	value  string
}

// lookupKeys orders the identifiers to try: content fingerprints first,
// then the global identifiers.
func lookupKeys(rec *types.Record) []lookupKey {
	var keys []lookupKey
	if fingerprint, err := identify.CreateFingerprint(rec, true); err == nil {
		keys = append(keys, lookupKey{"colrev_id", fingerprint})
	}
	for _, id := range rec.ColrevIDs {
		keys = append(keys, lookupKey{"colrev_id", id})
	}
	if v := rec.Get(types.FieldDOI); v != "" {
		keys = append(keys, lookupKey{"doi", v})
	}
	if v := rec.Get(types.FieldDblpKey); v != "" {
		keys = append(keys, lookupKey{"dblp_key", v})
	}
	if v := rec.Get(types.FieldPdfID); v != "" {
		keys = append(keys, lookupKey{"pdf_id", v})
	}
	if v := rec.Get(types.FieldURL); v != "" {
		keys = append(keys, lookupKey{"url", v})
	}
	return keys
}

// Retrieve finds the curated version of a record, by fingerprint first and
// by its global identifiers second. The returned copy carries no lifecycle
// state and a curation id locating the source entry; the local file path
// is dropped unless includeFile is set.
func (s *Store) Retrieve(ctx context.Context, rec *types.Record, includeFile bool) (*types.Record, error) {
	keys := lookupKeys(rec)
	if len(keys) == 0 {
		return nil, &identify.NotEnoughDataToIdentifyError{ID: rec.ID, Missing: "fingerprint or global identifier"}
	}
	for _, key := range keys {
		blob, err := s.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			continue
		}
		stored, err := decodeStored(blob)
		if err != nil {
			return nil, err
		}
		return s.prepareRetrieved(stored, includeFile), nil
	}
	return nil, &RecordNotInIndexError{ID: rec.ID}
}

// lookup resolves one identifier through the cache with a database
// fallback. A nil blob without error means no index entry.
func (s *Store) lookup(ctx context.Context, key lookupKey) ([]byte, error) {
	cacheKey := key.column + ":" + key.value
	if blob, ok := s.cache.Get(cacheKey); ok {
		return blob, nil
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT bib FROM records WHERE `+key.column+` = ?`, key.value,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying index by %s: %w", key.column, err)
	}
	s.cache.Add(cacheKey, blob)
	return blob, nil
}

// CitationKey resolves the citation key the curated source assigned to the
// record. It satisfies the id assignment's curated lookup.
func (s *Store) CitationKey(rec *types.Record) (string, bool) {
	retrieved, err := s.Retrieve(context.Background(), rec, false)
	if err != nil {
		return "", false
	}
	return retrieved.ID, retrieved.ID != ""
}

// Search runs a full-text query over indexed titles and authors and
// returns the matching curated records ranked by relevance.
func (s *Store) Search(ctx context.Context, query string, maxResults int) ([]*types.Record, error) {
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.bib FROM records_fts
		 JOIN records r ON r.rowid = records_fts.rowid
		 WHERE records_fts MATCH ?
		 ORDER BY records_fts.rank
		 LIMIT ?`, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var results []*types.Record
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		stored, err := decodeStored(blob)
		if err != nil {
			return nil, err
		}
		results = append(results, s.prepareRetrieved(stored, false))
	}
	return results, rows.Err()
}

// RetrieveFromTOC locates the record within its table of contents by
// weighted similarity. With acrossTOCs, every issue or volume of the
// container is searched instead of the record's own.
func (s *Store) RetrieveFromTOC(ctx context.Context, rec *types.Record, threshold float64, acrossTOCs bool) (*types.Record, error) {
	key, err := TocKey(rec)
	if err != nil {
		return nil, err
	}

	query := `SELECT bib FROM records WHERE toc_key = ?`
	arg := key
	if acrossTOCs {
		query = `SELECT bib FROM records WHERE toc_key LIKE ?`
		arg = tocContainer(key) + "|%"
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying table of contents: %w", err)
	}
	defer rows.Close()

	var (
		best      *types.Record
		bestScore float64
		seen      bool
	)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		candidate, err := decodeStored(blob)
		if err != nil {
			return nil, err
		}
		seen = true
		if score := match.Similarity(rec, candidate); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !seen {
		return nil, &RecordNotInIndexError{ID: rec.ID}
	}
	if bestScore < threshold {
		return nil, &RecordNotInTOCError{ID: rec.ID, TocKey: key}
	}
	return s.prepareRetrieved(best, false), nil
}

func tocContainer(key string) string {
	if i := strings.Index(key, "|"); i >= 0 {
		return key[:i]
	}
	return key
}

// prepareRetrieved turns a stored record into one ready for import.
func (s *Store) prepareRetrieved(stored *types.Record, includeFile bool) *types.Record {
	curationID := stored.MdProvenance.CuratedSource() + "#" + stored.ID
	stored.Status = ""
	stored.Origins = nil
	stored.Remove(types.FieldScreeningCriteria)
	if !includeFile {
		stored.Remove(types.FieldFile)
	}
	stored.Set(types.FieldCurationID, curationID)
	return stored
}

func decodeStored(blob []byte) (*types.Record, error) {
	list, err := bib.Parse(bytes.NewReader(blob), bib.ParseOptions{})
	if err != nil {
		return nil, fmt.Errorf("decoding stored record: %w", err)
	}
	recs := list.Records()
	if len(recs) != 1 {
		return nil, fmt.Errorf("decoding stored record: got %d entries", len(recs))
	}
	return recs[0], nil
}
