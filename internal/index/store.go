// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index maintains the machine-wide index of curated records.
// Curated review repositories are ingested into a SQLite database so that
// preparation and citation-key assignment can pull trusted masterdata by
// fingerprint, global identifier, full-text search, or table-of-contents
// match.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/identify"
	"github.com/pdiddy/review-engine/pkg/types"
)

const (
	dbFile    = "index.db"
	cacheSize = 512
)

// Store manages the curated record index.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
	cache      *lru.Cache[string, []byte]
}

// NewStore opens or creates the index database under cfg.IndexDir,
// defaulting to ~/.review-engine. It creates the schema if it does not
// exist.
func NewStore(cfg types.IndexConfig) (*Store, error) {
	dir := cfg.IndexDir
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating retrieval cache: %w", err)
	}

	s := &Store{
		db:         db,
		dir:        dir,
		maxResults: maxResults,
		cache:      cache,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the index directory, also holding the repository registry.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			colrev_id TEXT NOT NULL UNIQUE,
			doi TEXT,
			dblp_key TEXT,
			url TEXT,
			pdf_id TEXT,
			toc_key TEXT,
			curated_source TEXT,
			title TEXT,
			author TEXT,
			bib BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_id ON records(id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_doi ON records(doi)`,
		`CREATE INDEX IF NOT EXISTS idx_records_dblp_key ON records(dblp_key)`,
		`CREATE INDEX IF NOT EXISTS idx_records_url ON records(url)`,
		`CREATE INDEX IF NOT EXISTS idx_records_pdf_id ON records(pdf_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_toc_key ON records(toc_key)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='records_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE records_fts USING fts5(title, author, content=records, content_rowid=rowid)`,
			`CREATE TRIGGER records_ai AFTER INSERT ON records BEGIN
				INSERT INTO records_fts(rowid, title, author) VALUES (new.rowid, new.title, new.author);
			END`,
			`CREATE TRIGGER records_ad AFTER DELETE ON records BEGIN
				INSERT INTO records_fts(records_fts, rowid, title, author) VALUES('delete', old.rowid, old.title, old.author);
			END`,
			`CREATE TRIGGER records_au AFTER UPDATE ON records BEGIN
				INSERT INTO records_fts(records_fts, rowid, title, author) VALUES('delete', old.rowid, old.title, old.author);
				INSERT INTO records_fts(rowid, title, author) VALUES (new.rowid, new.title, new.author);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from one indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of records processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// IngestOptions select the curated checkout to index.
type IngestOptions struct {
	// RepoPath is the curated review project checkout.
	RepoPath string

	// SourceURL labels indexed records whose curated provenance entry
	// carries no source of its own.
	SourceURL string

	// RecordsFile overrides the records file location relative to
	// RepoPath. Empty uses the default layout.
	RecordsFile string
}

// Ingest indexes the curated checkout's record store. Only processed
// records with curated masterdata enter the index; everything else is
// skipped. Re-ingesting replaces earlier versions by fingerprint.
func (s *Store) Ingest(ctx context.Context, opts IngestOptions, w io.Writer) (IngestSummary, error) {
	recordsFile := opts.RecordsFile
	if recordsFile == "" {
		recordsFile = types.DefaultEngineConfig().Paths.RecordsFile
	}
	path := filepath.Join(opts.RepoPath, recordsFile)

	f, err := os.Open(path)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("opening records file %s: %w", path, err)
	}
	defer f.Close()

	list, err := bib.Parse(f, bib.ParseOptions{})
	if err != nil {
		return IngestSummary{}, fmt.Errorf("parsing records file %s: %w", path, err)
	}

	var summary IngestSummary
	for _, rec := range list.Records() {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if !rec.Status.Processed() || !rec.MasterdataCurated() {
			summary.Skipped++
			continue
		}

		updated, err := s.ingestRecord(ctx, rec, opts.SourceURL)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rec.ID, err)
			summary.Failed++
			continue
		}
		if updated {
			fmt.Fprintf(w, "updated %s\n", rec.ID)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s\n", rec.ID)
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	// Cached lookups may hold pre-ingest versions.
	s.cache.Purge()
	return summary, nil
}

func (s *Store) ingestRecord(ctx context.Context, rec *types.Record, sourceURL string) (bool, error) {
	fingerprint, err := identify.CreateFingerprint(rec, false)
	if err != nil {
		return false, err
	}

	stored := rec.Clone()
	if stored.MdProvenance.CuratedSource() == "" && sourceURL != "" {
		stored.MdProvenance[types.Curated] = types.Provenance{Source: sourceURL}
	}
	stored.AddColrevID(fingerprint)

	tocKey, err := TocKey(stored)
	if err != nil {
		// Monographs and the like have no table of contents.
		tocKey = ""
	}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM records WHERE colrev_id = ?`, fingerprint,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking index entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, colrev_id, doi, dblp_key, url, pdf_id, toc_key, curated_source, title, author, bib)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(colrev_id) DO UPDATE SET
			id=excluded.id, doi=excluded.doi, dblp_key=excluded.dblp_key,
			url=excluded.url, pdf_id=excluded.pdf_id, toc_key=excluded.toc_key,
			curated_source=excluded.curated_source, title=excluded.title,
			author=excluded.author, bib=excluded.bib`,
		stored.ID, fingerprint,
		nullable(stored.Get(types.FieldDOI)), nullable(stored.Get(types.FieldDblpKey)),
		nullable(stored.Get(types.FieldURL)), nullable(stored.Get(types.FieldPdfID)),
		nullable(tocKey), nullable(stored.MdProvenance.CuratedSource()),
		stored.Get(types.FieldTitle), stored.Get(types.FieldAuthor),
		bib.EncodeRecord(stored),
	)
	if err != nil {
		return false, fmt.Errorf("upserting record %s: %w", stored.ID, err)
	}
	return exists > 0, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
