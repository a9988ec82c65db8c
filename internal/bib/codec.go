// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bib reads and writes the records store: a newline-delimited file
// of bibliographic entries with engine-managed header fields. The package
// provides three access paths with different costs: the full codec
// (parse/encode), a streaming header scanner for bulk status queries, and a
// byte-range patch writer for targeted edits that leave untouched records
// byte-identical.
package bib

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// fieldOrder is the fixed serialization prefix. Origin and status are
// always the first two fields of an entry: the header scanner and the patch
// writer rely on that layout. Remaining fields follow in encounter order.
var fieldOrder = []string{
	types.FieldOrigin,
	types.FieldStatus,
	types.FieldMdProvenance,
	types.FieldDataProvenance,
	types.FieldColrevID,
	types.FieldPdfID,
	types.FieldScreeningCriteria,
	types.FieldFile,
	types.FieldPrescreenExclusion,
	types.FieldDOI,
	"grobid-version",
	types.FieldDblpKey,
	types.FieldSemScholarID,
	types.FieldWosAccession,
	types.FieldAuthor,
	types.FieldBooktitle,
	types.FieldJournal,
	types.FieldTitle,
	types.FieldYear,
	types.FieldVolume,
	types.FieldNumber,
	types.FieldPages,
	types.FieldEditor,
}

var orderedField = func() map[string]bool {
	m := make(map[string]bool, len(fieldOrder))
	for _, f := range fieldOrder {
		m[f] = true
	}
	return m
}()

// fieldPad aligns the "=" of every field line to the same column.
const fieldPad = 28

// ParseOptions controls parse behavior. Parse mode is always passed
// explicitly; there is no package-level mode switch.
type ParseOptions struct {
	// Strict aborts on the first duplicate identifier or invalid status
	// value. The default lenient mode keeps the first occurrence, records
	// the violation, and reports it after the pass so integrity checks
	// can list every defect at once.
	Strict bool
}

// ParseError reports a structurally unrecognizable line in the store.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
}

// DuplicateIdentifierError reports record identifiers that appear more than
// once in the store. Identifiers are case-sensitive.
type DuplicateIdentifierError struct {
	IDs []string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("duplicate record identifiers: %s", strings.Join(e.IDs, ", "))
}

// RecordList is an ordered collection of records keyed by identifier.
// Iteration follows encounter order so that serialization is stable.
type RecordList struct {
	records []*types.Record
	byID    map[string]*types.Record
}

// NewRecordList returns an empty list.
func NewRecordList() *RecordList {
	return &RecordList{byID: map[string]*types.Record{}}
}

// Add appends a record. Adding an identifier that is already present
// returns a DuplicateIdentifierError and leaves the list unchanged.
func (l *RecordList) Add(r *types.Record) error {
	if _, ok := l.byID[r.ID]; ok {
		return &DuplicateIdentifierError{IDs: []string{r.ID}}
	}
	l.byID[r.ID] = r
	l.records = append(l.records, r)
	return nil
}

// Get returns the record with the given identifier.
func (l *RecordList) Get(id string) (*types.Record, bool) {
	r, ok := l.byID[id]
	return r, ok
}

// Remove deletes the record with the given identifier, reporting whether it
// was present.
func (l *RecordList) Remove(id string) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	for i, r := range l.records {
		if r.ID == id {
			l.records = append(l.records[:i], l.records[i+1:]...)
			break
		}
	}
	return true
}

// Rename changes a record's identifier in place, preserving its position.
func (l *RecordList) Rename(oldID, newID string) error {
	r, ok := l.byID[oldID]
	if !ok {
		return fmt.Errorf("renaming %s: record not found", oldID)
	}
	if oldID == newID {
		return nil
	}
	if _, exists := l.byID[newID]; exists {
		return &DuplicateIdentifierError{IDs: []string{newID}}
	}
	delete(l.byID, oldID)
	r.ID = newID
	l.byID[newID] = r
	return nil
}

// Records returns the records in encounter order. The slice is shared;
// callers must not reorder it.
func (l *RecordList) Records() []*types.Record {
	return l.records
}

// Len returns the number of records.
func (l *RecordList) Len() int {
	return len(l.records)
}

// ByOrigin returns the record carrying the given origin token.
func (l *RecordList) ByOrigin(token string) (*types.Record, bool) {
	for _, r := range l.records {
		if r.HasOrigin(token) {
			return r, true
		}
	}
	return nil, false
}

// Parse reads the full store. In lenient mode a non-nil RecordList is
// returned together with a DuplicateIdentifierError when identifiers
// repeat; the first occurrence of each identifier wins.
func Parse(r io.Reader, opts ParseOptions) (*RecordList, error) {
	list := NewRecordList()
	var duplicates []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineno := 0
	var rec *types.Record

	flush := func() error {
		if rec == nil {
			return nil
		}
		if err := list.Add(rec); err != nil {
			if opts.Strict {
				return err
			}
			duplicates = append(duplicates, rec.ID)
		}
		rec = nil
		return nil
	}

	for sc.Scan() {
		lineno++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "%"):
			continue

		case strings.HasPrefix(trimmed, "@"):
			if err := flush(); err != nil {
				return list, err
			}
			entryType, id, err := parseEntryStart(trimmed, lineno)
			if err != nil {
				return list, err
			}
			if strings.EqualFold(entryType, "comment") {
				if err := skipCommentEntry(sc, &lineno, trimmed); err != nil {
					return list, err
				}
				continue
			}
			rec = types.NewRecord(id, entryType)

		case trimmed == "}":
			if err := flush(); err != nil {
				return list, err
			}

		default:
			if rec == nil {
				return list, &ParseError{Line: lineno, Msg: fmt.Sprintf("field line outside entry: %q", trimmed)}
			}
			key, value, err := parseFieldLine(sc, &lineno, trimmed)
			if err != nil {
				return list, err
			}
			if err := setRecordField(rec, key, value, opts); err != nil {
				return list, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return list, fmt.Errorf("reading records: %w", err)
	}
	if err := flush(); err != nil {
		return list, err
	}

	if len(duplicates) > 0 {
		return list, &DuplicateIdentifierError{IDs: duplicates}
	}
	return list, nil
}

// parseEntryStart decodes "@<entrytype>{<id>," into its parts.
func parseEntryStart(line string, lineno int) (entryType, id string, err error) {
	open := strings.IndexByte(line, '{')
	if open < 0 {
		return "", "", &ParseError{Line: lineno, Msg: fmt.Sprintf("malformed entry start: %q", line)}
	}
	entryType = strings.TrimSpace(line[1:open])
	if entryType == "" {
		return "", "", &ParseError{Line: lineno, Msg: fmt.Sprintf("entry start without type: %q", line)}
	}
	id = strings.TrimSpace(line[open+1:])
	id = strings.TrimSuffix(id, ",")
	id = strings.TrimSuffix(id, "}")
	id = strings.TrimSpace(id)
	if id == "" && !strings.EqualFold(entryType, "comment") {
		return "", "", &ParseError{Line: lineno, Msg: fmt.Sprintf("entry start without identifier: %q", line)}
	}
	return entryType, id, nil
}

// skipCommentEntry consumes the remainder of an @Comment entry.
func skipCommentEntry(sc *bufio.Scanner, lineno *int, firstLine string) error {
	depth := strings.Count(firstLine, "{") - strings.Count(firstLine, "}")
	for depth > 0 && sc.Scan() {
		*lineno++
		line := sc.Text()
		depth += strings.Count(line, "{") - strings.Count(line, "}")
	}
	return nil
}

// parseFieldLine decodes "<field> = {<value>}," consuming continuation
// lines while braces remain unbalanced.
func parseFieldLine(sc *bufio.Scanner, lineno *int, trimmed string) (key, value string, err error) {
	eq := strings.IndexByte(trimmed, '=')
	if eq < 0 {
		return "", "", &ParseError{Line: *lineno, Msg: fmt.Sprintf("field line without '=': %q", trimmed)}
	}
	key = strings.TrimSpace(trimmed[:eq])
	if key == "" {
		return "", "", &ParseError{Line: *lineno, Msg: fmt.Sprintf("field line without name: %q", trimmed)}
	}
	raw := strings.TrimSpace(trimmed[eq+1:])

	// Consume continuation lines until braces balance.
	for strings.Count(raw, "{") > strings.Count(raw, "}") && sc.Scan() {
		*lineno++
		raw += " " + strings.TrimSpace(sc.Text())
	}

	raw = strings.TrimSuffix(raw, ",")
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		raw = raw[1 : len(raw)-1]
	} else if strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2 {
		raw = raw[1 : len(raw)-1]
	}
	return key, raw, nil
}

// setRecordField routes a parsed field into the typed record.
func setRecordField(rec *types.Record, key, value string, opts ParseOptions) error {
	switch key {
	case types.FieldOrigin:
		for _, token := range strings.Split(value, ";") {
			rec.AddOrigin(strings.TrimSpace(token))
		}
	case types.FieldStatus:
		status, err := types.ParseStatus(value)
		if err != nil {
			if opts.Strict {
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
			// Keep the raw value; the integrity checks report it.
			rec.Status = types.Status(value)
			return nil
		}
		rec.Status = status
	case types.FieldColrevID:
		for _, id := range strings.Split(value, ";") {
			rec.AddColrevID(strings.TrimSpace(id))
		}
	case types.FieldMdProvenance:
		rec.MdProvenance = types.ParseProvenanceMap(value)
	case types.FieldDataProvenance:
		rec.DataProvenance = types.ParseProvenanceMap(value)
	default:
		rec.Set(key, value)
	}
	return nil
}

// storageValue returns the serialized value of an ordering-prefix field.
func storageValue(r *types.Record, key string) string {
	switch key {
	case types.FieldOrigin:
		return strings.Join(r.Origins, "; ")
	case types.FieldStatus:
		return string(r.Status)
	case types.FieldColrevID:
		return strings.Join(r.ColrevIDs, "; ")
	case types.FieldMdProvenance:
		return r.MdProvenance.Encode()
	case types.FieldDataProvenance:
		return r.DataProvenance.Encode()
	default:
		return r.Get(key)
	}
}

// fieldLine renders one serialized field line without the trailing comma
// and newline, padding so that "=" lands in the same column for every
// field name up to fieldPad characters.
func fieldLine(key, value string) string {
	pad := fieldPad - len(key)
	if pad < 0 {
		pad = 0
	}
	return fmt.Sprintf("   %s %s = {%s}", key, strings.Repeat(" ", pad), value)
}

// EncodeRecord serializes a single entry, without a trailing separator
// line. Fields with empty values are omitted.
func EncodeRecord(r *types.Record) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "@%s{%s", r.Type, r.ID)

	writeField := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(",\n")
		b.WriteString(fieldLine(key, value))
	}

	for _, key := range fieldOrder {
		writeField(key, storageValue(r, key))
	}
	for _, key := range r.FieldKeys() {
		if orderedField[key] {
			continue
		}
		writeField(key, r.Get(key))
	}
	b.WriteString(",\n}\n")
	return b.Bytes()
}

// Encode writes the full store: entries in list order separated by one
// blank line. Encoding the result of Parse reproduces the input byte for
// byte for stores written by this package.
func Encode(w io.Writer, list *RecordList) error {
	for i, rec := range list.Records() {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("writing records: %w", err)
			}
		}
		if _, err := w.Write(EncodeRecord(rec)); err != nil {
			return fmt.Errorf("writing record %s: %w", rec.ID, err)
		}
	}
	return nil
}
