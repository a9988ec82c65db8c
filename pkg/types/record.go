// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for review-engine: records,
// lifecycle statuses, provenance, project settings, and stage configuration.
package types

import (
	"sort"
	"strings"
)

// Storage field names. The first block holds the engine-managed fields that
// every reader and writer treats specially; the second block holds common
// bibliographic fields referenced throughout the code.
const (
	FieldOrigin             = "colrev_origin"
	FieldStatus             = "colrev_status"
	FieldMdProvenance       = "colrev_masterdata_provenance"
	FieldDataProvenance     = "colrev_data_provenance"
	FieldColrevID           = "colrev_id"
	FieldPdfID              = "colrev_pdf_id"
	FieldScreeningCriteria  = "screening_criteria"
	FieldFile               = "file"
	FieldPrescreenExclusion = "prescreen_exclusion"
	FieldCurationID         = "curation_ID"

	FieldDOI          = "doi"
	FieldDblpKey      = "dblp_key"
	FieldSemScholarID = "sem_scholar_id"
	FieldWosAccession = "wos_accession_number"
	FieldAuthor       = "author"
	FieldBooktitle    = "booktitle"
	FieldJournal      = "journal"
	FieldSeries       = "series"
	FieldTitle        = "title"
	FieldYear         = "year"
	FieldVolume       = "volume"
	FieldNumber       = "number"
	FieldPages        = "pages"
	FieldEditor       = "editor"
	FieldAbstract     = "abstract"
	FieldURL          = "url"
	FieldLanguage     = "language"
)

// NA is the sentinel for a missing header field value.
const NA = "NA"

// ValueUnknown is the placeholder stored when a required field's value
// could not be determined.
const ValueUnknown = "UNKNOWN"

// ValueRetracted is the prescreen exclusion reason recorded for papers
// their source has retracted.
const ValueRetracted = "retracted"

// identifyingFields are the masterdata fields tracked in
// colrev_masterdata_provenance; every other field falls under
// colrev_data_provenance.
var identifyingFields = map[string]bool{
	FieldTitle:     true,
	FieldAuthor:    true,
	FieldYear:      true,
	FieldJournal:   true,
	FieldBooktitle: true,
	"chapter":      true,
	"publisher":    true,
	FieldVolume:    true,
	FieldNumber:    true,
	FieldPages:     true,
	FieldEditor:    true,
	"institution":  true,
	"month":        true,
}

// IsIdentifyingField reports whether the field belongs to the record's
// masterdata.
func IsIdentifyingField(key string) bool {
	return identifyingFields[key]
}

// Record is one bibliographic record in the store. The engine-managed
// fields (status, origins, fingerprints, provenance) are typed; all other
// fields live in an ordered field list so serialization can preserve
// encounter order. The backing records file is the source of truth; Record
// values are transient projections reloaded per operation.
type Record struct {
	// ID is the citation key, unique within the store, case-sensitive.
	ID string

	// Type is the bibliographic entry type (article, inproceedings, ...).
	Type string

	// Status is the lifecycle state.
	Status Status

	// Origins lists the source contributions merged into this record,
	// each formatted "<source-file>/<local-id>". Origins of two records
	// are always disjoint.
	Origins []string

	// ColrevIDs holds accumulated content fingerprints. Fingerprints are
	// appended over the record's lifetime, never replaced, so the record
	// stays matchable against earlier fingerprint schemes.
	ColrevIDs []string

	// MdProvenance tracks masterdata field provenance (or CURATED).
	MdProvenance ProvenanceMap

	// DataProvenance tracks provenance of non-masterdata fields.
	DataProvenance ProvenanceMap

	fields map[string]string
	order  []string
}

// NewRecord returns an empty record with the given citation key and entry type.
func NewRecord(id, entryType string) *Record {
	return &Record{ID: id, Type: entryType}
}

// Get returns the value of a generic field, or "" when absent.
func (r *Record) Get(key string) string {
	return r.fields[key]
}

// GetDefault returns the field value, or fallback when the field is absent
// or empty.
func (r *Record) GetDefault(key, fallback string) string {
	if v, ok := r.fields[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Has reports whether the generic field is present.
func (r *Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Set stores a generic field value, preserving first-encounter order for
// serialization. Setting an existing field keeps its position.
func (r *Record) Set(key, value string) {
	if r.fields == nil {
		r.fields = make(map[string]string)
	}
	if _, ok := r.fields[key]; !ok {
		r.order = append(r.order, key)
	}
	r.fields[key] = value
}

// Remove deletes a generic field.
func (r *Record) Remove(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// FieldKeys returns the generic field names in encounter order.
func (r *Record) FieldKeys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// HasOrigin reports whether the record carries the given origin token.
func (r *Record) HasOrigin(token string) bool {
	for _, o := range r.Origins {
		if o == token {
			return true
		}
	}
	return false
}

// AddOrigin appends origin tokens, skipping duplicates.
func (r *Record) AddOrigin(tokens ...string) {
	for _, t := range tokens {
		if t == "" || r.HasOrigin(t) {
			continue
		}
		r.Origins = append(r.Origins, t)
	}
}

// AddColrevID appends a fingerprint if not already present.
func (r *Record) AddColrevID(id string) {
	if id == "" {
		return
	}
	for _, existing := range r.ColrevIDs {
		if existing == id {
			return
		}
	}
	r.ColrevIDs = append(r.ColrevIDs, id)
}

// MasterdataCurated reports whether the record's masterdata comes from a
// trusted curated repository.
func (r *Record) MasterdataCurated() bool {
	return r.MdProvenance.Curated()
}

// UpdateField sets a generic field and stamps its provenance with the
// given source. With keepSourceIfEqual, an unchanged value is left alone
// so the original provenance survives.
func (r *Record) UpdateField(key, value, source string, keepSourceIfEqual bool) {
	if keepSourceIfEqual && r.Has(key) && r.Get(key) == value {
		return
	}
	r.Set(key, value)
	r.stampProvenance(key, source)
}

// AddProvenanceAll stamps every generic field with the given source.
// Masterdata fields of a curated record keep their CURATED entry.
func (r *Record) AddProvenanceAll(source string) {
	for _, key := range r.order {
		r.stampProvenance(key, source)
	}
}

func (r *Record) stampProvenance(key, source string) {
	if IsIdentifyingField(key) {
		if r.MdProvenance.Curated() {
			return
		}
		if r.MdProvenance == nil {
			r.MdProvenance = ProvenanceMap{}
		}
		note := r.MdProvenance[key].Note
		r.MdProvenance[key] = Provenance{Source: source, Note: note}
		return
	}
	if r.DataProvenance == nil {
		r.DataProvenance = ProvenanceMap{}
	}
	note := r.DataProvenance[key].Note
	r.DataProvenance[key] = Provenance{Source: source, Note: note}
}

// PrescreenExclude marks the record excluded at prescreen with the given
// reason and drops fields holding only the UNKNOWN placeholder.
func (r *Record) PrescreenExclude(reason string) {
	r.Status = StatusRevPrescreenExcluded
	r.Set(FieldPrescreenExclusion, reason)
	for _, key := range r.FieldKeys() {
		if r.Get(key) == ValueUnknown {
			r.Remove(key)
		}
	}
}

// Retracted reports whether the record carries a retraction mark from an
// upstream source (a Crossmark flag or a DBLP withdrawal warning).
func (r *Record) Retracted() bool {
	if r.Get("crossmark") == "True" {
		return true
	}
	return strings.HasPrefix(r.Get("warning"), "Withdrawn (according to DBLP)")
}

// MergeOrigins folds the other record's origins into this record. Used by
// deduplication: the surviving record accumulates both origin sets and the
// duplicate is removed from the store.
func (r *Record) MergeOrigins(other *Record) {
	r.AddOrigin(other.Origins...)
	sort.Strings(r.Origins)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := &Record{
		ID:             r.ID,
		Type:           r.Type,
		Status:         r.Status,
		Origins:        append([]string(nil), r.Origins...),
		ColrevIDs:      append([]string(nil), r.ColrevIDs...),
		MdProvenance:   r.MdProvenance.Clone(),
		DataProvenance: r.DataProvenance.Clone(),
		order:          append([]string(nil), r.order...),
	}
	if r.fields != nil {
		c.fields = make(map[string]string, len(r.fields))
		for k, v := range r.fields {
			c.fields[k] = v
		}
	}
	return c
}

// ContainerTitle returns the publication container used for fingerprinting:
// journal for articles, booktitle for proceedings papers, series as a
// fallback, or the record's own title for monographs.
func (r *Record) ContainerTitle() string {
	if v := r.Get(FieldJournal); v != "" {
		return v
	}
	if v := r.Get(FieldBooktitle); v != "" {
		return v
	}
	if v := r.Get(FieldSeries); v != "" {
		return v
	}
	if strings.EqualFold(r.Type, "book") {
		return r.Get(FieldTitle)
	}
	return ""
}
