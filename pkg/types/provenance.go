// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strings"
)

// Curated is the provenance key marking a whole record as sourced from a
// trusted curated repository. A curated record carries a single CURATED
// entry instead of per-field provenance.
const Curated = "CURATED"

// Provenance records which source supplied or corrected a field value, and
// any defect note attached during preparation.
type Provenance struct {
	Source string
	Note   string
}

// ProvenanceMap maps a field name (or the literal key CURATED) to its
// provenance entry.
type ProvenanceMap map[string]Provenance

// ParseProvenanceMap decodes the stored provenance representation
// "key1:source1;note1; key2:source2;note2;". Legacy entries with one or two
// segments (missing note, or missing note and source) are tolerated and
// decoded with empty strings; parsing never fails.
func ParseProvenanceMap(raw string) ProvenanceMap {
	m := ProvenanceMap{}
	for _, item := range strings.Split(raw, "; ") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		item = strings.TrimSuffix(item, ";")

		var note string
		if i := strings.LastIndex(item, ";"); i >= 0 {
			note = item[i+1:]
			item = item[:i]
		}

		var key, source string
		if j := strings.Index(item, ":"); j >= 0 {
			key, source = item[:j], item[j+1:]
		} else {
			key = item
		}
		if key == "" {
			continue
		}
		m[key] = Provenance{Source: source, Note: note}
	}
	return m
}

// Encode serializes the map for storage. Entries are written as
// "key:source;note;" segments joined by "; ". CURATED sorts first, the
// remaining keys alphabetically, so encoding is deterministic.
func (m ProvenanceMap) Encode() string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if k == Curated {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if _, ok := m[Curated]; ok {
		keys = append([]string{Curated}, keys...)
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		p := m[k]
		parts = append(parts, fmt.Sprintf("%s:%s;%s;", k, p.Source, p.Note))
	}
	return strings.Join(parts, "; ")
}

// Curated reports whether the map carries a CURATED entry.
func (m ProvenanceMap) Curated() bool {
	_, ok := m[Curated]
	return ok
}

// CuratedSource returns the source of the CURATED entry, or "" when the
// record is not curated.
func (m ProvenanceMap) CuratedSource() string {
	return m[Curated].Source
}

// Clone returns a deep copy of the map.
func (m ProvenanceMap) Clone() ProvenanceMap {
	if m == nil {
		return nil
	}
	out := make(ProvenanceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
