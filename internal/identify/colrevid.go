// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package identify derives identity from record content: stable content
// fingerprints for matching the same work across sources, and citation
// keys for humans. Fingerprints are built from normalized core fields so
// that case, accents, and punctuation differences between sources do not
// break the match.
package identify

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/review-engine/pkg/types"
)

// fingerprintVersion prefixes every fingerprint. Records keep fingerprints
// from older schemes alongside current ones, so the version tag is part of
// the string.
const fingerprintVersion = "colrev_id1:"

// NotEnoughDataToIdentifyError signals that a record lacks the
// discriminating fields needed for a reliable fingerprint. Callers skip
// fingerprinting such records; fabricating a fingerprint from thin data
// would cause false-positive merges downstream.
type NotEnoughDataToIdentifyError struct {
	ID      string
	Missing string
}

func (e *NotEnoughDataToIdentifyError) Error() string {
	return fmt.Sprintf("not enough data to identify record %s: missing %s", e.ID, e.Missing)
}

// CreateFingerprint computes the content fingerprint of a record:
//
//	colrev_id1:|<entrytype>|<container>|<volume>|<number>|<year>|<authors>|<title>
//
// Fields are normalized before concatenation, so two records differing only
// in case, accents, or punctuation of the core fields produce the same
// fingerprint. Unless assumeComplete, records that have not completed
// metadata preparation are rejected: their fields are still in flux.
func CreateFingerprint(rec *types.Record, assumeComplete bool) (string, error) {
	if !assumeComplete {
		switch rec.Status {
		case types.StatusMdRetrieved, types.StatusMdImported, types.StatusMdNeedsManualPreparation:
			return "", &NotEnoughDataToIdentifyError{ID: rec.ID, Missing: "prepared masterdata"}
		}
	}

	authors := FamilyNames(authorField(rec))
	if len(authors) == 0 {
		return "", &NotEnoughDataToIdentifyError{ID: rec.ID, Missing: types.FieldAuthor}
	}
	year := rec.Get(types.FieldYear)
	if year == "" {
		return "", &NotEnoughDataToIdentifyError{ID: rec.ID, Missing: types.FieldYear}
	}
	title := rec.Get(types.FieldTitle)
	if title == "" {
		return "", &NotEnoughDataToIdentifyError{ID: rec.ID, Missing: types.FieldTitle}
	}

	entryType := strings.ToLower(strings.TrimSpace(rec.Type))
	if entryType == "" {
		entryType = "misc"
	}
	switch entryType {
	case "article":
		if rec.Get(types.FieldJournal) == "" {
			return "", &NotEnoughDataToIdentifyError{ID: rec.ID, Missing: types.FieldJournal}
		}
	case "inproceedings":
		if rec.Get(types.FieldBooktitle) == "" {
			return "", &NotEnoughDataToIdentifyError{ID: rec.ID, Missing: types.FieldBooktitle}
		}
	}

	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = normalizePart(a)
	}

	parts := []string{
		entryType,
		normalizePart(rec.ContainerTitle()),
		normalizePart(rec.Get(types.FieldVolume)),
		normalizePart(rec.Get(types.FieldNumber)),
		normalizePart(year),
		strings.Join(names, "-"),
		normalizePart(title),
	}
	return fingerprintVersion + "|" + strings.Join(parts, "|"), nil
}

// SameFingerprint reports whether two fingerprint sets identify the same
// work. Records accumulate fingerprints over their lifetime, so identity is
// set intersection, not equality of a single string.
func SameFingerprint(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if set[id] {
			return true
		}
	}
	return false
}

var fingerprintSegmentRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalizePart canonicalizes one fingerprint segment: lower-cased, accents
// stripped, punctuation and whitespace collapsed to single dashes. Empty
// segments become "-" so segment positions stay aligned.
func normalizePart(s string) string {
	s = RemoveAccents(strings.ToLower(strings.TrimSpace(s)))
	s = fingerprintSegmentRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "-"
	}
	return s
}

// RemoveAccents maps accented letters to their base form by dropping
// combining marks after NFD decomposition.
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// authorField returns the author field, falling back to editor for
// editor-only entries such as proceedings volumes.
func authorField(rec *types.Record) string {
	if v := rec.Get(types.FieldAuthor); v != "" {
		return v
	}
	return rec.Get(types.FieldEditor)
}
