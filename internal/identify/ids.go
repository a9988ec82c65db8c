// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package identify

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/review-engine/pkg/types"
)

var (
	parentheticalRe = regexp.MustCompile(`\(.*\)`)
	nonAlnumRe      = regexp.MustCompile(`[^0-9a-zA-Z]+`)
)

// TemporaryID reports whether id is a provisional all-digit identifier as
// assigned by search feeds, rather than a generated citation key.
func TemporaryID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FamilyNames extracts family names from a BibTeX author or editor field.
// Authors are separated by " and "; "Family, Given" entries yield the part
// before the comma, unseparated entries their first token. Protective
// braces are dropped.
func FamilyNames(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}
	var names []string
	for _, author := range strings.Split(field, " and ") {
		author = strings.TrimSpace(author)
		if author == "" {
			continue
		}
		family, _, ok := strings.Cut(author, ",")
		if !ok {
			family, _, _ = strings.Cut(author, " ")
		}
		family = strings.Trim(family, "{} ")
		if family != "" {
			names = append(names, family)
		}
	}
	return names
}

// GenerateID derives a citation key for rec that does not collide with any
// key in taken. Comparison against taken is case-insensitive because keys
// may become file names on case-insensitive file systems. Collisions are
// resolved by appending "a".."z", then "aa".."zz", and so on.
func GenerateID(rec *types.Record, pattern types.IDPattern, taken []string) string {
	return Disambiguate(baseID(rec, pattern), taken)
}

// Disambiguate returns base or, when base collides case-insensitively with
// a key in taken, base with the shortest letter suffix avoiding all of them.
func Disambiguate(base string, taken []string) string {
	lowered := make(map[string]bool, len(taken))
	for _, id := range taken {
		lowered[strings.ToLower(id)] = true
	}

	next := base
	order := 0
	var queue []string
	for lowered[strings.ToLower(next)] {
		if len(queue) == 0 {
			order++
			queue = suffixes(order)
		}
		next = base + queue[0]
		queue = queue[1:]
	}
	return next
}

// baseID builds the citation key stem from author family names and year
// according to the configured pattern.
func baseID(rec *types.Record, pattern types.IDPattern) string {
	authors := FamilyNames(authorField(rec))
	if len(authors) == 0 {
		authors = []string{"Anonymous"}
	}
	year := rec.GetDefault(types.FieldYear, "NoYear")

	var stem string
	switch pattern {
	case types.IDPatternFirstAuthorYear:
		stem = strings.ReplaceAll(authors[0], " ", "") + year
	default:
		n := min(len(authors), 3)
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteString(strings.ReplaceAll(authors[i], " ", ""))
		}
		if len(authors) > 3 {
			b.WriteString("EtAl")
		}
		b.WriteString(year)
		stem = b.String()
	}

	if isAllUpper(stem) {
		stem = capitalize(stem)
	}
	// Keys may be used as file names: strip accents, parentheticals, and
	// anything outside [0-9a-zA-Z].
	stem = RemoveAccents(stem)
	stem = parentheticalRe.ReplaceAllString(stem, "")
	stem = nonAlnumRe.ReplaceAllString(stem, "")
	return stem
}

// suffixes returns all lower-case letter strings of the given length in
// lexicographic order.
func suffixes(length int) []string {
	total := 1
	for i := 0; i < length; i++ {
		total *= 26
	}
	out := make([]string, total)
	buf := make([]byte, length)
	for i := 0; i < total; i++ {
		x := i
		for pos := length - 1; pos >= 0; pos-- {
			buf[pos] = byte('a' + x%26)
			x /= 26
		}
		out[i] = string(buf)
	}
	return out
}

// isAllUpper reports whether s contains at least one letter and no
// lower-case letters.
func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return string(unicode.ToUpper(r[0])) + strings.ToLower(string(r[1:]))
}
