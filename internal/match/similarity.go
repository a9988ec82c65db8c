// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match scores how likely two bibliographic records describe the
// same work. Field similarities are weighted by how distinctive each field
// is, with a stricter profile for journal articles where volume, number,
// and pages are expected to agree.
package match

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/pdiddy/review-engine/internal/identify"
	"github.com/pdiddy/review-engine/pkg/types"
)

// nonDistinctiveTitles are titles so common that matching on them carries
// no signal; the title weight is shifted onto the remaining fields.
var nonDistinctiveTitles = map[string]bool{
	"editorial":              true,
	"editorial introduction": true,
	"editorial notes":        true,
	"editor's comments":      true,
	"book reviews":           true,
	"editorial note":         true,
}

var authorCharsPattern = regexp.MustCompile(`[^A-Za-z0-9, ]+`)

// Ratio returns the normalized edit-distance similarity of a and b in
// [0, 1].
func Ratio(a, b string) float64 {
	return levenshtein.Similarity(a, b, levenshtein.NewParams())
}

// PartialRatio returns the best Ratio of the shorter string against any
// same-length window of the longer one. It tolerates values where one
// side carries extra content, such as "2001" against "2001-2002".
func PartialRatio(a, b string) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if short == "" {
		if long == "" {
			return 1
		}
		return 0
	}
	if strings.Contains(long, short) {
		return 1
	}

	best := 0.0
	window := len(short)
	for i := 0; i+window <= len(long); i++ {
		if r := Ratio(short, long[i:i+window]); r > best {
			best = r
		}
	}
	return best
}

// FormatAuthors rewrites an author field into the comparison form:
// lowercased and accent-free, first names abbreviated to initials, and
// separators dropped.
func FormatAuthors(authors string) string {
	authors = identify.RemoveAccents(strings.ToLower(authors))

	var b strings.Builder
	for _, author := range strings.Split(authors, " and ") {
		if family, given, ok := strings.Cut(author, ","); ok {
			b.WriteString(family)
			for _, word := range strings.Fields(given) {
				initial, _ := utf8.DecodeRuneInString(word)
				b.WriteString(" ")
				b.WriteRune(initial)
			}
			b.WriteString(" ")
		} else {
			b.WriteString(author)
			b.WriteString(" ")
		}
	}
	return authorCharsPattern.ReplaceAllString(strings.TrimRight(b.String(), " "), "")
}

// Similarity returns a weighted similarity of a and b in [0, 1], rounded
// to four decimals. A value above roughly 0.95 reliably marks duplicates
// while values around 0.8 need manual review.
func Similarity(a, b *types.Record) float64 {
	authorSim := PartialRatio(FormatAuthors(a.Get(types.FieldAuthor)), FormatAuthors(b.Get(types.FieldAuthor)))

	titleA := strings.ToLower(a.Get(types.FieldTitle))
	titleB := strings.ToLower(b.Get(types.FieldTitle))
	titleSim := Ratio(titleA, titleB)

	yearSim := PartialRatio(a.Get(types.FieldYear), b.Get(types.FieldYear))
	outletSim := Ratio(a.ContainerTitle(), b.ContainerTitle())

	var sims, weights []float64
	if a.Get(types.FieldJournal) != "" {
		volumeSim := exactMatch(a.Get(types.FieldVolume), b.Get(types.FieldVolume))
		numberSim := exactMatch(a.Get(types.FieldNumber), b.Get(types.FieldNumber))
		pagesSim := pagesMatch(a.Get(types.FieldPages), b.Get(types.FieldPages))

		sims = []float64{authorSim, titleSim, yearSim, outletSim, volumeSim, numberSim, pagesSim}
		if titleA == titleB && nonDistinctiveTitles[titleA] {
			weights = []float64{0.175, 0, 0.175, 0.175, 0.175, 0.175, 0.125}
		} else {
			weights = []float64{0.25, 0.3, 0.13, 0.2, 0.05, 0.05, 0.02}
		}
	} else {
		sims = []float64{authorSim, titleSim, yearSim, outletSim}
		weights = []float64{0.15, 0.75, 0.05, 0.05}
	}

	var total float64
	for i, s := range sims {
		total += s * weights[i]
	}
	return math.Round(total*10000) / 10000
}

func exactMatch(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

// pagesMatch treats a missing pages value as agreement and accepts a
// match on the first page alone, since some sources omit the end page.
func pagesMatch(a, b string) float64 {
	if a == "" || b == "" {
		return 1
	}
	if a == b {
		return 1
	}
	firstA, _, _ := strings.Cut(a, "-")
	firstB, _, _ := strings.Cut(b, "-")
	if firstA == firstB {
		return 1
	}
	return 0
}
