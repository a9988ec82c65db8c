// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package loadfmt normalizes field values of freshly retrieved records.
// Search sources deliver values with LaTeX escapes, HTML entities, stray
// braces, and incompatible page or year formats; the formatter rewrites
// them into the store's canonical form. Identifier requirements (DOI form,
// number aliasing) apply on every run, while the lossier cleanups run only
// while a record is still in the retrieved state.
package loadfmt

import (
	"html"
	"regexp"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// latexReplacements maps the LaTeX escapes that search sources commonly
// emit to their plain-text equivalents.
var latexReplacements = []struct{ from, to string }{
	{`\"u`, "ü"},
	{`\&`, "&"},
	{`\"o`, "ö"},
	{`\"a`, "ä"},
	{`\"A`, "Ä"},
	{`\"O`, "Ö"},
	{`\"U`, "Ü"},
	{`\textendash`, "–"},
	{`\textemdash`, "—"},
	{`\~a`, "ã"},
	{`\'o`, "ó"},
	{`\emph`, ""},
	{`\textit`, ""},
}

// fieldsToProcess are the fields subject to unescaping and cleanup. Other
// fields pass through untouched.
var fieldsToProcess = map[string]bool{
	types.FieldAuthor:    true,
	types.FieldYear:      true,
	types.FieldTitle:     true,
	types.FieldJournal:   true,
	types.FieldBooktitle: true,
	types.FieldSeries:    true,
	types.FieldVolume:    true,
	types.FieldNumber:    true,
	types.FieldPages:     true,
	types.FieldDOI:       true,
	types.FieldAbstract:  true,
}

var (
	htmlTagPattern    = regexp.MustCompile(`<.*?>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Formatter rewrites record fields into canonical form.
type Formatter struct{}

// New returns a load formatter.
func New() *Formatter {
	return &Formatter{}
}

// Run formats rec in place.
func (f *Formatter) Run(rec *types.Record) {
	f.applyIdentifierRequirements(rec)

	if rec.Status != types.StatusMdRetrieved {
		return
	}

	f.lowerCaseKeys(rec)
	f.unescapeFieldValues(rec)
	f.standardizeFieldValues(rec)
}

// applyIdentifierRequirements enforces the canonical form of identifying
// fields regardless of record state.
func (f *Formatter) applyIdentifierRequirements(rec *types.Record) {
	if doi := rec.Get(types.FieldDOI); doi != "" {
		rec.Set(types.FieldDOI, strings.ToUpper(strings.ReplaceAll(doi, "http://dx.doi.org/", "")))
	}
	if !rec.Has(types.FieldNumber) && rec.Has("issue") {
		rec.Set(types.FieldNumber, rec.Get("issue"))
		rec.Remove("issue")
	}
}

func (f *Formatter) lowerCaseKeys(rec *types.Record) {
	for _, key := range rec.FieldKeys() {
		lower := strings.ToLower(key)
		if lower == key {
			continue
		}
		value := rec.Get(key)
		rec.Remove(key)
		rec.Set(lower, value)
	}
}

func unescapeLatex(s string) string {
	for _, repl := range latexReplacements {
		s = strings.ReplaceAll(s, repl.from, repl.to)
	}
	return s
}

func unescapeHTML(s string) string {
	s = html.UnescapeString(s)
	if strings.Contains(s, "<") {
		s = htmlTagPattern.ReplaceAllString(s, "")
	}
	return s
}

func (f *Formatter) unescapeFieldValues(rec *types.Record) {
	for _, key := range rec.FieldKeys() {
		if !fieldsToProcess[key] {
			continue
		}
		value := rec.Get(key)
		if strings.Contains(value, `\`) {
			value = unescapeLatex(value)
		}
		value = unescapeHTML(value)
		value = strings.ReplaceAll(value, "\n", " ")
		value = strings.TrimSpace(value)
		value = strings.ReplaceAll(value, "{", "")
		value = strings.ReplaceAll(value, "}", "")
		rec.Set(key, value)
	}
}

func (f *Formatter) standardizeFieldValues(rec *types.Record) {
	if title := rec.Get(types.FieldTitle); title != "" && title != types.ValueUnknown {
		title = whitespacePattern.ReplaceAllString(title, " ")
		rec.Set(types.FieldTitle, strings.TrimRight(title, "."))
	}

	// Some sources export years as floats.
	if year := rec.Get(types.FieldYear); strings.HasSuffix(year, ".0") {
		rec.Set(types.FieldYear, strings.TrimSuffix(year, ".0"))
	}

	if pages := rec.Get(types.FieldPages); pages != "" {
		pages = strings.ReplaceAll(pages, "–", "--")
		if strings.Count(pages, "-") == 1 {
			pages = strings.ReplaceAll(pages, "-", "--")
		}
		if strings.EqualFold(pages, "n.pag") {
			rec.Remove(types.FieldPages)
		} else {
			rec.Set(types.FieldPages, pages)
		}
	}

	if rec.Get(types.FieldVolume) == "ahead-of-print" {
		rec.Remove(types.FieldVolume)
	}
	if rec.Get(types.FieldNumber) == "ahead-of-print" {
		rec.Remove(types.FieldNumber)
	}

	// Proxy-prefixed URLs hide the target behind a login redirect.
	if url := rec.Get(types.FieldURL); strings.Contains(url, "login?url=https") {
		rec.Set(types.FieldURL, url[strings.Index(url, "login?url=https")+10:])
	}
}
