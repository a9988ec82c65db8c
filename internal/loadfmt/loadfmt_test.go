// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package loadfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/review-engine/pkg/types"
)

func retrieved(fields map[string]string) *types.Record {
	rec := &types.Record{ID: "Smith2020", Type: "article", Status: types.StatusMdRetrieved}
	for k, v := range fields {
		rec.Set(k, v)
	}
	return rec
}

// --- identifier requirements ---

func TestRunNormalizesDOI(t *testing.T) {
	rec := retrieved(map[string]string{"doi": "http://dx.doi.org/10.1111/j.tst"})
	New().Run(rec)
	assert.Equal(t, "10.1111/J.TST", rec.Get("doi"))
}

func TestRunAliasesIssueToNumber(t *testing.T) {
	rec := retrieved(map[string]string{"issue": "4"})
	New().Run(rec)
	assert.Equal(t, "4", rec.Get("number"))
	assert.False(t, rec.Has("issue"))
}

func TestRunKeepsNumberOverIssue(t *testing.T) {
	rec := retrieved(map[string]string{"number": "2", "issue": "4"})
	New().Run(rec)
	assert.Equal(t, "2", rec.Get("number"))
}

func TestRunAppliesIdentifierRequirementsAfterRetrieval(t *testing.T) {
	rec := retrieved(map[string]string{"doi": "http://dx.doi.org/10.17/x", "title": "kept {as} is."})
	rec.Status = types.StatusMdImported
	New().Run(rec)

	assert.Equal(t, "10.17/X", rec.Get("doi"))
	// Cleanup passes only run while the record is freshly retrieved.
	assert.Equal(t, "kept {as} is.", rec.Get("title"))
}

// --- field value cleanup ---

func TestRunUnescapesValues(t *testing.T) {
	cases := []struct {
		name  string
		field string
		in    string
		want  string
	}{
		{"latex umlaut", "author", `M\"uller, Klaus`, "Müller, Klaus"},
		{"latex ampersand", "journal", `Organization \& Management`, "Organization & Management"},
		{"latex emph dropped", "title", `On \emph{agile} teams`, "On agile teams"},
		{"html entity", "title", "Work &amp; play", "Work & play"},
		{"html tags stripped", "abstract", "We <i>argue</i> that", "We argue that"},
		{"braces stripped", "title", "The {IT} artifact", "The IT artifact"},
		{"newlines joined", "abstract", "line one\nline two", "line one line two"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := retrieved(map[string]string{tc.field: tc.in})
			New().Run(rec)
			assert.Equal(t, tc.want, rec.Get(tc.field))
		})
	}
}

func TestRunLeavesUnprocessedFieldsAlone(t *testing.T) {
	rec := retrieved(map[string]string{"note": `kept \& raw {here}`})
	New().Run(rec)
	assert.Equal(t, `kept \& raw {here}`, rec.Get("note"))
}

func TestRunLowerCasesFieldKeys(t *testing.T) {
	rec := &types.Record{ID: "Smith2020", Type: "article", Status: types.StatusMdRetrieved}
	rec.Set("Title", "Digital Work")
	rec.Set("Url", "https://example.org")
	New().Run(rec)

	assert.Equal(t, "Digital Work", rec.Get("title"))
	assert.Equal(t, "https://example.org", rec.Get("url"))
	assert.False(t, rec.Has("Title"))
}

// --- standardization ---

func TestRunStandardizesValues(t *testing.T) {
	rec := retrieved(map[string]string{
		"title": "A  study of   platforms.",
		"year":  "2019.0",
		"pages": "101-110",
	})
	New().Run(rec)

	assert.Equal(t, "A study of platforms", rec.Get("title"))
	assert.Equal(t, "2019", rec.Get("year"))
	assert.Equal(t, "101--110", rec.Get("pages"))
}

func TestRunPagesVariants(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12–19", "12--19"},
		{"12--19", "12--19"},
		{"7", "7"},
	}
	for _, tc := range cases {
		rec := retrieved(map[string]string{"pages": tc.in})
		New().Run(rec)
		assert.Equal(t, tc.want, rec.Get("pages"), tc.in)
	}
}

func TestRunDropsUnusableValues(t *testing.T) {
	rec := retrieved(map[string]string{
		"pages":  "n.pag",
		"volume": "ahead-of-print",
		"number": "ahead-of-print",
	})
	New().Run(rec)

	assert.False(t, rec.Has("pages"))
	assert.False(t, rec.Has("volume"))
	assert.False(t, rec.Has("number"))
}

func TestRunStripsProxyURLPrefix(t *testing.T) {
	rec := retrieved(map[string]string{
		"url": "https://proxy.example.edu/login?url=https://doi.org/10.1/x",
	})
	New().Run(rec)
	assert.Equal(t, "https://doi.org/10.1/x", rec.Get("url"))
}
