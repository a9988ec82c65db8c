// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "testing"

func TestParseProvenanceMap(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]Provenance
	}{
		{
			"single entry with note",
			"author:crossref.org;language-unknown;",
			map[string]Provenance{"author": {Source: "crossref.org", Note: "language-unknown"}},
		},
		{
			"single entry empty note",
			"title:dblp.org;;",
			map[string]Provenance{"title": {Source: "dblp.org", Note: ""}},
		},
		{
			"two entries",
			"author:crossref.org;checked;; title:dblp.org;;",
			map[string]Provenance{
				"author": {Source: "crossref.org", Note: "checked"},
				"title":  {Source: "dblp.org", Note: ""},
			},
		},
		{
			"curated",
			"CURATED:https://github.com/example/curation;;",
			map[string]Provenance{Curated: {Source: "https://github.com/example/curation", Note: ""}},
		},
		{
			// Legacy two-segment form: trailing note separator missing.
			"legacy missing note terminator",
			"CURATED:https://github.com/example/curation",
			map[string]Provenance{Curated: {Source: "https://github.com/example/curation", Note: ""}},
		},
		{
			// Legacy one-segment form: source and note missing.
			"legacy bare key",
			"CURATED",
			map[string]Provenance{Curated: {Source: "", Note: ""}},
		},
		{
			"source containing colon",
			"year:https://doi.org/10.17705/1:check;",
			map[string]Provenance{"year": {Source: "https://doi.org/10.17705/1:check", Note: ""}},
		},
		{
			"empty input",
			"",
			map[string]Provenance{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProvenanceMap(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseProvenanceMap(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, want := range tt.want {
				if got[k] != want {
					t.Errorf("ParseProvenanceMap(%q)[%s] = %+v, want %+v", tt.raw, k, got[k], want)
				}
			}
		})
	}
}

func TestProvenanceMapEncode(t *testing.T) {
	m := ProvenanceMap{
		"title":  {Source: "dblp.org", Note: ""},
		"author": {Source: "crossref.org", Note: "checked"},
	}
	want := "author:crossref.org;checked;; title:dblp.org;;"
	if got := m.Encode(); got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestProvenanceMapEncodeCuratedFirst(t *testing.T) {
	m := ProvenanceMap{
		"author": {Source: "crossref.org", Note: ""},
		Curated:  {Source: "https://github.com/example/curation", Note: ""},
	}
	want := "CURATED:https://github.com/example/curation;;; author:crossref.org;;"
	if got := m.Encode(); got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestProvenanceRoundTrip(t *testing.T) {
	m := ProvenanceMap{
		"author": {Source: "crossref.org", Note: "incomplete"},
		"year":   {Source: "pubmed", Note: ""},
	}
	got := ParseProvenanceMap(m.Encode())
	if len(got) != len(m) {
		t.Fatalf("round trip changed entry count: %v", got)
	}
	for k, want := range m {
		if got[k] != want {
			t.Errorf("round trip [%s] = %+v, want %+v", k, got[k], want)
		}
	}
}

func TestProvenanceCurated(t *testing.T) {
	m := ParseProvenanceMap("CURATED:https://example.org/repo;;")
	if !m.Curated() {
		t.Error("Curated() = false, want true")
	}
	if got := m.CuratedSource(); got != "https://example.org/repo" {
		t.Errorf("CuratedSource() = %q", got)
	}

	empty := ProvenanceMap{}
	if empty.Curated() {
		t.Error("empty map reports curated")
	}
}
