// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SettingsFile)

	s := DefaultSettings()
	s.Project.Title = "Digital Platforms Review"
	s.Sources = append(s.Sources, SearchSource{
		Endpoint:   "pubmed",
		Filename:   "data/search/pubmed.bib",
		SearchType: SearchTypeAPI,
		SearchParameters: map[string]any{
			"query": "digital platforms",
		},
	})
	s.Screen.Criteria["empirical"] = ScreenCriterion{
		Explanation:   "Study reports empirical data",
		CriterionType: "inclusion_criterion",
	}
	require.NoError(t, s.SaveSettings(path))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "Digital Platforms Review", loaded.Project.Title)
	assert.Equal(t, IDPatternThreeAuthorsYear, loaded.Project.IDPattern)
	require.Len(t, loaded.Sources, 1)
	assert.Equal(t, "pubmed", loaded.Sources[0].Endpoint)
	assert.Equal(t, "digital platforms", loaded.Sources[0].SearchParameters["query"])
	assert.Contains(t, loaded.Screen.Criteria, "empirical")
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	assert.Error(t, err)
}

func TestSourceOriginPrefix(t *testing.T) {
	s := SearchSource{Filename: "data/search/pubmed.bib"}
	assert.Equal(t, "pubmed.bib", s.OriginPrefix())

	s = SearchSource{Filename: "md_curated.bib"}
	assert.Equal(t, "md_curated.bib", s.OriginPrefix())
}

func TestSourceByPrefix(t *testing.T) {
	s := DefaultSettings()
	s.Sources = []SearchSource{
		{Endpoint: "pubmed", Filename: "data/search/pubmed.bib"},
		{Endpoint: "dblp", Filename: "data/search/dblp.bib"},
	}

	src := s.SourceByPrefix("dblp.bib")
	require.NotNil(t, src)
	assert.Equal(t, "dblp", src.Endpoint)

	assert.Nil(t, s.SourceByPrefix("scopus.bib"))
}
