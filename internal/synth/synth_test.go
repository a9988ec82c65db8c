// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synth

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/dataset"
	"github.com/pdiddy/review-engine/pkg/types"
)

// newSynthDataset builds a git-backed project holding the given records.
func newSynthDataset(t *testing.T, recs ...*types.Record) *dataset.Dataset {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not installed: %v", err)
	}

	root := t.TempDir()
	settings := types.DefaultSettings()
	if err := settings.SaveSettings(filepath.Join(root, types.SettingsFile)); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "data", "search"), 0o755); err != nil {
		t.Fatal(err)
	}

	d, err := dataset.Open(root, types.DefaultEngineConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Git().Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	gitRun(t, root, "config", "user.email", "dev@example.org")
	gitRun(t, root, "config", "user.name", "Dev")

	if len(recs) > 0 {
		list := bib.NewRecordList()
		for _, rec := range recs {
			if err := list.Add(rec); err != nil {
				t.Fatal(err)
			}
		}
		if err := d.Save(list); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func gitRun(t *testing.T, root string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}

func record(id string, status types.Status) *types.Record {
	rec := types.NewRecord(id, "article")
	rec.Status = status
	rec.Origins = []string{"test_api.bib/" + id}
	return rec
}

func runSynth(t *testing.T, d *dataset.Dataset) (Summary, string) {
	t.Helper()
	out := &bytes.Buffer{}
	summary, err := New(d, Options{Progress: out}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return summary, out.String()
}

func manuscriptPath(d *dataset.Dataset) string {
	return filepath.Join(d.Root(), "data", "paper.md")
}

func readManuscript(t *testing.T, d *dataset.Dataset) string {
	t.Helper()
	data, err := os.ReadFile(manuscriptPath(d))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func seedManuscript(t *testing.T, d *dataset.Dataset, content string) {
	t.Helper()
	if err := os.WriteFile(manuscriptPath(d), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunCreatesManuscript(t *testing.T) {
	d := newSynthDataset(t, record("WebsterWatson2002", types.StatusRevIncluded))

	summary, out := runSynth(t, d)

	if summary.Added != 1 || summary.Synthesized != 0 || summary.Pending != 1 {
		t.Fatalf("summary = %+v, want 1 added, 0 synthesized, 1 pending", summary)
	}
	content := readManuscript(t, d)
	if !strings.HasPrefix(content, "---\n") {
		t.Errorf("manuscript missing frontmatter:\n%s", content)
	}
	for _, want := range []string{
		"title: Literature Review",
		"bibliography: records.bib",
		newRecordMarker,
		"- [WebsterWatson2002]",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("manuscript missing %q:\n%s", want, content)
		}
	}
	if strings.Index(content, "- [WebsterWatson2002]") < strings.Index(content, newRecordMarker) {
		t.Error("pending entry should sit below the marker")
	}
	if !strings.Contains(out, "created data/paper.md") {
		t.Errorf("progress missing creation line:\n%s", out)
	}
	if !strings.Contains(gitRun(t, d.Root(), "log", "--oneline"), "Data and synthesis") {
		t.Error("expected a data commit in the log")
	}
}

func TestRunUsesProjectTitle(t *testing.T) {
	d := newSynthDataset(t, record("Lee2019", types.StatusRevIncluded))
	d.Settings().Project.Title = "Trust in Virtual Teams"

	runSynth(t, d)

	if !strings.Contains(readManuscript(t, d), "title: Trust in Virtual Teams") {
		t.Error("manuscript should carry the project title")
	}
}

func TestRunAdvancesCitedRecord(t *testing.T) {
	d := newSynthDataset(t, record("WebsterWatson2002", types.StatusRevIncluded))
	seedManuscript(t, d, "# Synthesis\n\nAs [WebsterWatson2002] argues, theory matters.\n\n"+
		newRecordMarker+"\n")

	summary, out := runSynth(t, d)

	if summary.Synthesized != 1 || summary.Added != 0 || summary.Pending != 0 {
		t.Fatalf("summary = %+v, want 1 synthesized", summary)
	}
	list, err := d.Load()
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := list.Get("WebsterWatson2002")
	if !ok {
		t.Fatal("record missing after run")
	}
	if rec.Status != types.StatusRevSynthesized {
		t.Errorf("Status = %q, want %q", rec.Status, types.StatusRevSynthesized)
	}
	if !strings.Contains(out, "synthesized: WebsterWatson2002") {
		t.Errorf("progress missing synthesis line:\n%s", out)
	}
}

func TestRunKeepsUncitedRecordPending(t *testing.T) {
	d := newSynthDataset(t, record("Mills2017", types.StatusRevIncluded))
	seedManuscript(t, d, "# Synthesis\n\n"+newRecordMarker+"\n- [Mills2017]\n")

	summary, _ := runSynth(t, d)

	if summary.Added != 0 || summary.Synthesized != 0 || summary.Pending != 1 {
		t.Fatalf("summary = %+v, want 1 pending", summary)
	}
	list, err := d.Load()
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := list.Get("Mills2017")
	if rec.Status != types.StatusRevIncluded {
		t.Errorf("Status = %q, want unchanged %q", rec.Status, types.StatusRevIncluded)
	}
}

func TestRunMovedCitationCompletesLifecycle(t *testing.T) {
	d := newSynthDataset(t, record("Lee2019", types.StatusRevIncluded))

	summary, _ := runSynth(t, d)
	if summary.Added != 1 {
		t.Fatalf("first run added = %d, want 1", summary.Added)
	}

	// The author works the record into the text above the marker.
	content := readManuscript(t, d)
	content = strings.Replace(content, "- [Lee2019]", "", 1)
	content = strings.Replace(content, newRecordMarker,
		"The framework in [Lee2019] guides the analysis.\n\n"+newRecordMarker, 1)
	seedManuscript(t, d, content)

	summary, _ = runSynth(t, d)
	if summary.Synthesized != 1 || summary.Added != 0 || summary.Pending != 0 {
		t.Fatalf("second run summary = %+v, want 1 synthesized", summary)
	}
}

func TestRunIgnoresRecordsOutsideInclusion(t *testing.T) {
	d := newSynthDataset(t,
		record("Imported2020", types.StatusMdImported),
		record("Screened2021", types.StatusPdfPrepared),
		record("Done2019", types.StatusRevSynthesized),
	)

	summary, _ := runSynth(t, d)

	if summary.Added != 0 || summary.Synthesized != 0 || summary.Pending != 0 {
		t.Fatalf("summary = %+v, want all zero", summary)
	}
	if strings.Contains(readManuscript(t, d), "- [") {
		t.Error("manuscript should have no pending entries")
	}
}

func TestScanManuscript(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantCited   []string
		wantPending []string
	}{
		{
			name:      "citation in text",
			content:   "Prior work [Webster2002] applies.\n" + newRecordMarker + "\n",
			wantCited: []string{"Webster2002"},
		},
		{
			name:        "bullet below marker is pending",
			content:     newRecordMarker + "\n- [Webster2002]\n",
			wantPending: []string{"Webster2002"},
		},
		{
			name:      "annotated bullet counts as written",
			content:   newRecordMarker + "\n- [Webster2002] covers the background\n",
			wantCited: []string{"Webster2002"},
		},
		{
			name:      "prose below marker counts as written",
			content:   newRecordMarker + "\nLater sections build on [Lee2019].\n",
			wantCited: []string{"Lee2019"},
		},
		{
			name:      "multi-citation bullet counts as written",
			content:   newRecordMarker + "\n- [A2020; B2021]\n",
			wantCited: []string{"A2020", "B2021"},
		},
		{
			name:      "bullet above marker counts as written",
			content:   "- [Moved2018]\n" + newRecordMarker + "\n",
			wantCited: []string{"Moved2018"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cited, pending := scanManuscript(tt.content)
			if len(cited) != len(tt.wantCited) {
				t.Errorf("cited = %v, want %v", cited, tt.wantCited)
			}
			for _, key := range tt.wantCited {
				if !cited[key] {
					t.Errorf("cited missing %q", key)
				}
			}
			if len(pending) != len(tt.wantPending) {
				t.Errorf("pending = %v, want %v", pending, tt.wantPending)
			}
			for _, key := range tt.wantPending {
				if !pending[key] {
					t.Errorf("pending missing %q", key)
				}
			}
		})
	}
}

func TestAppendPending(t *testing.T) {
	fresh := "# Synthesis\n\n" + newRecordMarker + "\n"
	tests := []struct {
		name    string
		content string
		ids     []string
		want    string
	}{
		{
			name:    "fresh manuscript",
			content: fresh,
			ids:     []string{"A2020"},
			want:    "# Synthesis\n\n" + newRecordMarker + "\n- [A2020]\n",
		},
		{
			name:    "appends after existing entries",
			content: "# Synthesis\n\n" + newRecordMarker + "\n- [A2020]\n",
			ids:     []string{"B2021"},
			want:    "# Synthesis\n\n" + newRecordMarker + "\n- [A2020]\n- [B2021]\n",
		},
		{
			name:    "no ids leaves content alone",
			content: fresh,
			ids:     nil,
			want:    fresh,
		},
		{
			name:    "missing marker is repaired",
			content: "# Synthesis\n",
			ids:     []string{"A2020"},
			want:    "# Synthesis\n\n" + newRecordMarker + "\n- [A2020]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := appendPending(tt.content, tt.ids)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractCitationKeys(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single citation",
			text: "Theory building [WebsterWatson2002] remains central.",
			want: []string{"WebsterWatson2002"},
		},
		{
			name: "multi-citation",
			text: "Several reviews [WebsterWatson2002; Lee2019] agree.",
			want: []string{"WebsterWatson2002", "Lee2019"},
		},
		{
			name: "markdown link ignored",
			text: "See [the protocol](https://example.org/protocol).",
			want: nil,
		},
		{
			name: "checkbox ignored",
			text: "- [ ] screen remaining records",
			want: nil,
		},
		{
			name: "plain words ignored",
			text: "[sic] and [emphasis added]",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractCitationKeys(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i, want := range tt.want {
				if got[i] != want {
					t.Errorf("got[%d] = %q, want %q", i, got[i], want)
				}
			}
		})
	}
}
