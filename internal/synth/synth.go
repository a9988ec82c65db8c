// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synth tracks which included records made it into the review
// manuscript. The manuscript (data/paper.md) carries a marker line under
// which every newly included record is appended as a pending citation;
// once the author works a record into the text and its citation appears
// outside the pending block, the record is synthesized and finishes its
// lifecycle.
package synth

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/review-engine/internal/dataset"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/pkg/types"
)

// manuscriptFile is the manuscript location relative to the project root.
const manuscriptFile = "data/paper.md"

// newRecordMarker separates the written manuscript from the block of
// records still awaiting synthesis. Pending citations live below it.
const newRecordMarker = "<!-- NEW_RECORD_SOURCE -->"

// citationPattern matches inline citations: [Key] or [Key1; Key2].
var citationPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// Options configure one synthesis run.
type Options struct {
	// Progress receives status lines. Defaults to io.Discard.
	Progress io.Writer
}

// Summary holds the outcome of a synthesis run.
type Summary struct {
	// Added counts records newly appended to the pending block.
	Added int

	// Synthesized counts records advanced to rev_synthesized this run.
	Synthesized int

	// Pending counts records still awaiting synthesis after the run.
	Pending int
}

// Synth is the data operation over the manuscript.
type Synth struct {
	d        *dataset.Dataset
	progress io.Writer
}

// New sets up the synthesis operation over a dataset.
func New(d *dataset.Dataset, opts Options) *Synth {
	s := &Synth{d: d, progress: opts.Progress}
	if s.progress == nil {
		s.progress = io.Discard
	}
	return s
}

// Run creates the manuscript if needed, appends newly included records to
// its pending block, and advances records cited in the written text to
// rev_synthesized. The manuscript and record changes go into one commit.
func (s *Synth) Run(ctx context.Context) (Summary, error) {
	report, err := logging.NewReport(s.d.ReportPath(), types.OpData)
	if err != nil {
		return Summary{}, err
	}
	defer report.Close()

	list, err := s.d.Load()
	if err != nil {
		return Summary{}, err
	}

	content, created, err := s.readOrCreateManuscript()
	if err != nil {
		return Summary{}, err
	}
	if created {
		fmt.Fprintf(s.progress, "created %s\n", manuscriptFile)
		report.Infof("created %s", manuscriptFile)
	}

	cited, pending := scanManuscript(content)

	var summary Summary
	var toAppend []string
	var advanced []*types.Record
	for _, rec := range list.Records() {
		if rec.Status != types.StatusRevIncluded {
			continue
		}
		switch {
		case cited[rec.ID]:
			rec.Status = types.StatusRevSynthesized
			advanced = append(advanced, rec)
			fmt.Fprintf(s.progress, " synthesized: %s\n", rec.ID)
			report.Infof("synthesized %s", rec.ID)
		case !pending[rec.ID]:
			toAppend = append(toAppend, rec.ID)
			fmt.Fprintf(s.progress, " added: %s (to synthesize)\n", rec.ID)
			report.Infof("added %s to the pending block", rec.ID)
		}
	}

	if len(toAppend) > 0 || created {
		content = appendPending(content, toAppend)
		if err := s.writeManuscript(content); err != nil {
			return Summary{}, err
		}
	}
	if len(advanced) > 0 {
		if err := s.d.SaveRecords(advanced...); err != nil {
			return Summary{}, err
		}
	}

	summary.Added = len(toAppend)
	summary.Synthesized = len(advanced)
	_, stillPending := scanManuscript(content)
	for _, rec := range list.Records() {
		if rec.Status == types.StatusRevIncluded && stillPending[rec.ID] {
			summary.Pending++
		}
	}

	fmt.Fprintf(s.progress, "\nsynthesis summary: %d added, %d synthesized, %d pending\n",
		summary.Added, summary.Synthesized, summary.Pending)
	report.Infof("synthesis summary: %d added, %d synthesized, %d pending",
		summary.Added, summary.Synthesized, summary.Pending)

	_, err = s.d.CreateCommit(ctx, dataset.CommitOptions{
		Message:    "Data and synthesis",
		Report:     report,
		ExtraPaths: []string{manuscriptFile},
	})
	return summary, err
}

// manuscriptMeta is the YAML frontmatter of a fresh manuscript.
type manuscriptMeta struct {
	Title        string `yaml:"title"`
	Bibliography string `yaml:"bibliography"`
}

// readOrCreateManuscript returns the manuscript content, creating the
// file with frontmatter and the pending-block marker when missing.
func (s *Synth) readOrCreateManuscript() (content string, created bool, err error) {
	path := filepath.Join(s.d.Root(), filepath.FromSlash(manuscriptFile))
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), false, nil
	}
	if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("reading manuscript: %w", err)
	}

	title := s.d.Settings().Project.Title
	if title == "" {
		title = "Literature Review"
	}
	meta, err := yaml.Marshal(manuscriptMeta{
		Title:        title,
		Bibliography: "records.bib",
	})
	if err != nil {
		return "", false, fmt.Errorf("building manuscript frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	b.WriteString("# Synthesis\n\n")
	b.WriteString(newRecordMarker + "\n")
	return b.String(), true, nil
}

func (s *Synth) writeManuscript(content string) error {
	path := filepath.Join(s.d.Root(), filepath.FromSlash(manuscriptFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manuscript directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing manuscript: %w", err)
	}
	return nil
}

// scanManuscript splits citations into written and pending. Bullet lines
// holding a single citation below the marker form the pending block;
// every other citation counts as written text.
func scanManuscript(content string) (cited, pending map[string]bool) {
	cited = map[string]bool{}
	pending = map[string]bool{}

	below := false
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == newRecordMarker {
			below = true
			continue
		}
		keys := extractCitationKeys(line)
		if below && isPendingBullet(line, keys) {
			pending[keys[0]] = true
			continue
		}
		for _, key := range keys {
			cited[key] = true
		}
	}
	return cited, pending
}

// isPendingBullet reports whether the line is a bare pending entry: a
// bullet holding exactly one citation and nothing else.
func isPendingBullet(line string, keys []string) bool {
	trimmed := strings.TrimSpace(line)
	return len(keys) == 1 && trimmed == "- ["+keys[0]+"]"
}

// appendPending adds the ids as bullet entries at the end of the pending
// block, directly after the marker and any entries already there.
func appendPending(content string, ids []string) string {
	if len(ids) == 0 {
		return content
	}

	lines := strings.Split(content, "\n")
	insert := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == newRecordMarker {
			insert = i + 1
			continue
		}
		if insert >= 0 && strings.HasPrefix(trimmed, "- [") {
			insert = i + 1
		}
	}
	if insert < 0 {
		// No marker; repair by appending the block at the end.
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
		lines = append(lines, "", newRecordMarker, "")
		insert = len(lines) - 1
	}

	entries := make([]string, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, "- ["+id+"]")
	}

	out := make([]string, 0, len(lines)+len(entries))
	out = append(out, lines[:insert]...)
	out = append(out, entries...)
	out = append(out, lines[insert:]...)
	return strings.Join(out, "\n")
}

// extractCitationKeys finds all citation keys in text, splitting
// multi-citations [Key1; Key2] on semicolons.
func extractCitationKeys(text string) []string {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	var keys []string
	for _, m := range matches {
		for _, part := range strings.Split(m[1], ";") {
			key := strings.TrimSpace(part)
			if key != "" && isCitationKey(key) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// isCitationKey checks whether a string looks like a citation key. It
// rejects Markdown links, image references, and other bracket content:
// keys are alphanumeric with hyphens or underscores and carry at least
// one letter and one digit.
func isCitationKey(s string) bool {
	hasLetter := false
	hasDigit := false
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			hasLetter = true
		case c >= '0' && c <= '9':
			hasDigit = true
		case c == '-', c == '_':
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}
