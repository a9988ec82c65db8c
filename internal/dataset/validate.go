// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/review-engine/internal/status"
)

// scanIgnore marks path elements excluded from the propagated-id search.
var scanIgnore = []string{".git", "report.log", ".pre-commit-config.yaml"}

// scanFormats are the text formats searched for propagated identifiers.
var scanFormats = []string{".txt", ".csv", ".md", ".bib", ".yaml"}

// Validate runs the full integrity pass over the working store: duplicate
// identifiers, origin invariants, field values, status transitions against
// the last committed version, screening criteria, and persisted-identifier
// stability. It returns every violation found, in check order.
func (d *Dataset) Validate(ctx context.Context) []error {
	var prior status.Prior
	if d.git.IsRepository(ctx) {
		p, err := d.RetrievePrior(ctx)
		if err != nil {
			return []error{err}
		}
		prior = p
	} else {
		prior = status.PriorFromHeaders(nil)
	}

	items, err := d.LoadHeaders()
	if err != nil {
		return []error{err}
	}
	known, err := d.KnownOrigins()
	if err != nil {
		return []error{err}
	}

	snap := status.Collect(items, prior, d.root)

	var problems []error
	appendErr := func(err error) {
		if err != nil {
			problems = append(problems, err)
		}
	}
	appendErr(snap.CheckDuplicates())
	appendErr(snap.CheckOrigins(known))
	appendErr(snap.CheckFields())
	appendErr(snap.CheckTransitions())
	appendErr(snap.CheckScreening(d.CriteriaNames()))
	appendErr(status.CheckPersistedIDs(prior, snap, d.PropagatedIDScan))
	return problems
}

// CriteriaNames returns the screening criterion names from the settings in
// stable order.
func (d *Dataset) CriteriaNames() []string {
	names := make([]string, 0, len(d.settings.Screen.Criteria))
	for name := range d.settings.Screen.Criteria {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PropagatedIDScan searches the working tree for references to a record
// identifier that is about to change or has changed. The search is a
// substring match over file names and common text formats; it trades
// precision for not requiring knowledge of every downstream artifact.
func (d *Dataset) PropagatedIDScan(priorID, newID string) []string {
	var notifications []string
	seen := map[string]bool{}
	notify := func(msg string) {
		if !seen[msg] {
			seen[msg] = true
			notifications = append(notifications, msg)
		}
	}

	_ = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := entry.Name()
		for _, pattern := range scanIgnore {
			if strings.Contains(name, pattern) {
				if entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		rel, relErr := filepath.Rel(d.root, path)
		if relErr != nil {
			rel = path
		}
		if strings.Contains(name, priorID) {
			notify(fmt.Sprintf("old ID %s (changed to %s) found in path: %s", priorID, newID, rel))
		}
		if entry.IsDir() {
			return nil
		}
		if !textFormat(name) {
			return nil
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			if strings.Contains(sc.Text(), priorID) {
				notify(fmt.Sprintf("old ID %s (changed to %s) found in file: %s", priorID, newID, rel))
				break
			}
		}
		return nil
	})
	return notifications
}

func textFormat(name string) bool {
	for _, ext := range scanFormats {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
