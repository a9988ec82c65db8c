// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/pkg/types"
)

// maxReportLines bounds how much of the report log a commit message quotes.
const maxReportLines = 100

// CommitOptions controls one operation commit.
type CommitOptions struct {
	// Message is the commit title, mandatory.
	Message string

	// Report, when set, contributes its accumulated lines to the commit
	// body so the history documents what the operation did.
	Report *logging.Report

	// SkipHooks bypasses pre-commit hooks; validation-only commits use it
	// to avoid recursing into the engine.
	SkipHooks bool

	// ExtraPaths are staged in addition to the standard project files.
	ExtraPaths []string
}

// AddRecordChanges stages the records file, waiting for a concurrent git
// operation to release the index first.
func (d *Dataset) AddRecordChanges(ctx context.Context) error {
	return d.git.Add(ctx, d.RecordsRel())
}

// AddChanges stages the given repository-relative paths.
func (d *Dataset) AddChanges(ctx context.Context, paths ...string) error {
	return d.git.Add(ctx, paths...)
}

// CreateCommit stages the project files touched by an operation and
// commits them with the report attached. It returns false without error
// when there is nothing to commit; a pending report is discarded in that
// case so its lines are not misattributed to a later commit.
func (d *Dataset) CreateCommit(ctx context.Context, opts CommitOptions) (bool, error) {
	if opts.Message == "" {
		return false, fmt.Errorf("creating commit: empty message")
	}

	paths := []string{}
	for _, rel := range append([]string{
		d.cfg.Paths.RecordsFile,
		d.cfg.Paths.SearchDir,
		types.SettingsFile,
	}, opts.ExtraPaths...) {
		if _, err := os.Stat(filepath.Join(d.root, rel)); err == nil {
			paths = append(paths, rel)
		}
	}
	if len(paths) > 0 {
		if err := d.git.Add(ctx, paths...); err != nil {
			return false, err
		}
	}

	staged, err := d.git.HasStagedChanges(ctx)
	if err != nil {
		return false, err
	}
	if !staged {
		if opts.Report != nil {
			_ = opts.Report.Reset()
		}
		return false, nil
	}

	message := opts.Message
	if opts.Report != nil {
		if tail, err := opts.Report.Tail(); err == nil && tail != "" {
			message += "\n\nReport:\n" + truncateReport(tail)
		}
	}

	if err := d.git.WaitForIndexLock(ctx); err != nil {
		return false, err
	}
	if err := d.git.Commit(ctx, message, opts.SkipHooks); err != nil {
		return false, err
	}
	return true, nil
}

// truncateReport caps the quoted report at maxReportLines.
func truncateReport(tail string) string {
	lines := strings.Split(tail, "\n")
	if len(lines) <= maxReportLines {
		return tail
	}
	return strings.Join(lines[:maxReportLines], "\n") + "\n(report truncated)"
}
