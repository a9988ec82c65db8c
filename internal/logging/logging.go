// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging configures the engine's two log surfaces: the global
// structured logger for diagnostics, and the per-operation report log that
// is written next to the record store and quoted in commit messages.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Init builds the global zap logger from config and installs it via
// zap.ReplaceGlobals. User-facing progress output does not go through
// zap; operations print to an io.Writer handed in by the caller.
func Init(cfg types.LogConfig) error {
	zapCfg := zap.NewProductionConfig()

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level.SetLevel(level)
	zapCfg.DisableStacktrace = true

	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// Report is the per-operation report log. Every operation run truncates
// the file, writes a header identifying the run, and appends one line per
// reportable event; CreateCommit reads the accumulated lines back into the
// commit message so the review history documents what each commit did.
type Report struct {
	path  string
	runID uuid.UUID
	op    types.Operation

	file   *os.File
	logger *zap.Logger
}

// NewReport starts a report log for one operation run at path, replacing
// any previous report.
func NewReport(path string, op types.Operation) (*Report, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening report log: %w", err)
	}

	r := &Report{
		path:  path,
		runID: uuid.New(),
		op:    op,
		file:  f,
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(f),
		zapcore.InfoLevel,
	)
	r.logger = zap.New(core).With(
		zap.String("run", r.runID.String()),
		zap.String("operation", string(op)),
	)

	r.logger.Info("operation started")
	return r, nil
}

// RunID returns the unique identifier of this operation run.
func (r *Report) RunID() string {
	return r.runID.String()
}

// Logger returns the zap logger writing into the report file.
func (r *Report) Logger() *zap.Logger {
	return r.logger
}

// Infof appends a formatted event line to the report.
func (r *Report) Infof(format string, args ...any) {
	r.logger.Info(fmt.Sprintf(format, args...))
}

// Tail returns the report content accumulated so far, trimmed, for
// inclusion in a commit message.
func (r *Report) Tail() (string, error) {
	if err := r.logger.Sync(); err != nil {
		// Sync failures on regular files are unexpected but the content
		// already written remains readable.
		_ = err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("reading report log: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Reset truncates the report, keeping the run open. Used when an
// operation turns out to be a no-op so that stale report lines are not
// attached to a later commit.
func (r *Report) Reset() error {
	if err := r.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating report log: %w", err)
	}
	if _, err := r.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewinding report log: %w", err)
	}
	return nil
}

// Close flushes and closes the report file.
func (r *Report) Close() error {
	if err := r.logger.Sync(); err != nil {
		_ = err
	}
	return r.file.Close()
}
