// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bib

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// PatchOptions controls how patch operations treat targets that cannot be
// located in the store.
type PatchOptions struct {
	// AllowMissing reports unlocated targets in PatchResult.Missing
	// instead of returning a NotFoundError.
	AllowMissing bool
}

// PatchResult reports the outcome of a patch operation per requested
// identifier. Patched follows store order; Missing is sorted.
type PatchResult struct {
	Patched []string
	Missing []string
}

// NotFoundError reports patch targets that were not found in the store.
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("records not found in store: %s", strings.Join(e.IDs, ", "))
}

// ReplaceRecord rewrites a single entry in place. A nil record deletes the
// entry. Bytes outside the entry's range are not rewritten unless the
// replacement length differs, in which case the tail of the file is moved.
func ReplaceRecord(path, id string, rec *types.Record, opts PatchOptions) (PatchResult, error) {
	return ReplaceRecords(path, map[string]*types.Record{id: rec}, opts)
}

// ReplaceRecords rewrites the entries named by the map keys in a single
// pass over the store. A nil map value deletes the entry. Entries not named
// in the map keep their exact bytes.
func ReplaceRecords(path string, replacements map[string]*types.Record, opts PatchOptions) (PatchResult, error) {
	var result PatchResult
	if len(replacements) == 0 {
		return result, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return result, fmt.Errorf("opening records store: %w", err)
	}
	defer f.Close()

	pending := make(map[string]bool, len(replacements))
	for id := range replacements {
		pending[id] = true
	}

	lr := newLineReader(f)
	for len(pending) > 0 {
		line, start, err := lr.readLine()
		if len(line) == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			return result, fmt.Errorf("scanning records store: %w", err)
		}
		if !isEntryStart(line) {
			if err == io.EOF {
				break
			}
			continue
		}
		id := entryIdentifierBytes(line)
		if !pending[id] {
			if err == io.EOF {
				break
			}
			continue
		}
		delete(pending, id)

		end, hasNext, err := lr.skipEntry()
		if err != nil {
			return result, fmt.Errorf("scanning entry %s: %w", id, err)
		}
		var replacement []byte
		if rec := replacements[id]; rec != nil {
			replacement = EncodeRecord(rec)
			if hasNext {
				replacement = append(replacement, '\n')
			}
		} else if !hasNext {
			s, err := separatorStart(f, start)
			if err != nil {
				return result, fmt.Errorf("patching entry %s: %w", id, err)
			}
			start = s
		}
		if err := patchRange(f, start, end, replacement); err != nil {
			return result, fmt.Errorf("patching entry %s: %w", id, err)
		}
		result.Patched = append(result.Patched, id)

		if len(pending) == 0 {
			break
		}
		if err := lr.resetAt(start + int64(len(replacement))); err != nil {
			return result, fmt.Errorf("repositioning after patch: %w", err)
		}
	}

	return finishPatch(result, pending, opts)
}

// ReplaceField rewrites the value of one field line for each of the given
// records, preserving the store's byte layout elsewhere. Records without a
// matching field line are reported as missing.
func ReplaceField(path string, ids []string, key, value string, opts PatchOptions) (PatchResult, error) {
	var result PatchResult
	if len(ids) == 0 {
		return result, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return result, fmt.Errorf("opening records store: %w", err)
	}
	defer f.Close()

	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	replacement := []byte(fieldLine(key, value) + ",\n")

	lr := newLineReader(f)
	currentID := ""
	for len(pending) > 0 {
		line, start, err := lr.readLine()
		if len(line) == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			return result, fmt.Errorf("scanning records store: %w", err)
		}
		if isEntryStart(line) {
			currentID = entryIdentifierBytes(line)
			continue
		}
		if !pending[currentID] || fieldLineKey(line) != key {
			if err == io.EOF {
				break
			}
			continue
		}
		if err := patchRange(f, start, start+int64(len(line)), replacement); err != nil {
			return result, fmt.Errorf("patching field %s of %s: %w", key, currentID, err)
		}
		delete(pending, currentID)
		result.Patched = append(result.Patched, currentID)

		if len(pending) == 0 {
			break
		}
		if err := lr.resetAt(start + int64(len(replacement))); err != nil {
			return result, fmt.Errorf("repositioning after patch: %w", err)
		}
	}

	return finishPatch(result, pending, opts)
}

func finishPatch(result PatchResult, pending map[string]bool, opts PatchOptions) (PatchResult, error) {
	for id := range pending {
		result.Missing = append(result.Missing, id)
	}
	sort.Strings(result.Missing)
	if len(result.Missing) > 0 && !opts.AllowMissing {
		return result, &NotFoundError{IDs: result.Missing}
	}
	return result, nil
}

// separatorStart pulls a delete range's start back over the preceding
// blank separator line, so removing the final entry leaves no trailing
// blank line.
func separatorStart(f *os.File, start int64) (int64, error) {
	if start < 2 {
		return start, nil
	}
	var sep [2]byte
	if _, err := f.ReadAt(sep[:], start-2); err != nil {
		return 0, err
	}
	if sep[0] == '\n' && sep[1] == '\n' {
		return start - 1, nil
	}
	return start, nil
}

// patchRange replaces the bytes in [start, end). Same-length replacements
// are written in place; otherwise the tail is buffered, the file is
// rewritten from start, and the length adjusted.
func patchRange(f *os.File, start, end int64, replacement []byte) error {
	if int64(len(replacement)) == end-start {
		if _, err := f.WriteAt(replacement, start); err != nil {
			return err
		}
		return f.Sync()
	}

	if _, err := f.Seek(end, io.SeekStart); err != nil {
		return err
	}
	tail, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(replacement); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if _, err := f.Write(tail); err != nil {
		return err
	}
	if err := f.Truncate(start + int64(len(replacement)) + int64(len(tail))); err != nil {
		return err
	}
	return f.Sync()
}

// lineReader reads lines while tracking their byte offsets, and can be
// repositioned after an in-place edit invalidates the read buffer.
type lineReader struct {
	f      *os.File
	r      *bufio.Reader
	offset int64
}

func newLineReader(f *os.File) *lineReader {
	return &lineReader{f: f, r: bufio.NewReaderSize(f, 64*1024)}
}

// readLine returns the next line including its newline, together with the
// offset at which the line starts.
func (lr *lineReader) readLine() (line []byte, start int64, err error) {
	start = lr.offset
	line, err = lr.r.ReadBytes('\n')
	lr.offset += int64(len(line))
	return line, start, err
}

// resetAt repositions the reader at the given offset, discarding buffered
// data.
func (lr *lineReader) resetAt(offset int64) error {
	if _, err := lr.f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	lr.r.Reset(lr.f)
	lr.offset = offset
	return nil
}

// skipEntry consumes the body of the entry whose start line was just read.
// It returns the offset one past the entry's byte range, which is the start
// of the next entry line when one exists. Trailing separator lines belong
// to the consumed range.
func (lr *lineReader) skipEntry() (end int64, hasNext bool, err error) {
	for {
		line, start, err := lr.readLine()
		if len(line) == 0 && err == io.EOF {
			return start, false, nil
		}
		if err != nil && err != io.EOF {
			return 0, false, err
		}
		if isEntryStart(line) {
			return start, true, nil
		}
		if err == io.EOF {
			return lr.offset, false, nil
		}
	}
}

// isEntryStart mirrors the serialized layout: entry lines carry "@" within
// their first bytes, field lines are indented.
func isEntryStart(line []byte) bool {
	n := len(line)
	if n > 3 {
		n = 3
	}
	return bytes.IndexByte(line[:n], '@') >= 0
}

func entryIdentifierBytes(line []byte) string {
	return entryIdentifier(string(bytes.TrimRight(line, "\r\n")))
}

// fieldLineKey extracts the field name from a serialized field line, or ""
// when the line is not a field line.
func fieldLineKey(line []byte) string {
	trimmed := strings.TrimSpace(string(line))
	eq := strings.IndexByte(trimmed, '=')
	if eq < 0 {
		return ""
	}
	return strings.TrimSpace(trimmed[:eq])
}
