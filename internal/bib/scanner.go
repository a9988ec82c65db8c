// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bib

import (
	"bufio"
	"io"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// HeaderItem holds the engine-managed header fields of one entry. Fields
// absent from the entry keep the "NA" placeholder; Origins stays nil.
type HeaderItem struct {
	ID                string
	Origins           []string
	Status            types.Status
	File              string
	ScreeningCriteria string
	MdProvenance      string
}

func newHeaderItem() HeaderItem {
	return HeaderItem{
		ID:                types.NA,
		Status:            types.Status(types.NA),
		File:              types.NA,
		ScreeningCriteria: types.NA,
		MdProvenance:      types.NA,
	}
}

// HeaderScanner streams header items from a records store without building
// full records. It reads each line exactly once and tolerates hand-edited
// spacing, but it is not a full parser: values spanning multiple lines are
// truncated at the first line.
//
// Usage follows bufio.Scanner:
//
//	s := bib.NewHeaderScanner(f)
//	for s.Scan() {
//		item := s.Item()
//		...
//	}
//	if err := s.Err(); err != nil { ... }
type HeaderScanner struct {
	sc        *bufio.Scanner
	cur       HeaderItem
	item      HeaderItem
	skipDepth int
	done      bool
	err       error
}

// NewHeaderScanner returns a scanner reading from r.
func NewHeaderScanner(r io.Reader) *HeaderScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &HeaderScanner{sc: sc, cur: newHeaderItem()}
}

// Scan advances to the next header item. It returns false at end of input
// or on read error; Err distinguishes the two.
func (s *HeaderScanner) Scan() bool {
	if s.done {
		return false
	}
	for s.sc.Scan() {
		line := s.sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%") {
			continue
		}
		if s.skipDepth > 0 {
			s.skipDepth += strings.Count(line, "{") - strings.Count(line, "}")
			continue
		}
		if strings.HasPrefix(line, "@") {
			if isCommentEntry(line) {
				s.skipDepth = strings.Count(line, "{") - strings.Count(line, "}")
				continue
			}
			prev := s.cur
			s.cur = newHeaderItem()
			s.cur.ID = entryIdentifier(line)
			if prev.ID != types.NA {
				s.item = prev
				return true
			}
			continue
		}
		if trimmed == "}" {
			if s.cur.ID != types.NA {
				s.item = s.cur
				s.cur = newHeaderItem()
				return true
			}
			continue
		}
		s.cur.absorb(line)
	}
	s.err = s.sc.Err()
	s.done = true
	if s.err == nil && s.cur.ID != types.NA {
		s.item = s.cur
		s.cur = newHeaderItem()
		return true
	}
	return false
}

// Item returns the header item produced by the last successful Scan.
func (s *HeaderScanner) Item() HeaderItem {
	return s.item
}

// Err returns the first read error encountered, if any.
func (s *HeaderScanner) Err() error {
	return s.err
}

// ScanHeaders reads all header items from r.
func ScanHeaders(r io.Reader) ([]HeaderItem, error) {
	s := NewHeaderScanner(r)
	var items []HeaderItem
	for s.Scan() {
		items = append(items, s.Item())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func isCommentEntry(line string) bool {
	open := strings.IndexByte(line, '{')
	if open < 0 {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(line[1:open]), "comment")
}

// entryIdentifier extracts the identifier from "@<type>{<id>,".
func entryIdentifier(line string) string {
	open := strings.IndexByte(line, '{')
	if open < 0 {
		return types.NA
	}
	id := strings.TrimSpace(line[open+1:])
	id = strings.TrimSuffix(id, ",")
	id = strings.TrimSuffix(id, "}")
	id = strings.TrimSpace(id)
	if id == "" {
		return types.NA
	}
	return id
}

// absorb folds one field line into the item. Unknown fields are ignored.
func (h *HeaderItem) absorb(line string) {
	normalized := strings.Join(strings.Fields(line), " ")
	eq := strings.IndexByte(normalized, '=')
	if eq < 0 {
		return
	}
	key := strings.TrimSpace(normalized[:eq])
	value := fieldValue(normalized)
	switch key {
	case types.FieldOrigin:
		for _, token := range strings.Split(value, ";") {
			token = strings.TrimSpace(token)
			if token != "" {
				h.Origins = append(h.Origins, token)
			}
		}
	case types.FieldStatus:
		h.Status = types.Status(value)
	case types.FieldFile:
		h.File = value
	case types.FieldScreeningCriteria:
		h.ScreeningCriteria = value
	case types.FieldMdProvenance:
		h.MdProvenance = value
	}
}

// fieldValue returns the text between the first "{" and the last "}".
func fieldValue(normalized string) string {
	open := strings.IndexByte(normalized, '{')
	clos := strings.LastIndexByte(normalized, '}')
	if open >= 0 && clos > open {
		return normalized[open+1 : clos]
	}
	eq := strings.IndexByte(normalized, '=')
	return strings.Trim(normalized[eq+1:], ` ,"`)
}
