// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Status is the lifecycle state of a record. Records move through a fixed
// state machine: metadata retrieval, preparation, deduplication, prescreen,
// PDF retrieval and preparation, screen, and synthesis. The zero value is
// invalid; newly imported records start at StatusMdRetrieved.
type Status string

const (
	StatusMdRetrieved               Status = "md_retrieved"
	StatusMdImported                Status = "md_imported"
	StatusMdNeedsManualPreparation  Status = "md_needs_manual_preparation"
	StatusMdPrepared                Status = "md_prepared"
	StatusMdProcessed               Status = "md_processed"
	StatusRevPrescreenExcluded      Status = "rev_prescreen_excluded"
	StatusRevPrescreenIncluded      Status = "rev_prescreen_included"
	StatusPdfNeedsManualRetrieval   Status = "pdf_needs_manual_retrieval"
	StatusPdfImported               Status = "pdf_imported"
	StatusPdfNotAvailable           Status = "pdf_not_available"
	StatusPdfNeedsManualPreparation Status = "pdf_needs_manual_preparation"
	StatusPdfPrepared               Status = "pdf_prepared"
	StatusRevExcluded               Status = "rev_excluded"
	StatusRevIncluded               Status = "rev_included"
	StatusRevSynthesized            Status = "rev_synthesized"
)

// statusOrder lists all states in lifecycle order. The order is load-bearing
// for cumulative statistics and for the persisted-identifier rule.
var statusOrder = []Status{
	StatusMdRetrieved,
	StatusMdImported,
	StatusMdNeedsManualPreparation,
	StatusMdPrepared,
	StatusMdProcessed,
	StatusRevPrescreenExcluded,
	StatusRevPrescreenIncluded,
	StatusPdfNeedsManualRetrieval,
	StatusPdfImported,
	StatusPdfNotAvailable,
	StatusPdfNeedsManualPreparation,
	StatusPdfPrepared,
	StatusRevExcluded,
	StatusRevIncluded,
	StatusRevSynthesized,
}

var statusIndex = func() map[Status]int {
	m := make(map[Status]int, len(statusOrder))
	for i, s := range statusOrder {
		m[s] = i
	}
	return m
}()

// Statuses returns all states in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ParseStatus converts a raw field value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown record status %q", s)
	}
	return st, nil
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	_, ok := statusIndex[s]
	return ok
}

func (s Status) String() string { return string(s) }

// Processed reports whether the record has reached md_processed, the point
// after which its identifier counts as persisted: downstream artifacts may
// reference it, so it must not change silently.
func (s Status) Processed() bool {
	i, ok := statusIndex[s]
	return ok && i >= statusIndex[StatusMdProcessed]
}

// Terminal reports whether no further transition leaves this state.
func (s Status) Terminal() bool {
	switch s {
	case StatusRevPrescreenExcluded, StatusPdfNotAvailable, StatusRevExcluded, StatusRevSynthesized:
		return true
	}
	return false
}

// Order returns the position of the status in lifecycle order, or -1 for an
// unknown status. Used for cumulative "reached at least state X" counting.
func (s Status) Order() int {
	i, ok := statusIndex[s]
	if !ok {
		return -1
	}
	return i
}

// Operation identifies the lifecycle operation that causes a status
// transition. Operation names appear as transition triggers and in commit
// report headers.
type Operation string

const (
	OpLoad       Operation = "load"
	OpPrep       Operation = "prep"
	OpPrepMan    Operation = "prep_man"
	OpDedupe     Operation = "dedupe"
	OpPrescreen  Operation = "prescreen"
	OpPdfGet     Operation = "pdf_get"
	OpPdfGetMan  Operation = "pdf_get_man"
	OpPdfPrep    Operation = "pdf_prep"
	OpPdfPrepMan Operation = "pdf_prep_man"
	OpScreen     Operation = "screen"
	OpData       Operation = "data"

	// OpFormat marks commits that only reformat the records file. A
	// formatting commit never changes any record's status.
	OpFormat Operation = "format"

	// OpCheck marks read-only integrity runs.
	OpCheck Operation = "check"
)

func (o Operation) String() string { return string(o) }
