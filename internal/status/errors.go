// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package status

import (
	"fmt"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// FieldViolation is one engine-managed field carrying a value outside its
// schema.
type FieldViolation struct {
	ID    string
	Field string
	Value string
}

// FieldValueError reports engine-managed fields with values outside their
// schema.
type FieldValueError struct {
	Violations []FieldViolation
}

func (e *FieldValueError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s=%q", v.ID, v.Field, v.Value)
	}
	return "invalid field values: " + strings.Join(parts, ", ")
}

// OriginError reports violated origin invariants. Exactly one of the
// slices is populated per error.
type OriginError struct {
	// Missing lists record identifiers without any origin.
	Missing []string
	// Broken lists origin tokens that do not resolve to a source entry.
	Broken []string
	// NonUnique lists origin tokens shared by more than one record.
	NonUnique []string
	// Removed lists persisted origins absent from the current version.
	Removed []string
}

func (e *OriginError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return "records without origin: " + strings.Join(e.Missing, ", ")
	case len(e.Broken) > 0:
		return "broken origins: " + strings.Join(e.Broken, ", ")
	case len(e.NonUnique) > 0:
		return "non-unique origins: " + strings.Join(e.NonUnique, ", ")
	case len(e.Removed) > 0:
		return "persisted origins removed: " + strings.Join(e.Removed, ", ")
	}
	return "origin error"
}

// InvalidTransitionError lists every observed transition that is not part
// of the record lifecycle.
type InvalidTransitionError struct {
	Transitions []InvalidTransition
}

func (e *InvalidTransitionError) Error() string {
	parts := make([]string, len(e.Transitions))
	for i, t := range e.Transitions {
		parts[i] = fmt.Sprintf("%s: %s to %s", t.ID, t.Prior, t.New)
	}
	return "invalid state transitions: " + strings.Join(parts, "; ")
}

// MultipleStartStatesError signals invalid transitions departing from more
// than one distinct state, which indicates a partially applied operation.
type MultipleStartStatesError struct {
	States []types.Status
}

func (e *MultipleStartStatesError) Error() string {
	parts := make([]string, len(e.States))
	for i, s := range e.States {
		parts[i] = string(s)
	}
	return "transitions from multiple start states: " + strings.Join(parts, ", ")
}

// PropagatedIDChangeError reports an identifier change of a processed
// record, together with the locations still referencing the old
// identifier.
type PropagatedIDChangeError struct {
	Notifications []string
}

func (e *PropagatedIDChangeError) Error() string {
	return strings.Join(e.Notifications, "\n")
}

// ScreeningCriteriaError lists screening-criteria values inconsistent with
// the review's criteria or the record's status.
type ScreeningCriteriaError struct {
	Problems []string
}

func (e *ScreeningCriteriaError) Error() string {
	return "screening criteria: " + strings.Join(e.Problems, "; ")
}
