// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package status models the record lifecycle: the fixed transition graph
// between record states, validation of observed transitions against that
// graph, and aggregate statistics over a store snapshot.
package status

import (
	"sort"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Edge is one valid transition of the record lifecycle, triggered by an
// operation.
type Edge struct {
	Source  types.Status
	Dest    types.Status
	Trigger types.Operation
}

// transitions is the complete edge list. md_imported has no valid
// predecessor other than a load of a newly observed origin.
var transitions = []Edge{
	{Source: types.StatusMdRetrieved, Dest: types.StatusMdImported, Trigger: types.OpLoad},
	{Source: types.StatusMdImported, Dest: types.StatusMdNeedsManualPreparation, Trigger: types.OpPrep},
	{Source: types.StatusMdImported, Dest: types.StatusMdPrepared, Trigger: types.OpPrep},
	{Source: types.StatusMdNeedsManualPreparation, Dest: types.StatusMdPrepared, Trigger: types.OpPrepMan},
	{Source: types.StatusMdPrepared, Dest: types.StatusMdProcessed, Trigger: types.OpDedupe},
	{Source: types.StatusMdProcessed, Dest: types.StatusRevPrescreenExcluded, Trigger: types.OpPrescreen},
	{Source: types.StatusMdProcessed, Dest: types.StatusRevPrescreenIncluded, Trigger: types.OpPrescreen},
	{Source: types.StatusRevPrescreenIncluded, Dest: types.StatusPdfNeedsManualRetrieval, Trigger: types.OpPdfGet},
	{Source: types.StatusRevPrescreenIncluded, Dest: types.StatusPdfImported, Trigger: types.OpPdfGet},
	{Source: types.StatusPdfNeedsManualRetrieval, Dest: types.StatusPdfNotAvailable, Trigger: types.OpPdfGetMan},
	{Source: types.StatusPdfNeedsManualRetrieval, Dest: types.StatusPdfImported, Trigger: types.OpPdfGetMan},
	{Source: types.StatusPdfImported, Dest: types.StatusPdfNeedsManualPreparation, Trigger: types.OpPdfPrep},
	{Source: types.StatusPdfImported, Dest: types.StatusPdfPrepared, Trigger: types.OpPdfPrep},
	{Source: types.StatusPdfNeedsManualPreparation, Dest: types.StatusPdfPrepared, Trigger: types.OpPdfPrepMan},
	{Source: types.StatusPdfPrepared, Dest: types.StatusRevExcluded, Trigger: types.OpScreen},
	{Source: types.StatusPdfPrepared, Dest: types.StatusRevIncluded, Trigger: types.OpScreen},
	{Source: types.StatusRevIncluded, Dest: types.StatusRevSynthesized, Trigger: types.OpData},
}

// Edges returns the transition table. Callers must not modify the slice.
func Edges() []Edge {
	return transitions
}

// Triggers returns the operations that move a record from source to dest.
// An empty result means the transition is not part of the lifecycle.
func Triggers(source, dest types.Status) []types.Operation {
	var ops []types.Operation
	for _, e := range transitions {
		if e.Source == source && e.Dest == dest {
			ops = append(ops, e.Trigger)
		}
	}
	return ops
}

// ValidTransitions returns the operations applicable to a record in the
// given state.
func ValidTransitions(state types.Status) []types.Operation {
	seen := map[types.Operation]bool{}
	var ops []types.Operation
	for _, e := range transitions {
		if e.Source == state && !seen[e.Trigger] {
			seen[e.Trigger] = true
			ops = append(ops, e.Trigger)
		}
	}
	return ops
}

// PrecedingStates returns every state from which the given state is
// reachable, directly or transitively.
func PrecedingStates(state types.Status) map[types.Status]bool {
	preceding := map[types.Status]bool{}
	frontier := []types.Status{state}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, cur := range frontier {
			for _, e := range transitions {
				if e.Dest == cur && !preceding[e.Source] {
					preceding[e.Source] = true
					next = append(next, e.Source)
				}
			}
		}
		frontier = next
	}
	return preceding
}

// reachableFrom returns the given state plus every state reachable from it.
func reachableFrom(state types.Status) map[types.Status]bool {
	reached := map[types.Status]bool{state: true}
	frontier := []types.Status{state}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, cur := range frontier {
			for _, e := range transitions {
				if e.Source == cur && !reached[e.Dest] {
					reached[e.Dest] = true
					next = append(next, e.Dest)
				}
			}
		}
		frontier = next
	}
	return reached
}

// FileRequired reports whether records in the given state must carry a
// file path.
func FileRequired(state types.Status) bool {
	switch state {
	case types.StatusPdfImported,
		types.StatusPdfNeedsManualPreparation,
		types.StatusPdfPrepared,
		types.StatusRevExcluded,
		types.StatusRevIncluded,
		types.StatusRevSynthesized:
		return true
	}
	return false
}

// TransitionedRecord describes one origin whose state differs between the
// committed store and the working tree.
type TransitionedRecord struct {
	Origin    string
	Source    types.Status
	Dest      types.Status
	Operation types.Operation
}

// TransitionedRecords compares per-origin states between the last
// committed store version and the current one, returning the origins that
// moved along a valid edge. Invalid moves are omitted; they are the
// validator's concern.
func TransitionedRecords(committed, current map[string]types.Status) []TransitionedRecord {
	origins := make([]string, 0, len(committed))
	for origin := range committed {
		origins = append(origins, origin)
	}
	sort.Strings(origins)

	var out []TransitionedRecord
	for _, origin := range origins {
		source := committed[origin]
		dest, ok := current[origin]
		if !ok || source == dest {
			continue
		}
		ops := Triggers(source, dest)
		if len(ops) == 0 {
			continue
		}
		out = append(out, TransitionedRecord{
			Origin:    origin,
			Source:    source,
			Dest:      dest,
			Operation: ops[0],
		})
	}
	return out
}

// PriorityOperations returns the operations applicable to the earliest
// states present in the current per-origin state map. These are the
// operations that unblock the records furthest behind.
func PriorityOperations(current map[string]types.Status) []types.Operation {
	present := map[types.Status]bool{}
	for _, state := range current {
		present[state] = true
	}

	var earliest []types.Status
	searchStates := []types.Status{types.StatusRevSynthesized}
	for len(searchStates) > 0 {
		var found []types.Status
		for _, s := range searchStates {
			if present[s] {
				found = append(found, s)
			}
		}
		if len(found) > 0 {
			earliest = found
		}
		var sources []types.Status
		seen := map[types.Status]bool{}
		for _, e := range transitions {
			for _, s := range searchStates {
				if e.Dest == s && !seen[e.Source] {
					seen[e.Source] = true
					sources = append(sources, e.Source)
				}
			}
		}
		searchStates = sources
	}

	seen := map[types.Operation]bool{}
	var ops []types.Operation
	for _, e := range transitions {
		for _, s := range earliest {
			if e.Source == s && !seen[e.Trigger] {
				seen[e.Trigger] = true
				ops = append(ops, e.Trigger)
			}
		}
	}
	return ops
}

// ActiveOperations returns every operation applicable to at least one
// origin in the current state map, ordered by lifecycle position.
func ActiveOperations(current map[string]types.Status) []types.Operation {
	present := map[types.Status]bool{}
	var states []types.Status
	for _, state := range current {
		if !present[state] {
			present[state] = true
			states = append(states, state)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Order() < states[j].Order() })

	seen := map[types.Operation]bool{}
	var ops []types.Operation
	for _, state := range states {
		for _, op := range ValidTransitions(state) {
			if !seen[op] {
				seen[op] = true
				ops = append(ops, op)
			}
		}
	}
	return ops
}
