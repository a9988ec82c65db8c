// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package status

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Prior holds the per-origin view of the last committed store version.
// When an origin appeared more than once, the first occurrence wins.
type Prior struct {
	// Statuses maps origin tokens to the status their record carried.
	Statuses map[string]types.Status
	// Persisted maps origin tokens to record identifiers for records that
	// had reached md_processed or a later state. Identifiers of such
	// records are propagated into downstream artifacts and must not
	// change silently.
	Persisted map[string]string
}

// PriorFromHeaders builds the prior view from scanned header items of a
// committed store version.
func PriorFromHeaders(items []bib.HeaderItem) Prior {
	prior := Prior{
		Statuses:  map[string]types.Status{},
		Persisted: map[string]string{},
	}
	for _, item := range items {
		for _, origin := range item.Origins {
			if _, seen := prior.Statuses[origin]; !seen {
				prior.Statuses[origin] = item.Status
			}
			if item.Status.Processed() {
				if _, seen := prior.Persisted[origin]; !seen {
					prior.Persisted[origin] = item.ID
				}
			}
		}
	}
	return prior
}

// TransitionResult classifies the move of one record between the prior
// and current store versions.
type TransitionResult struct {
	ID      string
	Prior   types.Status
	New     types.Status
	Trigger types.Operation
	Invalid bool
}

// EvalTransition looks up the prior status of a record through its origin
// tokens (first match wins) and classifies the observed transition. A
// record with no prior state is a load; an unchanged status is valid with
// no trigger.
func EvalTransition(id string, origins []string, prior Prior, current types.Status) TransitionResult {
	result := TransitionResult{ID: id, New: current}

	var priorStatus types.Status
	found := false
	for _, origin := range origins {
		if s, ok := prior.Statuses[origin]; ok {
			priorStatus = s
			found = true
			break
		}
	}
	if !found {
		result.Trigger = types.OpLoad
		return result
	}

	result.Prior = priorStatus
	if ops := Triggers(priorStatus, current); len(ops) > 0 {
		result.Trigger = ops[0]
		return result
	}
	if priorStatus != current {
		result.Invalid = true
	}
	return result
}

// OriginState pairs a record identifier with one of its origin tokens.
type OriginState struct {
	ID     string
	Origin string
}

// ScreeningEntry is the screening-criteria value of one record.
type ScreeningEntry struct {
	ID       string
	Status   types.Status
	Criteria string
}

// InvalidTransition is one offending prior-to-current move.
type InvalidTransition struct {
	ID    string
	Prior types.Status
	New   types.Status
}

// Snapshot aggregates everything the integrity checks need from a single
// pass over the store headers.
type Snapshot struct {
	IDs           []string
	Statuses      []types.Status
	OriginPairs   []OriginState
	OriginTokens  []string
	WithoutOrigin []string
	Persisted     []OriginState
	Screening     []ScreeningEntry
	MissingPdfs   []string
	Transitions   []TransitionResult
	StartStates   []types.Status
	Invalid       []InvalidTransition
	BadStatus     []FieldViolation
}

// Collect builds a Snapshot from scanned header items. dir is the
// directory against which relative file paths are resolved for existence
// checks; an empty dir skips those checks.
func Collect(items []bib.HeaderItem, prior Prior, dir string) *Snapshot {
	s := &Snapshot{}
	for _, item := range items {
		if item.ID == types.NA {
			continue
		}
		s.IDs = append(s.IDs, item.ID)
		s.Statuses = append(s.Statuses, item.Status)
		if !item.Status.Valid() {
			s.BadStatus = append(s.BadStatus, FieldViolation{
				ID:    item.ID,
				Field: types.FieldStatus,
				Value: string(item.Status),
			})
		}

		if len(item.Origins) == 0 {
			s.WithoutOrigin = append(s.WithoutOrigin, item.ID)
		}
		for _, origin := range item.Origins {
			s.OriginPairs = append(s.OriginPairs, OriginState{ID: item.ID, Origin: origin})
			s.OriginTokens = append(s.OriginTokens, origin)
			if item.Status.Processed() {
				s.Persisted = append(s.Persisted, OriginState{ID: item.ID, Origin: origin})
			}
		}

		if dir != "" && item.File != types.NA {
			for _, path := range strings.Split(item.File, ";") {
				path = strings.TrimSpace(path)
				if path == "" {
					continue
				}
				if !filepath.IsAbs(path) {
					path = filepath.Join(dir, path)
				}
				if _, err := os.Stat(path); err != nil {
					s.MissingPdfs = append(s.MissingPdfs, item.ID)
					break
				}
			}
		}

		if item.ScreeningCriteria != types.NA {
			s.Screening = append(s.Screening, ScreeningEntry{
				ID:       item.ID,
				Status:   item.Status,
				Criteria: item.ScreeningCriteria,
			})
		}

		result := EvalTransition(item.ID, item.Origins, prior, item.Status)
		s.Transitions = append(s.Transitions, result)
		if result.Invalid {
			s.StartStates = append(s.StartStates, result.Prior)
			s.Invalid = append(s.Invalid, InvalidTransition{
				ID:    item.ID,
				Prior: result.Prior,
				New:   item.Status,
			})
			if !result.Prior.Valid() {
				s.BadStatus = append(s.BadStatus, FieldViolation{
					ID:    item.ID,
					Field: types.FieldStatus,
					Value: string(result.Prior),
				})
			}
		}
	}
	return s
}

// CheckDuplicates reports record identifiers appearing more than once.
func (s *Snapshot) CheckDuplicates() error {
	seen := map[string]bool{}
	dup := map[string]bool{}
	var duplicates []string
	for _, id := range s.IDs {
		if seen[id] && !dup[id] {
			dup[id] = true
			duplicates = append(duplicates, id)
		}
		seen[id] = true
	}
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return &bib.DuplicateIdentifierError{IDs: duplicates}
	}
	return nil
}

// CheckOrigins validates the origin invariants: every record carries at
// least one origin, every origin token resolves to a known source entry,
// and no token is shared by two records. known maps valid origin tokens;
// a nil map skips the broken-origin check.
func (s *Snapshot) CheckOrigins(known map[string]bool) error {
	if len(s.WithoutOrigin) > 0 {
		return &OriginError{Missing: s.WithoutOrigin}
	}

	if known != nil {
		brokenSet := map[string]bool{}
		for _, token := range s.OriginTokens {
			if !known[token] && !brokenSet[token] {
				brokenSet[token] = true
			}
		}
		if len(brokenSet) > 0 {
			broken := make([]string, 0, len(brokenSet))
			for token := range brokenSet {
				broken = append(broken, token)
			}
			sort.Strings(broken)
			return &OriginError{Broken: broken}
		}
	}

	counts := map[string]int{}
	for _, token := range s.OriginTokens {
		counts[token]++
	}
	var nonUnique []string
	for token, n := range counts {
		if n > 1 {
			nonUnique = append(nonUnique, token)
		}
	}
	if len(nonUnique) > 0 {
		sort.Strings(nonUnique)
		return &OriginError{NonUnique: nonUnique}
	}
	return nil
}

// CheckFields reports status values outside the defined state set, in the
// current version or in the prior version referenced by a transition.
func (s *Snapshot) CheckFields() error {
	if len(s.BadStatus) == 0 {
		return nil
	}
	return &FieldValueError{Violations: s.BadStatus}
}

// CheckTransitions validates the observed transitions against the
// lifecycle. Invalid transitions from more than one distinct start state
// signal a partially applied operation and take precedence.
func (s *Snapshot) CheckTransitions() error {
	distinct := map[types.Status]bool{}
	var states []types.Status
	for _, st := range s.StartStates {
		if !distinct[st] {
			distinct[st] = true
			states = append(states, st)
		}
	}
	if len(states) > 1 {
		sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
		return &MultipleStartStatesError{States: states}
	}
	if len(s.Invalid) > 0 {
		return &InvalidTransitionError{Transitions: s.Invalid}
	}
	return nil
}

// CheckScreening validates screening-criteria values against the pattern
// implied by the record's own criteria and the record's status.
func (s *Snapshot) CheckScreening(settingsCriteria []string) error {
	if len(s.Screening) == 0 {
		return nil
	}

	var problems []string
	first := s.Screening[0].Criteria
	var names []string
	pattern := "^NA$"
	inclusion := "^NA$"
	if first != types.NA {
		for _, part := range strings.Split(first, ";") {
			if part == "" || part == types.NA {
				continue
			}
			names = append(names, strings.SplitN(part, "=", 2)[0])
		}
		if !sameCriteria(names, settingsCriteria) {
			problems = append(problems, fmt.Sprintf(
				"screening criteria mismatch: records %v vs. settings %v", names, settingsCriteria))
		}
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = regexp.QuoteMeta(n)
		}
		pattern = "^" + strings.Join(quoted, "=(in|out);") + "=(in|out)"
		inclusion = "^" + strings.Join(quoted, "=in;") + "=in"
	}
	patternRe := regexp.MustCompile(pattern)
	inclusionRe := regexp.MustCompile(inclusion)

	for _, entry := range s.Screening {
		switch {
		case !patternRe.MatchString(entry.Criteria):
			problems = append(problems, fmt.Sprintf(
				"screening criteria not matching pattern: %s (%s)", entry.Criteria, entry.ID))
		case entry.Status == types.StatusRevExcluded:
			if len(names) > 0 && !strings.Contains(entry.Criteria, "=out") {
				problems = append(problems, fmt.Sprintf(
					"excluded record with no violated criterion: %s (%s)", entry.Criteria, entry.ID))
			}
		case entry.Status == types.StatusRevIncluded || entry.Status == types.StatusRevSynthesized:
			if !inclusionRe.MatchString(entry.Criteria) {
				problems = append(problems, fmt.Sprintf(
					"included record with violated criterion: %s (%s)", entry.Criteria, entry.ID))
			}
		default:
			if !inclusionRe.MatchString(entry.Criteria) {
				problems = append(problems, fmt.Sprintf(
					"record with violated criterion before screen: %s (%s)", entry.ID, entry.Status))
			}
		}
	}
	if len(problems) > 0 {
		return &ScreeningCriteriaError{Problems: problems}
	}
	return nil
}

func sameCriteria(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]bool{}
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		if !set[x] {
			return false
		}
	}
	return true
}

// CheckPersistedIDs verifies that identifiers of processed records did not
// change between the prior and current store versions, and that persisted
// origins were not removed. scan locates references to the old identifier
// in downstream artifacts; a nil scan skips that search.
func CheckPersistedIDs(prior Prior, current *Snapshot, scan func(priorID, newID string) []string) error {
	currentIDs := map[string]string{}
	for _, pair := range current.Persisted {
		if _, seen := currentIDs[pair.Origin]; !seen {
			currentIDs[pair.Origin] = pair.ID
		}
	}

	origins := make([]string, 0, len(prior.Persisted))
	for origin := range prior.Persisted {
		origins = append(origins, origin)
	}
	sort.Strings(origins)

	var removed []string
	for _, origin := range origins {
		if _, ok := currentIDs[origin]; !ok {
			removed = append(removed, origin)
		}
	}
	if len(removed) > 0 {
		return &OriginError{Removed: removed}
	}

	for _, origin := range origins {
		priorID := prior.Persisted[origin]
		newID := currentIDs[origin]
		if newID == priorID {
			continue
		}
		var notifications []string
		if scan != nil {
			notifications = scan(priorID, newID)
		}
		notifications = append(notifications, fmt.Sprintf(
			"ID of processed record changed from %s to %s", priorID, newID))
		return &PropagatedIDChangeError{Notifications: notifications}
	}
	return nil
}
