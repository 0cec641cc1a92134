// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

// Status classifies a terminal resolution outcome.
type Status string

const (
	// StatusResolved means at least one standard concept was accepted.
	StatusResolved Status = "resolved"

	// StatusFallback means nothing was accepted but a best-effort
	// candidate was held back.
	StatusFallback Status = "fallback"

	// StatusUnresolved means exploration produced nothing usable.
	StatusUnresolved Status = "unresolved"
)

// Outcome is the immutable terminal result of one exploration.
//
// Exactly one Outcome is produced per exploration state, at halt. It
// always carries the diagnostic fields (visit count, stop reason,
// pending candidates, history) regardless of status.
type Outcome struct {
	Status            Status            `json:"status"`
	Concept           *IncludedConcept  `json:"concept,omitempty"`
	Reason            string            `json:"reason"`
	VisitCount        int               `json:"visit_count"`
	StopReason        StopReason        `json:"stop_reason,omitempty"`
	PendingCandidates []int64           `json:"pending_candidates"`
	History           []HistoryEntry    `json:"history"`
	Evidence          *Evidence         `json:"evidence,omitempty"`
	AcceptedConcepts  []IncludedConcept `json:"accepted_concepts"`
}

// Finalize derives the terminal outcome from an exploration state.
//
// Precedence: any accepted concepts resolve the set; otherwise a held
// fallback candidate produces a fallback outcome; otherwise the set is
// unresolved.
func Finalize(s *State) Outcome {
	base := Outcome{
		VisitCount:        s.VisitCount,
		StopReason:        s.StopReason,
		PendingCandidates: s.PendingIDs(),
		History:           s.History,
		Evidence:          s.Evidence,
	}
	if base.PendingCandidates == nil {
		base.PendingCandidates = []int64{}
	}
	if base.History == nil {
		base.History = []HistoryEntry{}
	}

	switch {
	case len(s.Accepted) > 0:
		base.Status = StatusResolved
		base.Reason = reasonOr(s.StopReason, "accepted_matches")
		base.AcceptedConcepts = s.Accepted
	case s.BestFallback != nil:
		base.Status = StatusFallback
		base.Reason = "best_nonstandard_match"
		base.Concept = s.BestFallback
		base.AcceptedConcepts = []IncludedConcept{}
	default:
		base.Status = StatusUnresolved
		base.Reason = reasonOr(s.StopReason, "exhausted")
		base.AcceptedConcepts = []IncludedConcept{}
	}
	return base
}

func reasonOr(stop StopReason, fallback string) string {
	if stop != "" {
		return string(stop)
	}
	return fallback
}
