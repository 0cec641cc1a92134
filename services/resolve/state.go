// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/vocab"
)

// StopReason classifies why exploration halted. Empty while running.
type StopReason string

const (
	StopTimeout        StopReason = "timeout"
	StopEnoughMatches  StopReason = "enough_matches"
	StopStagnation     StopReason = "stagnation"
	StopDepthLimit     StopReason = "depth_limit"
	StopQueueExhausted StopReason = "queue_exhausted"
)

// QueueItem is one pending exploration candidate.
type QueueItem struct {
	ConceptID int64 `json:"concept_id"`
	Depth     int   `json:"depth"`
}

// Batch is the outcome of one NextBatch call.
type Batch struct {
	IDs    []int64
	Depths []int

	// LimitReached means the visit budget is spent.
	LimitReached bool

	// DepthLimitHit means the queue head sits beyond MaxDepth, so no
	// further dispatch is possible.
	DepthLimitHit bool

	// QueueExhausted means pending was empty.
	QueueExhausted bool
}

// HasBatch reports whether any items were dispatched.
func (b Batch) HasBatch() bool { return len(b.IDs) > 0 }

// HistoryEntry records one concept evaluation for provenance.
type HistoryEntry struct {
	Iteration int    `json:"iteration"`
	ConceptID int64  `json:"concept_id"`
	Depth     int    `json:"depth"`
	Accepted  bool   `json:"accepted"`
	Reasoning string `json:"reasoning,omitempty"`
}

// IncludedConcept is the compact concept record carried into outcomes
// and ATLAS exports. StandardConcept uses the single-letter CDM flag.
type IncludedConcept struct {
	ConceptID       int64  `json:"concept_id"`
	ConceptName     string `json:"concept_name"`
	DomainID        string `json:"domain_id"`
	VocabularyID    string `json:"vocabulary_id"`
	StandardConcept string `json:"standard_concept"`
	ConceptCode     string `json:"concept_code"`
}

// IncludedFrom converts a vocabulary concept to its outcome record.
func IncludedFrom(c vocab.Concept) IncludedConcept {
	return IncludedConcept{
		ConceptID:       c.ID,
		ConceptName:     c.Name,
		DomainID:        c.Domain,
		VocabularyID:    c.Vocabulary,
		StandardConcept: c.StandardFlag(),
		ConceptCode:     c.Code,
	}
}

// Evidence explains why a concept was accepted or held as fallback.
type Evidence struct {
	MatchType string `json:"match_type"`
	Reason    string `json:"reason,omitempty"`
}

// State is the mutable exploration state for one concept set.
//
// State is not safe for concurrent use; each exploration owns its
// State exclusively. Terminal StopReason values and the fallback slot
// are write-once.
type State struct {
	Pending []QueueItem
	Visited map[int64]bool

	Iteration  int
	VisitCount int

	Accepted     []IncludedConcept
	BestFallback *IncludedConcept
	Evidence     *Evidence
	History      []HistoryEntry

	StopReason StopReason

	lastHeadID      int64
	hasLastHead     bool
	stagnationCount int

	cfg Config
}

// NewState seeds an exploration state. Seed IDs enter the queue at
// depth 0 in the given order, deduplicated.
func NewState(seeds []int64, cfg Config) *State {
	s := &State{
		Visited: make(map[int64]bool),
		cfg:     cfg,
	}
	seen := make(map[int64]bool, len(seeds))
	for _, id := range seeds {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		s.Pending = append(s.Pending, QueueItem{ConceptID: id, Depth: 0})
	}
	return s
}

// Halted reports whether a terminal stop reason has been set.
func (s *State) Halted() bool { return s.StopReason != "" }

// Halt sets the stop reason once; later calls are ignored.
func (s *State) Halt(reason StopReason) {
	if s.StopReason == "" {
		s.StopReason = reason
	}
}

// NextBatch dispatches up to min(BatchSize, remaining visit slots)
// items from the FIFO queue whose depth is within MaxDepth. Skipped
// items keep their relative order in pending.
//
// When nothing can be dispatched the reason is reported on the Batch:
// the visit budget is spent, pending is empty, or the queue head is
// too deep to ever dispatch again.
func (s *State) NextBatch() Batch {
	if s.VisitCount >= s.cfg.MaxVisits {
		return Batch{LimitReached: true}
	}
	if len(s.Pending) == 0 {
		return Batch{QueueExhausted: true}
	}
	if s.Pending[0].Depth > s.cfg.MaxDepth {
		return Batch{DepthLimitHit: true}
	}

	remainingSlots := s.cfg.MaxVisits - s.VisitCount
	effectiveBatch := s.cfg.BatchSize
	if remainingSlots < effectiveBatch {
		effectiveBatch = remainingSlots
	}

	var batch Batch
	kept := s.Pending[:0]
	for _, item := range s.Pending {
		if len(batch.IDs) < effectiveBatch && item.Depth <= s.cfg.MaxDepth {
			batch.IDs = append(batch.IDs, item.ConceptID)
			batch.Depths = append(batch.Depths, item.Depth)
			continue
		}
		kept = append(kept, item)
	}
	s.Pending = kept
	s.Iteration++
	return batch
}

// MarkVisited records every dispatched item as visited. Each dispatch
// counts against the visit budget even if the concept was seen before.
func (s *State) MarkVisited(ids []int64) {
	for _, id := range ids {
		s.Visited[id] = true
		s.VisitCount++
	}
}

// Accept appends a concept to the accepted set, deduplicated by ID.
// Returns true if the concept was newly accepted.
func (s *State) Accept(concept IncludedConcept) bool {
	for _, existing := range s.Accepted {
		if existing.ConceptID == concept.ConceptID {
			return false
		}
	}
	s.Accepted = append(s.Accepted, concept)
	return true
}

// EnoughAccepted reports whether the accepted set has reached the
// configured ceiling.
func (s *State) EnoughAccepted() bool {
	return len(s.Accepted) >= s.cfg.MaxAccepted
}

// SetFallback records the fallback candidate. The slot is write-once:
// the first fallback observed during exploration wins.
func (s *State) SetFallback(concept IncludedConcept) {
	if s.BestFallback == nil {
		c := concept
		s.BestFallback = &c
	}
}

// SetEvidence records resolution evidence once.
func (s *State) SetEvidence(ev Evidence) {
	if s.Evidence == nil {
		e := ev
		s.Evidence = &e
	}
}

// RecordHistory appends a history entry, evicting the oldest entries
// beyond the configured limit.
func (s *State) RecordHistory(entry HistoryEntry) {
	if s.cfg.HistoryLimit == 0 {
		return
	}
	s.History = append(s.History, entry)
	if excess := len(s.History) - s.cfg.HistoryLimit; excess > 0 {
		s.History = s.History[excess:]
	}
}

// ApplyDecisions folds oracle decisions for one dispatched batch into
// the state:
//
//   - every dispatched concept is marked visited,
//   - accepted verdicts (standard and correct) join the accepted set,
//   - correct-but-non-standard verdicts become fallback candidates,
//   - suggested candidates are enqueued at parent depth + 1 when
//     within MaxDepth and not already visited or pending.
//
// Inputs are aligned by position: decisions[i] judges batch.IDs[i].
func (s *State) ApplyDecisions(batch Batch, concepts map[int64]vocab.Concept, decisions []oracle.Decision) {
	s.MarkVisited(batch.IDs)

	for i, decision := range decisions {
		if i >= len(batch.IDs) {
			break
		}
		depth := 0
		if i < len(batch.Depths) {
			depth = batch.Depths[i]
		}

		accepted := false
		if concept, ok := concepts[decision.ConceptID]; ok {
			if decision.Accepted() {
				accepted = s.Accept(IncludedFrom(concept))
			} else if decision.IsCorrectForTerm && !decision.IsStandard {
				s.SetFallback(IncludedFrom(concept))
			}
		}

		s.RecordHistory(HistoryEntry{
			Iteration: s.Iteration,
			ConceptID: decision.ConceptID,
			Depth:     depth,
			Accepted:  accepted,
			Reasoning: decision.Reasoning,
		})
	}

	for i, decision := range decisions {
		if i >= len(batch.IDs) {
			break
		}
		depth := 0
		if i < len(batch.Depths) {
			depth = batch.Depths[i]
		}
		childDepth := depth + 1
		if childDepth > s.cfg.MaxDepth {
			continue
		}
		for _, suggested := range decision.SuggestedNewCandidates {
			if suggested <= 0 || s.Visited[suggested] || s.isPending(suggested) {
				continue
			}
			s.Pending = append(s.Pending, QueueItem{ConceptID: suggested, Depth: childDepth})
		}
	}
}

// CheckStagnation updates the stagnation counter against the current
// queue head and reports whether the stagnation ceiling was hit.
func (s *State) CheckStagnation() bool {
	if len(s.Pending) == 0 {
		return false
	}
	head := s.Pending[0].ConceptID
	if s.hasLastHead && s.lastHeadID == head {
		s.stagnationCount++
		if s.stagnationCount >= stagnationThreshold {
			return true
		}
	} else {
		s.stagnationCount = 0
	}
	s.lastHeadID = head
	s.hasLastHead = true
	return false
}

// PendingIDs returns the concept IDs still queued, in order.
func (s *State) PendingIDs() []int64 {
	ids := make([]int64, len(s.Pending))
	for i, item := range s.Pending {
		ids[i] = item.ConceptID
	}
	return ids
}

func (s *State) isPending(id int64) bool {
	for _, item := range s.Pending {
		if item.ConceptID == id {
			return true
		}
	}
	return false
}
