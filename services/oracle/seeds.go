// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/services/vocab"
)

const seedSystemPrompt = `You are a meticulous OMOP concept scout. Review the vocabulary search
payload and pick up to 12 promising candidate concept IDs.

Ordering rules for "candidate_ids":
1. Exact or very close lexical match to the search term.
2. Prefer Standard over Non-standard when equally plausible.
3. Vocabulary alignment with the search term's domain.
4. Semantic closeness (synonyms, mappings, clinical equivalence).
5. Deterministic tie breaker: ascending concept_id.

Requirements:
- Remove duplicates and ignore irrelevant or noisy hits (locations,
  races, unrelated conditions, staging codes).
- Explain the ordering in "message" with concise, evidence-based
  statements. Do not use numeric scores.
- Return only integers in "candidate_ids".
- If the search payload indicates an error or is empty, still produce a
  best-effort non-empty list using OMOP domain knowledge. Never refuse.

Return strictly valid JSON: {"message": "...", "candidate_ids": [...]}.`

// SeedSelector picks the initial exploration frontier from raw
// vocabulary search hits.
type SeedSelector struct {
	client Client
	logger *logging.Logger
}

// NewSeedSelector creates a SeedSelector backed by the given client.
func NewSeedSelector(client Client, logger *logging.Logger) *SeedSelector {
	if logger == nil {
		logger = logging.Default()
	}
	return &SeedSelector{client: client, logger: logger}
}

// SelectSeeds asks the oracle to rank search hits into an ordered seed
// list, capped at MaxSeedCandidates.
//
// On oracle failure or an empty pick, the selector falls back to the
// first search hits in result order so resolution can always start.
// The only hard error is context cancellation.
func (s *SeedSelector) SelectSeeds(ctx context.Context, term, intent, domain string, hits []vocab.Concept) (CandidateSelection, error) {
	if len(hits) == 0 {
		return CandidateSelection{Message: "no search hits to select from"}, nil
	}

	payload, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return CandidateSelection{}, fmt.Errorf("select seeds: marshal hits: %w", err)
	}

	user := fmt.Sprintf("Search term: %s\nIntent: %s\nDomain: %s\nAthena results: %s", term, intent, domain, payload)

	response, err := s.client.Complete(ctx, seedSystemPrompt, user, GenerationParams{})
	if err != nil {
		if ctx.Err() != nil {
			return CandidateSelection{}, ctx.Err()
		}
		s.logger.Warn("seed selection failed, using first search hits",
			"term", term, "error", err)
		return fallbackSelection(hits, "seed selection unavailable, using search order"), nil
	}

	var selection CandidateSelection
	if err := decodeResponse(response, &selection); err != nil || len(selection.CandidateIDs) == 0 {
		s.logger.Warn("seed selection returned no usable candidates, using search order",
			"term", term, "parse_error", err)
		return fallbackSelection(hits, "seed selection unparseable, using search order"), nil
	}

	selection.CandidateIDs = dedupeIDs(selection.CandidateIDs, MaxSeedCandidates)
	return selection, nil
}

// fallbackSelection takes hit IDs in result order.
func fallbackSelection(hits []vocab.Concept, message string) CandidateSelection {
	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ID)
	}
	return CandidateSelection{
		Message:      message,
		CandidateIDs: dedupeIDs(ids, MaxSeedCandidates),
	}
}

// dedupeIDs drops duplicates and non-positive IDs, preserving order,
// and truncates to limit.
func dedupeIDs(ids []int64, limit int) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if len(out) >= limit {
			break
		}
	}
	return out
}
