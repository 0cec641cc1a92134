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
	"strings"

	"github.com/AleutianAI/conceptforge/pkg/logging"
)

const judgeSystemPrompt = `You are an OMOP domain expert evaluating candidate concepts in batches.

Input format:
- Search term with intent notes.
- Up to three candidate concept JSON objects with "details" and
  "relationships" fields.
- Depth indicators show how many relationship hops away the candidate is.

For each candidate (preserve input order):
- Determine if the concept is Standard ("is_standard").
- Judge whether it correctly represents the search term ("is_correct_for_term").
- Provide explicit reasoning citing evidence from concept attributes,
  relationships, and the search term. No numeric scores.
- If the concept suggests following relationships (e.g. "Maps to",
  "Is a"), list new candidate concept_ids in "suggested_new_candidates".
  Only include justified, Standard prospects. Deduplicate locally.
- Set "relationship_hint" to the key relationship you followed.

FAST EXIT RULE:
If you find a concept that is Standard, in the correct domain, and whose
name matches the search term perfectly or near-perfectly, mark it
is_correct_for_term = true and is_standard = true, and do NOT suggest
additional candidates for it.

When a candidate is Non-standard and shows a "Maps to" relationship,
include the mapped Standard concept_id in "suggested_new_candidates"
and mention it in "relationship_hint".

Return strictly valid JSON: {"decisions": [...]} with one decision per
input candidate, in the exact same order as the input.`

// Judge evaluates candidate concept batches against a search term.
//
// Thread Safety:
//
//	Judge is safe for concurrent use when its Client is.
type Judge struct {
	client Client
	logger *logging.Logger
}

// NewJudge creates a Judge backed by the given client.
func NewJudge(client Client, logger *logging.Logger) *Judge {
	if logger == nil {
		logger = logging.Default()
	}
	return &Judge{client: client, logger: logger}
}

// EvaluateBatch asks the oracle to judge up to MaxBatchItems concepts.
//
// The returned slice always has exactly one decision per input item,
// aligned by position. Decisions are matched to items by concept ID
// first, with positional fallback; items the oracle skipped or the
// whole call failing produce synthesized negative decisions. The only
// hard error is context cancellation.
func (j *Judge) EvaluateBatch(ctx context.Context, term, intent, domain string, items []BatchItem) ([]Decision, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > MaxBatchItems {
		return nil, fmt.Errorf("evaluate batch: %d items exceeds limit %d", len(items), MaxBatchItems)
	}

	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("evaluate batch: marshal items: %w", err)
	}

	depths := make([]int, len(items))
	for i, item := range items {
		depths[i] = item.Depth
	}

	user := fmt.Sprintf(`Search term: %s
Intent: %s
Domain: %s
Queue depths: %v
Candidate concepts (aligned with the queue order):
%s`, term, intent, domain, depths, payload)

	response, err := j.client.Complete(ctx, judgeSystemPrompt, user, GenerationParams{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		j.logger.Warn("oracle evaluation failed, synthesizing negative decisions",
			"term", term, "batch_size", len(items), "error", err)
		return synthesizeNegative(items, fmt.Sprintf("oracle call failed: %v", err)), nil
	}

	var analysis batchAnalysis
	if err := decodeResponse(response, &analysis); err != nil {
		j.logger.Warn("oracle returned unparseable decisions, synthesizing negative",
			"term", term, "error", err, "response_prefix", prefix(response, 120))
		return synthesizeNegative(items, "oracle response was not valid JSON"), nil
	}

	return alignDecisions(items, analysis.Decisions), nil
}

// alignDecisions maps oracle decisions onto the dispatched items.
//
// Oracles occasionally reorder, drop, or duplicate decisions. Matching
// by concept ID is authoritative; unmatched decisions fill remaining
// slots positionally; anything still missing becomes a negative
// decision so the engine's bookkeeping stays exact.
func alignDecisions(items []BatchItem, decisions []Decision) []Decision {
	itemIDs := make(map[int64]bool, len(items))
	for _, item := range items {
		itemIDs[item.ConceptID] = true
	}

	byID := make(map[int64]*Decision, len(decisions))
	used := make([]bool, len(decisions))
	for i := range decisions {
		if _, dup := byID[decisions[i].ConceptID]; !dup {
			byID[decisions[i].ConceptID] = &decisions[i]
		}
	}

	out := make([]Decision, len(items))
	for i, item := range items {
		if d, ok := byID[item.ConceptID]; ok {
			out[i] = *d
			for k := range decisions {
				if !used[k] && decisions[k].ConceptID == item.ConceptID {
					used[k] = true
					break
				}
			}
			continue
		}

		// Positional fallback for decisions whose ID matches no item
		// at all. Decisions carrying some other item's ID stay with
		// that item.
		matched := false
		for k := range decisions {
			if used[k] || itemIDs[decisions[k].ConceptID] {
				continue
			}
			out[i] = decisions[k]
			out[i].ConceptID = item.ConceptID
			used[k] = true
			matched = true
			break
		}
		if !matched {
			out[i] = negativeDecision(item.ConceptID, "oracle returned no decision for this concept")
		}
	}

	for i := range out {
		if len(out[i].SuggestedNewCandidates) > maxSuggestedCandidates {
			out[i].SuggestedNewCandidates = out[i].SuggestedNewCandidates[:maxSuggestedCandidates]
		}
	}
	return out
}

func synthesizeNegative(items []BatchItem, reason string) []Decision {
	out := make([]Decision, len(items))
	for i, item := range items {
		out[i] = negativeDecision(item.ConceptID, reason)
	}
	return out
}

func negativeDecision(id int64, reason string) Decision {
	return Decision{
		ConceptID:        id,
		IsStandard:       false,
		IsCorrectForTerm: false,
		Reasoning:        reason,
	}
}

func prefix(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
