// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package oracle hosts the LLM-backed judgment components of concept
// resolution: cohort decomposition, seed candidate selection, and
// batched concept evaluation.
//
// Every component degrades gracefully: a failed or malformed LLM
// response produces conservative structured output (negative
// decisions, first-hit seeds) rather than an aborted resolution.
package oracle

import "github.com/AleutianAI/conceptforge/services/vocab"

// MaxBatchItems caps the number of concepts per evaluation call.
// Small batches keep prompts short and decision alignment reliable.
const MaxBatchItems = 3

// MaxSeedCandidates caps the ordered seed list returned by selection.
const MaxSeedCandidates = 12

// maxMapsToTargets bounds relationship payloads inside minified
// concepts to keep evaluation prompts compact.
const maxMapsToTargets = 8

// maxSuggestedCandidates bounds follow-up candidates per decision so a
// runaway reply cannot flood the exploration queue.
const maxSuggestedCandidates = 10

// Decision is the oracle's verdict on a single candidate concept.
type Decision struct {
	ConceptID              int64   `json:"concept_id"`
	IsStandard             bool    `json:"is_standard"`
	IsCorrectForTerm       bool    `json:"is_correct_for_term"`
	SuggestedNewCandidates []int64 `json:"suggested_new_candidates,omitempty"`
	RelationshipHint       string  `json:"relationship_hint,omitempty"`
	Reasoning              string  `json:"reasoning"`
}

// Accepted reports whether the decision marks the concept as a usable
// standard match for the search term.
func (d *Decision) Accepted() bool {
	return d.IsStandard && d.IsCorrectForTerm
}

// batchAnalysis is the wire shape of an evaluation response.
type batchAnalysis struct {
	Decisions []Decision `json:"decisions"`
}

// MapsToTarget is a compact "Maps to" edge inside a minified concept.
type MapsToTarget struct {
	ConceptID int64  `json:"concept_id"`
	Name      string `json:"concept_name,omitempty"`
}

// BatchItem is a minified concept prepared for oracle evaluation.
//
// Only the attributes the oracle needs survive minification; synonym
// lists and non-mapping relationships are dropped to save tokens.
type BatchItem struct {
	ConceptID int64 `json:"concept_id"`
	Depth     int   `json:"depth"`
	Details   struct {
		ConceptID       int64  `json:"conceptId"`
		ConceptName     string `json:"conceptName"`
		StandardConcept string `json:"standardConcept,omitempty"`
		DomainID        string `json:"domainId,omitempty"`
		VocabularyID    string `json:"vocabularyId,omitempty"`
		ConceptClassID  string `json:"conceptClassId,omitempty"`
	} `json:"details"`
	Relationships struct {
		MapsTo []MapsToTarget `json:"maps_to"`
	} `json:"relationships"`
}

// MinifyConcept builds a BatchItem from a concept and its relationship
// edges. At most eight "Maps to" targets are retained.
func MinifyConcept(concept vocab.Concept, rels []vocab.Relationship, depth int) BatchItem {
	var item BatchItem
	item.ConceptID = concept.ID
	item.Depth = depth
	item.Details.ConceptID = concept.ID
	item.Details.ConceptName = concept.Name
	item.Details.StandardConcept = concept.StandardConcept
	item.Details.DomainID = concept.Domain
	item.Details.VocabularyID = concept.Vocabulary
	item.Details.ConceptClassID = concept.ConceptClass

	item.Relationships.MapsTo = []MapsToTarget{}
	for _, rel := range rels {
		if !rel.IsMapsTo() || rel.TargetConceptID == concept.ID {
			continue
		}
		item.Relationships.MapsTo = append(item.Relationships.MapsTo, MapsToTarget{
			ConceptID: rel.TargetConceptID,
			Name:      rel.TargetConceptName,
		})
		if len(item.Relationships.MapsTo) >= maxMapsToTargets {
			break
		}
	}
	return item
}

// CandidateSelection is the oracle's ordered seed pick.
type CandidateSelection struct {
	Message      string  `json:"message"`
	CandidateIDs []int64 `json:"candidate_ids"`
}

// ConceptSetSpec describes one concept set to resolve, produced by
// cohort decomposition or supplied directly by the caller.
type ConceptSetSpec struct {
	Name               string   `json:"name" yaml:"name"`
	Intent             string   `json:"intent" yaml:"intent"`
	Domain             string   `json:"domain" yaml:"domain"`
	Queries            []string `json:"queries" yaml:"queries"`
	IncludeDescendants bool     `json:"include_descendants" yaml:"include_descendants"`
	StandardOnly       bool     `json:"standard_only" yaml:"standard_only"`
}

// conceptPlan is the wire shape of a decomposition response.
type conceptPlan struct {
	ConceptSets []ConceptSetSpec `json:"concept_sets"`
}
