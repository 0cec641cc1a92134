// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/resolve"
)

// ResolveRequest asks for a full cohort build: decompose the free-text
// definition into concept sets and resolve each one.
type ResolveRequest struct {
	CohortDefinition string `json:"cohort_definition" binding:"required"`
	Fast             bool   `json:"fast_mode"`
}

// SetsRequest carries pre-decomposed concept set specs to resolve and
// aggregate, skipping the decomposition step.
type SetsRequest struct {
	ConceptSets []oracle.ConceptSetSpec `json:"concept_sets" binding:"required,min=1"`
	Fast        bool                    `json:"fast_mode"`
}

// SetOutput pairs one resolved set with its ATLAS export.
type SetOutput struct {
	resolve.SetResult
	Atlas AtlasConceptSet `json:"atlas"`
}

// BuildSummary aggregates outcomes across a build.
type BuildSummary struct {
	TotalSets     int `json:"total_sets"`
	Resolved      int `json:"resolved"`
	Fallback      int `json:"fallback"`
	Unresolved    int `json:"unresolved"`
	TotalConcepts int `json:"total_concepts"`
}

// BuildResult is a complete cohort build: resolved sets in submission
// order plus the aggregate summary.
type BuildResult struct {
	RequestID string       `json:"request_id"`
	Sets      []SetOutput  `json:"sets"`
	Summary   BuildSummary `json:"summary"`
}
