// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/pkg/validation"
)

const decomposeSystemPrompt = `You are an expert OMOP/ATLAS cohort designer.

Task: Read the cohort definition and produce a structured plan of
concept sets to resolve against the OMOP vocabulary.

Strict requirements:
- No placeholders: do NOT emit generic tokens like <CONDITION_NAME> or "TBD".
- Concrete queries: derive actual search terms directly from the cohort definition.
- Domain mapping:
  * Conditions/Diagnoses -> "Condition" domain (SNOMED vocabulary)
  * Medications -> "Drug" domain (RxNorm vocabulary)
  * Procedures -> "Procedure" domain (SNOMED, CPT4 vocabularies)
  * Lab tests/measurements -> "Measurement" domain (LOINC vocabulary)
  * Observations -> "Observation" domain
- Standard concepts: prefer standard_only: true.
- Include descendants: set include_descendants: true by default.
- Multiple queries: provide multiple search query variants for robustness.

For lab tests: domain is "Measurement", primary vocabulary is LOINC,
name the specific test rather than a generic "positive test".

Return strictly valid JSON: {"concept_sets": [{"name", "intent",
"domain", "queries", "include_descendants", "standard_only"}, ...]}.`

// Decomposer breaks a cohort definition into concept set specs.
type Decomposer struct {
	client Client
	logger *logging.Logger
}

// NewDecomposer creates a Decomposer backed by the given client.
func NewDecomposer(client Client, logger *logging.Logger) *Decomposer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Decomposer{client: client, logger: logger}
}

// Decompose turns a free-text cohort definition into concept set
// specs. Unlike seed selection and batch evaluation, there is no
// sensible degraded output here, so failures are returned as errors.
func (d *Decomposer) Decompose(ctx context.Context, cohortDefinition string) ([]ConceptSetSpec, error) {
	if strings.TrimSpace(cohortDefinition) == "" {
		return nil, fmt.Errorf("decompose: cohort definition is empty")
	}

	response, err := d.client.Complete(ctx, decomposeSystemPrompt,
		"Cohort definition:\n"+cohortDefinition, GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}

	var plan conceptPlan
	if err := decodeResponse(response, &plan); err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	if len(plan.ConceptSets) == 0 {
		return nil, fmt.Errorf("decompose: plan contains no concept sets")
	}

	// Drop malformed sets rather than failing the plan; warn so bad
	// decompositions are visible in logs.
	valid := make([]ConceptSetSpec, 0, len(plan.ConceptSets))
	for _, set := range plan.ConceptSets {
		if err := validateSpec(set); err != nil {
			d.logger.Warn("dropping malformed concept set from plan",
				"name", set.Name, "error", err)
			continue
		}
		valid = append(valid, set)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("decompose: every concept set in the plan was malformed")
	}

	d.logger.Info("cohort decomposed", "concept_sets", len(valid), "model", d.client.Model())
	return valid, nil
}

func validateSpec(set ConceptSetSpec) error {
	if strings.TrimSpace(set.Name) == "" {
		return fmt.Errorf("missing name")
	}
	if err := validation.ValidateDomain(set.Domain); err != nil {
		return err
	}
	if len(set.Queries) == 0 {
		return fmt.Errorf("no queries")
	}
	for _, q := range set.Queries {
		if err := validation.ValidateSearchTerm(q); err != nil {
			return fmt.Errorf("query %q: %w", q, err)
		}
	}
	return nil
}
