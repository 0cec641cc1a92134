// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"github.com/AleutianAI/conceptforge/services/resolve"
)

// AtlasConcept is the OMOP concept record inside an ATLAS expression
// item. ATLAS expects the uppercase field names.
type AtlasConcept struct {
	ConceptID       int64  `json:"CONCEPT_ID"`
	ConceptName     string `json:"CONCEPT_NAME"`
	DomainID        string `json:"DOMAIN_ID"`
	VocabularyID    string `json:"VOCABULARY_ID"`
	StandardConcept string `json:"STANDARD_CONCEPT"`
	ConceptCode     string `json:"CONCEPT_CODE"`
}

// AtlasItem wraps one concept with its inclusion flags.
type AtlasItem struct {
	Concept            AtlasConcept `json:"concept"`
	IsExcluded         bool         `json:"isExcluded"`
	IncludeDescendants bool         `json:"includeDescendants"`
	IncludeMapped      bool         `json:"includeMapped"`
}

// AtlasExpression is the item list ATLAS imports.
type AtlasExpression struct {
	Items []AtlasItem `json:"items"`
}

// AtlasConceptSet is an importable ATLAS concept set definition.
type AtlasConceptSet struct {
	Name       string          `json:"name"`
	Expression AtlasExpression `json:"expression"`
}

// FormatForAtlas converts a set's accepted concepts into an ATLAS
// concept set expression. includeDescendants applies to every item;
// includeMapped is always off since accepted concepts are standard.
func FormatForAtlas(name string, concepts []resolve.IncludedConcept, includeDescendants bool) AtlasConceptSet {
	items := make([]AtlasItem, 0, len(concepts))
	for _, c := range concepts {
		items = append(items, AtlasItem{
			Concept: AtlasConcept{
				ConceptID:       c.ConceptID,
				ConceptName:     c.ConceptName,
				DomainID:        c.DomainID,
				VocabularyID:    c.VocabularyID,
				StandardConcept: c.StandardConcept,
				ConceptCode:     c.ConceptCode,
			},
			IncludeDescendants: includeDescendants,
		})
	}
	return AtlasConceptSet{
		Name:       name,
		Expression: AtlasExpression{Items: items},
	}
}
