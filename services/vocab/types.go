// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vocab provides access to the OHDSI ATHENA vocabulary API.
//
// The package exposes a Gateway interface over concept search, concept
// detail, and relationship lookups, with a caching decorator for
// request coalescing and TTL-based reuse. All lookups are read-only;
// this package never mutates vocabulary state.
package vocab

import "strings"

// Standard concept designations as returned by ATHENA.
const (
	StandardDesignation       = "Standard"
	ClassificationDesignation = "Classification"
	NonStandardDesignation    = "Non-standard"
)

// MapsToRelationship is the relationship name linking a non-standard
// concept to its standard equivalents.
const MapsToRelationship = "Maps to"

// Concept is an OMOP vocabulary concept.
//
// StandardConcept holds the ATHENA designation string (see the
// *Designation constants); an empty string means non-standard.
type Concept struct {
	ID              int64    `json:"conceptId"`
	Name            string   `json:"conceptName"`
	Domain          string   `json:"domainId"`
	Vocabulary      string   `json:"vocabularyId"`
	ConceptClass    string   `json:"conceptClassId"`
	StandardConcept string   `json:"standardConcept,omitempty"`
	Code            string   `json:"conceptCode"`
	InvalidReason   string   `json:"invalidReason,omitempty"`
	Synonyms        []string `json:"synonyms,omitempty"`
	Score           float64  `json:"score,omitempty"`
}

// IsStandard reports whether the concept carries the Standard designation.
//
// Classification concepts are NOT standard for resolution purposes:
// they group other concepts and should not appear in concept sets.
func (c *Concept) IsStandard() bool {
	return c.StandardConcept == StandardDesignation
}

// IsValid reports whether the concept is currently valid in the
// vocabulary (no deprecation or update marker).
func (c *Concept) IsValid() bool {
	return c.InvalidReason == ""
}

// StandardFlag returns the compact single-letter designation used in
// OMOP CDM exports: "S" for standard, "C" for classification, "" otherwise.
func (c *Concept) StandardFlag() string {
	switch c.StandardConcept {
	case StandardDesignation:
		return "S"
	case ClassificationDesignation:
		return "C"
	default:
		return ""
	}
}

// Relationship is a directed edge from a source concept to a target
// concept in the vocabulary graph.
type Relationship struct {
	RelationshipName  string `json:"relationshipName"`
	TargetConceptID   int64  `json:"targetConceptId"`
	TargetConceptName string `json:"targetConceptName"`
	TargetVocabulary  string `json:"targetVocabularyId"`
	TargetStandard    string `json:"targetStandardConcept,omitempty"`
}

// IsMapsTo reports whether this edge maps to a standard concept.
func (r *Relationship) IsMapsTo() bool {
	return r.RelationshipName == MapsToRelationship
}

// SearchOptions refines a concept search.
type SearchOptions struct {
	// Domain restricts results to one OMOP domain (e.g. "Condition").
	// Empty means all domains.
	Domain string

	// Vocabulary restricts results to one vocabulary (e.g. "SNOMED").
	// Empty means all vocabularies.
	Vocabulary string

	// StandardOnly replaces non-standard hits with the standard
	// concepts they map to via "Maps to" edges. Hits with no standard
	// mapping are dropped.
	StandardOnly bool

	// PageSize caps the number of raw hits requested from ATHENA.
	// Zero means the client default.
	PageSize int
}

// cacheKey builds a stable key for search caching. Term casing is
// normalized so "Diabetes" and "diabetes" share an entry.
func (o SearchOptions) cacheKey(term string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(term)))
	b.WriteByte('|')
	b.WriteString(o.Domain)
	b.WriteByte('|')
	b.WriteString(o.Vocabulary)
	b.WriteByte('|')
	if o.StandardOnly {
		b.WriteByte('s')
	}
	return b.String()
}
