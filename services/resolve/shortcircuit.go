// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"strings"

	"github.com/AleutianAI/conceptforge/services/vocab"
)

// Match types recorded in short-circuit evidence.
const (
	MatchExact       = "exact"
	MatchStrongToken = "strong_token"
)

// minTokenLength filters noise words from strong-token matching.
// Tokens shorter than this ("of", "to", "II") carry no signal.
const minTokenLength = 3

// ShortCircuitMatch is a concept accepted without oracle judgment.
type ShortCircuitMatch struct {
	Concept  vocab.Concept
	Reason   string
	Evidence Evidence
}

// TryShortCircuit scans a fetched batch in dispatch order for a
// standard concept whose name or synonym matches the search term
// exactly or by strong token containment, AND whose vocabulary and
// concept class pass the domain gating rules. The first qualifying
// concept wins.
//
// Gating rules:
//
//   - SNOMED with class Disorder or Clinical Finding
//   - LOINC with class Component or LOINC Component
//   - CPT4 (any class)
//   - RxNorm or RxNorm Extension with class Ingredient or
//     Precise Ingredient
//
// Returns nil when no concept qualifies.
func TryShortCircuit(concepts []vocab.Concept, term string) *ShortCircuitMatch {
	termNorm := normalizeTerm(term)
	if termNorm == "" {
		return nil
	}
	sigTokens := significantTokens(termNorm)

	for _, concept := range concepts {
		if !concept.IsStandard() {
			continue
		}

		exact, strong := matchNames(concept, termNorm, sigTokens)
		if !exact && !strong {
			continue
		}

		reason, ok := gatingReason(concept)
		if !ok {
			continue
		}

		matchType := MatchStrongToken
		if exact {
			matchType = MatchExact
		}
		return &ShortCircuitMatch{
			Concept: concept,
			Reason:  reason,
			Evidence: Evidence{
				MatchType: matchType,
				Reason:    reason,
			},
		}
	}
	return nil
}

// FallbackCandidate finds the first standard concept that matches the
// term lexically but fails domain gating. Such concepts are not good
// enough to accept outright, yet beat returning nothing when the
// exploration otherwise comes up empty.
func FallbackCandidate(concepts []vocab.Concept, term string) *vocab.Concept {
	termNorm := normalizeTerm(term)
	if termNorm == "" {
		return nil
	}
	sigTokens := significantTokens(termNorm)

	for _, concept := range concepts {
		if !concept.IsStandard() {
			continue
		}
		exact, strong := matchNames(concept, termNorm, sigTokens)
		if !exact && !strong {
			continue
		}
		if _, ok := gatingReason(concept); ok {
			continue
		}
		c := concept
		return &c
	}
	return nil
}

// matchNames checks the concept name and all synonyms against the
// normalized term.
func matchNames(concept vocab.Concept, termNorm string, sigTokens []string) (exact, strong bool) {
	names := make([]string, 0, len(concept.Synonyms)+1)
	if concept.Name != "" {
		names = append(names, concept.Name)
	}
	names = append(names, concept.Synonyms...)

	for _, name := range names {
		nameNorm := normalizeTerm(name)
		if nameNorm == termNorm {
			return true, true
		}
		if tokensContained(nameNorm, sigTokens) {
			strong = true
		}
	}
	return false, strong
}

// gatingReason applies the vocabulary/class gating rules.
func gatingReason(concept vocab.Concept) (string, bool) {
	vocabulary := strings.ToUpper(concept.Vocabulary)
	class := concept.ConceptClass

	switch vocabulary {
	case "SNOMED":
		if class == "Disorder" || class == "Clinical Finding" {
			return "SNOMED condition exact/strong match", true
		}
	case "LOINC":
		if class == "Component" || class == "LOINC Component" {
			return "LOINC component exact/strong match", true
		}
	case "CPT4":
		return "CPT4 procedure exact/strong match", true
	case "RXNORM", "RXNORM EXTENSION":
		if class == "Ingredient" || class == "Precise Ingredient" {
			return "RxNorm ingredient exact/strong match", true
		}
	}
	return "", false
}

// normalizeTerm lowercases and collapses all whitespace runs.
func normalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// significantTokens returns the normalized term's tokens of at least
// minTokenLength characters.
func significantTokens(termNorm string) []string {
	var tokens []string
	for _, tok := range strings.Split(termNorm, " ") {
		if len(tok) >= minTokenLength {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// tokensContained reports whether every significant token appears as a
// substring of the normalized name. An empty token list never matches.
func tokensContained(nameNorm string, sigTokens []string) bool {
	if len(sigTokens) == 0 {
		return false
	}
	for _, tok := range sigTokens {
		if !strings.Contains(nameNorm, tok) {
			return false
		}
	}
	return true
}
