// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"testing"

	"github.com/AleutianAI/conceptforge/services/vocab"
)

func standardConcept(id int64, name, vocabulary, class string) vocab.Concept {
	return vocab.Concept{
		ID:              id,
		Name:            name,
		Vocabulary:      vocabulary,
		ConceptClass:    class,
		StandardConcept: vocab.StandardDesignation,
	}
}

func TestShortCircuitExactSNOMEDMatch(t *testing.T) {
	concepts := []vocab.Concept{
		standardConcept(700, "Atrial fibrillation", "SNOMED", "Clinical Finding"),
	}

	match := TryShortCircuit(concepts, "atrial fibrillation")
	if match == nil {
		t.Fatal("expected short-circuit match")
	}
	if match.Concept.ID != 700 {
		t.Errorf("matched concept %d, want 700", match.Concept.ID)
	}
	if match.Evidence.MatchType != MatchExact {
		t.Errorf("match type = %q, want exact", match.Evidence.MatchType)
	}
}

func TestShortCircuitStrongTokenMatch(t *testing.T) {
	concepts := []vocab.Concept{
		standardConcept(1, "Type 2 diabetes mellitus without complication", "SNOMED", "Disorder"),
	}

	match := TryShortCircuit(concepts, "type 2 diabetes mellitus")
	if match == nil {
		t.Fatal("expected strong token match")
	}
	if match.Evidence.MatchType != MatchStrongToken {
		t.Errorf("match type = %q, want strong_token", match.Evidence.MatchType)
	}
}

func TestShortCircuitNormalization(t *testing.T) {
	concepts := []vocab.Concept{
		standardConcept(1, "  Atrial   Fibrillation ", "SNOMED", "Disorder"),
	}

	match := TryShortCircuit(concepts, "ATRIAL\tFIBRILLATION")
	if match == nil {
		t.Fatal("case and whitespace differences should not prevent matching")
	}
	if match.Evidence.MatchType != MatchExact {
		t.Errorf("match type = %q, want exact after normalization", match.Evidence.MatchType)
	}
}

func TestShortCircuitMatchesSynonyms(t *testing.T) {
	concept := standardConcept(1, "Myocardial infarction", "SNOMED", "Disorder")
	concept.Synonyms = []string{"Heart attack"}

	match := TryShortCircuit([]vocab.Concept{concept}, "heart attack")
	if match == nil {
		t.Fatal("synonym match expected")
	}
	if match.Evidence.MatchType != MatchExact {
		t.Errorf("match type = %q, want exact", match.Evidence.MatchType)
	}
}

func TestShortCircuitGating(t *testing.T) {
	tests := []struct {
		name       string
		vocabulary string
		class      string
		want       bool
	}{
		{"snomed disorder", "SNOMED", "Disorder", true},
		{"snomed clinical finding", "SNOMED", "Clinical Finding", true},
		{"snomed procedure class", "SNOMED", "Procedure", false},
		{"loinc component", "LOINC", "Component", true},
		{"loinc component alias", "LOINC", "LOINC Component", true},
		{"loinc lab test class", "LOINC", "Lab Test", false},
		{"cpt4 any class", "CPT4", "CPT4", true},
		{"rxnorm ingredient", "RxNorm", "Ingredient", true},
		{"rxnorm precise ingredient", "RxNorm Extension", "Precise Ingredient", true},
		{"rxnorm brand name", "RxNorm", "Brand Name", false},
		{"icd10 never qualifies", "ICD10CM", "3-char billing code", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			concepts := []vocab.Concept{standardConcept(1, "exact name", tt.vocabulary, tt.class)}
			match := TryShortCircuit(concepts, "exact name")
			if (match != nil) != tt.want {
				t.Errorf("gating for %s/%s: match=%v, want %v", tt.vocabulary, tt.class, match != nil, tt.want)
			}
		})
	}
}

func TestShortCircuitSkipsNonStandard(t *testing.T) {
	concept := vocab.Concept{
		ID: 1, Name: "atrial fibrillation",
		Vocabulary: "SNOMED", ConceptClass: "Disorder",
		StandardConcept: vocab.NonStandardDesignation,
	}
	if match := TryShortCircuit([]vocab.Concept{concept}, "atrial fibrillation"); match != nil {
		t.Error("non-standard concept must not short-circuit")
	}

	concept.StandardConcept = vocab.ClassificationDesignation
	if match := TryShortCircuit([]vocab.Concept{concept}, "atrial fibrillation"); match != nil {
		t.Error("classification concept must not short-circuit")
	}
}

func TestShortCircuitFirstQualifyingInBatchOrderWins(t *testing.T) {
	concepts := []vocab.Concept{
		standardConcept(1, "atrial fibrillation", "SNOMED", "Navi Concept"), // fails gating
		standardConcept(2, "atrial fibrillation", "SNOMED", "Disorder"),
		standardConcept(3, "atrial fibrillation", "SNOMED", "Clinical Finding"),
	}

	match := TryShortCircuit(concepts, "atrial fibrillation")
	if match == nil || match.Concept.ID != 2 {
		t.Errorf("expected first qualifying concept 2, got %+v", match)
	}
}

func TestShortCircuitShortTokensIgnored(t *testing.T) {
	// "mi" is below the significant-token length; only "acute" counts,
	// so a name containing "acute" strong-matches.
	concepts := []vocab.Concept{
		standardConcept(1, "Acute myocardial infarction", "SNOMED", "Disorder"),
	}

	match := TryShortCircuit(concepts, "acute mi")
	if match == nil {
		t.Fatal("expected strong token match ignoring short tokens")
	}
	if match.Evidence.MatchType != MatchStrongToken {
		t.Errorf("match type = %q, want strong_token", match.Evidence.MatchType)
	}
}

func TestShortCircuitEmptyTerm(t *testing.T) {
	concepts := []vocab.Concept{standardConcept(1, "anything", "SNOMED", "Disorder")}
	if match := TryShortCircuit(concepts, "   "); match != nil {
		t.Error("empty term must not match")
	}
}

func TestShortCircuitNoLexicalMatch(t *testing.T) {
	concepts := []vocab.Concept{standardConcept(1, "Hypertensive disorder", "SNOMED", "Disorder")}
	if match := TryShortCircuit(concepts, "atrial fibrillation"); match != nil {
		t.Error("unrelated concept must not match")
	}
}

func TestFallbackCandidate(t *testing.T) {
	concepts := []vocab.Concept{
		// Lexical match that fails gating: held as fallback.
		standardConcept(10, "atrial fibrillation", "SNOMED", "Navi Concept"),
		standardConcept(11, "atrial fibrillation", "SNOMED", "Disorder"),
	}

	fallback := FallbackCandidate(concepts, "atrial fibrillation")
	if fallback == nil || fallback.ID != 10 {
		t.Errorf("expected gating-failed match 10 as fallback, got %+v", fallback)
	}
}

func TestFallbackCandidateNilWhenAllQualifyOrMiss(t *testing.T) {
	qualifying := []vocab.Concept{standardConcept(1, "atrial fibrillation", "SNOMED", "Disorder")}
	if fb := FallbackCandidate(qualifying, "atrial fibrillation"); fb != nil {
		t.Errorf("qualifying concept should not be a fallback: %+v", fb)
	}

	unrelated := []vocab.Concept{standardConcept(2, "asthma", "SNOMED", "Navi Concept")}
	if fb := FallbackCandidate(unrelated, "atrial fibrillation"); fb != nil {
		t.Errorf("non-matching concept should not be a fallback: %+v", fb)
	}
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Type 2 Diabetes", "type 2 diabetes"},
		{"  spaced \t out  ", "spaced out"},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := normalizeTerm(tt.input); got != tt.want {
			t.Errorf("normalizeTerm(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSignificantTokens(t *testing.T) {
	tokens := significantTokens("type 2 diabetes of adulthood")
	want := []string{"type", "diabetes", "adulthood"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("tokens = %v, want %v", tokens, want)
			break
		}
	}
}
