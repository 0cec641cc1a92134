// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are forwarded
// to external vocabulary APIs or embedded in prompts. Using these validators
// prevents injection attacks and malformed upstream requests.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxTermLength bounds search terms forwarded to the vocabulary API.
// ATHENA rejects very long queries anyway; this fails fast locally.
const MaxTermLength = 500

// ValidateSearchTerm validates a clinical search term before it is sent
// to the vocabulary API or embedded in an oracle prompt.
//
// Valid terms:
//   - 1-500 characters after trimming
//   - At least one letter or digit
//   - No control characters (prevents log/prompt injection)
//
// Returns an error if the term is invalid.
//
// Example:
//
//	if err := validation.ValidateSearchTerm(term); err != nil {
//	    return nil, fmt.Errorf("invalid search term: %w", err)
//	}
func ValidateSearchTerm(term string) error {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return fmt.Errorf("search term cannot be empty")
	}
	if len(trimmed) > MaxTermLength {
		return fmt.Errorf("search term too long: %d chars (max %d)", len(trimmed), MaxTermLength)
	}

	hasAlnum := false
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return fmt.Errorf("search term contains control characters")
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasAlnum = true
		}
	}
	if !hasAlnum {
		return fmt.Errorf("search term must contain at least one letter or digit: %q", trimmed)
	}
	return nil
}

// SanitizeSearchTerm normalizes and validates a search term.
// Returns the trimmed, whitespace-collapsed term if valid.
//
// Use this when you need both validation and normalization:
//
//	safe, err := validation.SanitizeSearchTerm(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeSearchTerm(term string) (string, error) {
	normalized := strings.Join(strings.Fields(term), " ")
	if err := ValidateSearchTerm(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateConceptID validates an OMOP concept identifier.
//
// OMOP concept IDs are positive integers. Zero and negative values
// indicate a parsing bug upstream, never a real concept.
func ValidateConceptID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("concept id must be positive, got %d", id)
	}
	return nil
}

// ValidateConceptIDs validates multiple concept identifiers.
// Returns an error listing all invalid IDs if any fail validation.
func ValidateConceptIDs(ids []int64) error {
	var invalid []int64
	for _, id := range ids {
		if err := ValidateConceptID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid concept ids: %v", invalid)
	}
	return nil
}

// knownDomains is the set of OMOP domains the resolver understands.
// Domain strings come from user config and route gating rules, so
// typos must fail loudly rather than silently disabling gating.
var knownDomains = map[string]bool{
	"condition":   true,
	"measurement": true,
	"drug":        true,
	"procedure":   true,
	"observation": true,
	"device":      true,
}

// ValidateDomain validates an OMOP domain hint (case-insensitive).
//
// An empty domain is valid and means "no hint".
func ValidateDomain(domain string) error {
	if domain == "" {
		return nil
	}
	if !knownDomains[strings.ToLower(strings.TrimSpace(domain))] {
		return fmt.Errorf("unknown domain %q (expected one of condition, measurement, drug, procedure, observation, device)", domain)
	}
	return nil
}
