// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AleutianAI/conceptforge/services/vocab"
)

func testHits(n int) []vocab.Concept {
	hits := make([]vocab.Concept, n)
	for i := range hits {
		hits[i] = vocab.Concept{ID: int64(i + 1), Name: fmt.Sprintf("hit %d", i+1)}
	}
	return hits
}

func TestSelectSeedsUsesOracleOrdering(t *testing.T) {
	client := &mockClient{response: `{"message": "standard concepts first", "candidate_ids": [3, 1, 2]}`}
	selector := NewSeedSelector(client, nil)

	selection, err := selector.SelectSeeds(context.Background(), "diabetes", "", "condition", testHits(3))
	if err != nil {
		t.Fatalf("SelectSeeds: %v", err)
	}
	want := []int64{3, 1, 2}
	if len(selection.CandidateIDs) != len(want) {
		t.Fatalf("expected %v, got %v", want, selection.CandidateIDs)
	}
	for i := range want {
		if selection.CandidateIDs[i] != want[i] {
			t.Errorf("seed order: expected %v, got %v", want, selection.CandidateIDs)
			break
		}
	}
	if selection.Message == "" {
		t.Error("selection message should be preserved")
	}
}

func TestSelectSeedsFallsBackOnError(t *testing.T) {
	client := &mockClient{err: errors.New("api down")}
	selector := NewSeedSelector(client, nil)

	selection, err := selector.SelectSeeds(context.Background(), "diabetes", "", "", testHits(4))
	if err != nil {
		t.Fatalf("SelectSeeds should fail open, got %v", err)
	}
	want := []int64{1, 2, 3, 4}
	if len(selection.CandidateIDs) != len(want) {
		t.Fatalf("expected search order fallback %v, got %v", want, selection.CandidateIDs)
	}
	for i := range want {
		if selection.CandidateIDs[i] != want[i] {
			t.Errorf("fallback order wrong: %v", selection.CandidateIDs)
			break
		}
	}
}

func TestSelectSeedsFallsBackOnEmptyPick(t *testing.T) {
	client := &mockClient{response: `{"message": "nothing", "candidate_ids": []}`}
	selector := NewSeedSelector(client, nil)

	selection, err := selector.SelectSeeds(context.Background(), "diabetes", "", "", testHits(2))
	if err != nil {
		t.Fatalf("SelectSeeds: %v", err)
	}
	if len(selection.CandidateIDs) != 2 {
		t.Errorf("expected fallback to 2 hits, got %v", selection.CandidateIDs)
	}
}

func TestSelectSeedsCapsAndDedupes(t *testing.T) {
	ids := ""
	for i := 0; i < 20; i++ {
		if i > 0 {
			ids += ", "
		}
		// Every other entry repeats, and one is negative.
		ids += fmt.Sprintf("%d, %d", i+1, i+1)
	}
	client := &mockClient{response: `{"message": "m", "candidate_ids": [` + ids + `, -5]}`}
	selector := NewSeedSelector(client, nil)

	selection, err := selector.SelectSeeds(context.Background(), "t", "", "", testHits(20))
	if err != nil {
		t.Fatalf("SelectSeeds: %v", err)
	}
	if len(selection.CandidateIDs) != MaxSeedCandidates {
		t.Errorf("expected cap at %d, got %d", MaxSeedCandidates, len(selection.CandidateIDs))
	}
	seen := map[int64]bool{}
	for _, id := range selection.CandidateIDs {
		if id <= 0 {
			t.Errorf("non-positive id survived: %d", id)
		}
		if seen[id] {
			t.Errorf("duplicate id survived: %d", id)
		}
		seen[id] = true
	}
}

func TestSelectSeedsNoHits(t *testing.T) {
	selector := NewSeedSelector(&mockClient{}, nil)

	selection, err := selector.SelectSeeds(context.Background(), "t", "", "", nil)
	if err != nil {
		t.Fatalf("SelectSeeds: %v", err)
	}
	if len(selection.CandidateIDs) != 0 {
		t.Errorf("expected no candidates, got %v", selection.CandidateIDs)
	}
}
