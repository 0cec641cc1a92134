// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/vocab"
)

// fakeGateway serves scripted concepts and relationships.
type fakeGateway struct {
	hits     []vocab.Concept
	concepts map[int64]vocab.Concept
	rels     map[int64][]vocab.Relationship
}

func (g *fakeGateway) SearchConcepts(ctx context.Context, term string, opts vocab.SearchOptions) ([]vocab.Concept, error) {
	return g.hits, nil
}

func (g *fakeGateway) GetRelationships(ctx context.Context, id int64) ([]vocab.Relationship, error) {
	return g.rels[id], nil
}

func (g *fakeGateway) GetConceptsBatch(ctx context.Context, ids []int64) ([]vocab.Concept, error) {
	var out []vocab.Concept
	for _, id := range ids {
		if concept, ok := g.concepts[id]; ok {
			out = append(out, concept)
		}
	}
	return out, nil
}

// fakeJudge answers from a scripted decision table; unscripted IDs get
// negative verdicts.
type fakeJudge struct {
	decisions map[int64]oracle.Decision
	calls     int
}

func (j *fakeJudge) EvaluateBatch(ctx context.Context, term, intent, domain string, items []oracle.BatchItem) ([]oracle.Decision, error) {
	j.calls++
	out := make([]oracle.Decision, len(items))
	for i, item := range items {
		if d, ok := j.decisions[item.ConceptID]; ok {
			d.ConceptID = item.ConceptID
			out[i] = d
		} else {
			out[i] = oracle.Decision{ConceptID: item.ConceptID, Reasoning: "not scripted"}
		}
	}
	return out, nil
}

// fakeSelector returns a fixed seed list.
type fakeSelector struct {
	ids []int64
}

func (s *fakeSelector) SelectSeeds(ctx context.Context, term, intent, domain string, hits []vocab.Concept) (oracle.CandidateSelection, error) {
	return oracle.CandidateSelection{Message: "scripted", CandidateIDs: s.ids}, nil
}

func quietLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.Config{Level: logging.LevelError, Quiet: true})
}

func testSpec(name string) oracle.ConceptSetSpec {
	return oracle.ConceptSetSpec{
		Name:    name,
		Intent:  "test",
		Domain:  "Condition",
		Queries: []string{name},
	}
}

func newTestEngine(g *fakeGateway, j *fakeJudge, seeds []int64, cfg Config, t *testing.T) *Engine {
	return NewEngine(g, j, &fakeSelector{ids: seeds},
		WithConfig(cfg), WithLogger(quietLogger(t)))
}

func plainConcept(id int64, name string) vocab.Concept {
	// ICD10CM concepts never trigger short-circuit rules, keeping
	// oracle-path scenarios clean.
	return vocab.Concept{ID: id, Name: name, Vocabulary: "ICD10CM", StandardConcept: vocab.StandardDesignation}
}

func TestEngineAcceptsAndFollowsSuggestions(t *testing.T) {
	// Seeds [100, 200]; 100 accepted, 200 rejected with a suggested
	// child 300 which is also rejected. Exploration exhausts the queue.
	gateway := &fakeGateway{
		hits: []vocab.Concept{plainConcept(100, "hit")},
		concepts: map[int64]vocab.Concept{
			100: plainConcept(100, "alpha"),
			200: plainConcept(200, "beta"),
			300: plainConcept(300, "gamma"),
		},
	}
	judge := &fakeJudge{decisions: map[int64]oracle.Decision{
		100: {IsStandard: true, IsCorrectForTerm: true, Reasoning: "accept"},
		200: {SuggestedNewCandidates: []int64{300}, Reasoning: "follow"},
	}}
	cfg := cfgWith(func(c *Config) {
		c.MaxDepth = 1
		c.MaxVisits = 10
		c.BatchSize = 2
	})

	engine := newTestEngine(gateway, judge, []int64{100, 200}, cfg, t)
	result := engine.Resolve(context.Background(), testSpec("some term"))

	outcome := result.ResolutionOutcome
	if outcome.Status != StatusResolved {
		t.Fatalf("status = %q, want resolved", outcome.Status)
	}
	if len(result.IncludedConcepts) != 1 || result.IncludedConcepts[0].ConceptID != 100 {
		t.Errorf("included = %+v, want [100]", result.IncludedConcepts)
	}
	// 100 and 200 in iteration 1, 300 in iteration 2.
	if outcome.VisitCount != 3 {
		t.Errorf("visit count = %d, want 3", outcome.VisitCount)
	}
	if outcome.StopReason != StopQueueExhausted {
		t.Errorf("stop reason = %q, want queue_exhausted", outcome.StopReason)
	}
}

func TestEngineEnoughMatchesHaltsBeforeNextBatch(t *testing.T) {
	gateway := &fakeGateway{
		hits: []vocab.Concept{plainConcept(100, "hit")},
		concepts: map[int64]vocab.Concept{
			100: plainConcept(100, "alpha"),
			200: plainConcept(200, "beta"),
		},
	}
	judge := &fakeJudge{decisions: map[int64]oracle.Decision{
		100: {IsStandard: true, IsCorrectForTerm: true},
		200: {SuggestedNewCandidates: []int64{300}},
	}}
	cfg := cfgWith(func(c *Config) {
		c.MaxDepth = 1
		c.BatchSize = 2
		c.MaxAccepted = 1
	})

	engine := newTestEngine(gateway, judge, []int64{100, 200}, cfg, t)
	result := engine.Resolve(context.Background(), testSpec("some term"))

	outcome := result.ResolutionOutcome
	if outcome.StopReason != StopEnoughMatches {
		t.Fatalf("stop reason = %q, want enough_matches", outcome.StopReason)
	}
	// The batch completes before halting: 200's suggestion is queued.
	if len(outcome.PendingCandidates) != 1 || outcome.PendingCandidates[0] != 300 {
		t.Errorf("pending = %v, want [300]", outcome.PendingCandidates)
	}
	if judge.calls != 1 {
		t.Errorf("judge calls = %d, want 1", judge.calls)
	}
}

func TestEngineAcceptedCeilingCompletesCurrentBatch(t *testing.T) {
	// Both batch members are accepted even though the ceiling is 1:
	// the halt happens between batches, not mid-batch.
	gateway := &fakeGateway{
		hits: []vocab.Concept{plainConcept(1, "hit")},
		concepts: map[int64]vocab.Concept{
			1: plainConcept(1, "a"),
			2: plainConcept(2, "b"),
		},
	}
	judge := &fakeJudge{decisions: map[int64]oracle.Decision{
		1: {IsStandard: true, IsCorrectForTerm: true},
		2: {IsStandard: true, IsCorrectForTerm: true},
	}}
	cfg := cfgWith(func(c *Config) {
		c.BatchSize = 2
		c.MaxAccepted = 1
	})

	engine := newTestEngine(gateway, judge, []int64{1, 2}, cfg, t)
	result := engine.Resolve(context.Background(), testSpec("some term"))

	if got := len(result.IncludedConcepts); got != 2 {
		t.Errorf("included = %d concepts, want 2 (batch completes)", got)
	}
}

func TestEngineDepthZeroNeverQueuesChildren(t *testing.T) {
	gateway := &fakeGateway{
		hits:     []vocab.Concept{plainConcept(500, "hit")},
		concepts: map[int64]vocab.Concept{500: plainConcept(500, "seed")},
	}
	judge := &fakeJudge{decisions: map[int64]oracle.Decision{
		500: {SuggestedNewCandidates: []int64{600}},
	}}
	cfg := cfgWith(func(c *Config) {
		c.MaxDepth = 0
		c.BatchSize = 1
	})

	engine := newTestEngine(gateway, judge, []int64{500}, cfg, t)
	result := engine.Resolve(context.Background(), testSpec("some term"))

	outcome := result.ResolutionOutcome
	if outcome.Status != StatusUnresolved {
		t.Fatalf("status = %q, want unresolved", outcome.Status)
	}
	if outcome.StopReason != StopQueueExhausted {
		t.Errorf("stop reason = %q, want queue_exhausted", outcome.StopReason)
	}
	if outcome.VisitCount != 1 {
		t.Errorf("visit count = %d, want 1", outcome.VisitCount)
	}
	if len(outcome.PendingCandidates) != 0 {
		t.Errorf("pending = %v, want empty", outcome.PendingCandidates)
	}
}

func TestEngineShortCircuitResolution(t *testing.T) {
	concept := vocab.Concept{
		ID: 700, Name: "Atrial fibrillation",
		Vocabulary: "SNOMED", ConceptClass: "Clinical Finding",
		StandardConcept: vocab.StandardDesignation,
	}
	gateway := &fakeGateway{
		hits:     []vocab.Concept{concept},
		concepts: map[int64]vocab.Concept{700: concept},
	}
	judge := &fakeJudge{} // never scripted: only short-circuit can accept

	engine := newTestEngine(gateway, judge, []int64{700}, DefaultConfig(), t)
	result := engine.Resolve(context.Background(), testSpec("atrial fibrillation"))

	outcome := result.ResolutionOutcome
	if outcome.Status != StatusResolved {
		t.Fatalf("status = %q, want resolved", outcome.Status)
	}
	if len(result.IncludedConcepts) != 1 || result.IncludedConcepts[0].ConceptID != 700 {
		t.Errorf("included = %+v, want [700]", result.IncludedConcepts)
	}
	if outcome.Evidence == nil || outcome.Evidence.MatchType != MatchExact {
		t.Errorf("evidence = %+v, want exact match", outcome.Evidence)
	}
}

func TestEngineShortCircuitHaltsWithoutOracleWhenCeilingHit(t *testing.T) {
	concept := vocab.Concept{
		ID: 700, Name: "Atrial fibrillation",
		Vocabulary: "SNOMED", ConceptClass: "Clinical Finding",
		StandardConcept: vocab.StandardDesignation,
	}
	gateway := &fakeGateway{
		hits:     []vocab.Concept{concept},
		concepts: map[int64]vocab.Concept{700: concept},
	}
	judge := &fakeJudge{}
	cfg := cfgWith(func(c *Config) { c.MaxAccepted = 1 })

	engine := newTestEngine(gateway, judge, []int64{700}, cfg, t)
	result := engine.Resolve(context.Background(), testSpec("atrial fibrillation"))

	outcome := result.ResolutionOutcome
	if outcome.StopReason != StopEnoughMatches {
		t.Errorf("stop reason = %q, want enough_matches", outcome.StopReason)
	}
	if judge.calls != 0 {
		t.Errorf("judge called %d times, want 0 (short-circuit precedence)", judge.calls)
	}
	// The batch never reached the oracle, so it does not consume
	// visit slots.
	if outcome.VisitCount != 0 {
		t.Errorf("visit count = %d, want 0 (batch skipped the oracle)", outcome.VisitCount)
	}
}

func TestEngineFallbackFromGatingFailedMatch(t *testing.T) {
	// Lexical match on a standard concept whose class fails gating:
	// not accepted, but held as the fallback when nothing else lands.
	concept := vocab.Concept{
		ID: 10, Name: "atrial fibrillation",
		Vocabulary: "SNOMED", ConceptClass: "Navi Concept",
		StandardConcept: vocab.StandardDesignation,
	}
	gateway := &fakeGateway{
		hits:     []vocab.Concept{concept},
		concepts: map[int64]vocab.Concept{10: concept},
	}
	judge := &fakeJudge{}

	engine := newTestEngine(gateway, judge, []int64{10}, DefaultConfig(), t)
	result := engine.Resolve(context.Background(), testSpec("atrial fibrillation"))

	outcome := result.ResolutionOutcome
	if outcome.Status != StatusFallback {
		t.Fatalf("status = %q, want fallback", outcome.Status)
	}
	if outcome.Concept == nil || outcome.Concept.ConceptID != 10 {
		t.Errorf("fallback concept = %+v, want 10", outcome.Concept)
	}
}

func TestEngineTimeout(t *testing.T) {
	gateway := &fakeGateway{
		hits:     []vocab.Concept{plainConcept(1, "hit")},
		concepts: map[int64]vocab.Concept{1: plainConcept(1, "a")},
	}
	// Endless frontier: every visit suggests a fresh child.
	next := int64(1000)
	judge := &generatingJudge{next: &next}

	// Fake clock: each observation advances 10 seconds against a 15s
	// budget, so the second loop check trips the timeout.
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(10 * time.Second)
		return now
	}

	cfg := cfgWith(func(c *Config) {
		c.MaxVisits = 1000
		c.MaxDepth = 100
	})
	engine := NewEngine(gateway, judge, &fakeSelector{ids: []int64{1}},
		WithConfig(cfg), WithLogger(quietLogger(t)), WithClock(clock))

	result := engine.Resolve(context.Background(), testSpec("some term"))
	if result.ResolutionOutcome.StopReason != StopTimeout {
		t.Errorf("stop reason = %q, want timeout", result.ResolutionOutcome.StopReason)
	}
}

// generatingJudge always rejects and suggests one fresh candidate,
// keeping the queue non-empty forever.
type generatingJudge struct {
	next *int64
}

func (j *generatingJudge) EvaluateBatch(ctx context.Context, term, intent, domain string, items []oracle.BatchItem) ([]oracle.Decision, error) {
	out := make([]oracle.Decision, len(items))
	for i, item := range items {
		*j.next++
		out[i] = oracle.Decision{
			ConceptID:              item.ConceptID,
			SuggestedNewCandidates: []int64{*j.next},
		}
	}
	return out, nil
}

func TestEngineVisitBudgetBoundsWork(t *testing.T) {
	gateway := &fakeGateway{
		hits:     []vocab.Concept{plainConcept(1, "hit")},
		concepts: map[int64]vocab.Concept{},
	}
	next := int64(5000)
	cfg := cfgWith(func(c *Config) {
		c.MaxVisits = 7
		c.MaxDepth = 100
		c.BatchSize = 3
	})
	engine := NewEngine(gateway, &generatingJudge{next: &next}, &fakeSelector{ids: []int64{1, 2, 3}},
		WithConfig(cfg), WithLogger(quietLogger(t)))

	result := engine.Resolve(context.Background(), testSpec("some term"))
	outcome := result.ResolutionOutcome
	if outcome.VisitCount != 7 {
		t.Errorf("visit count = %d, want exactly the budget 7", outcome.VisitCount)
	}
	if outcome.Status != StatusUnresolved {
		t.Errorf("status = %q, want unresolved", outcome.Status)
	}
}

func TestEngineNoSearchResults(t *testing.T) {
	gateway := &fakeGateway{} // no hits
	engine := newTestEngine(gateway, &fakeJudge{}, nil, DefaultConfig(), t)

	result := engine.Resolve(context.Background(), testSpec("nonexistent thing"))
	outcome := result.ResolutionOutcome
	if outcome.Status != StatusUnresolved {
		t.Fatalf("status = %q, want unresolved", outcome.Status)
	}
	if outcome.VisitCount != 0 {
		t.Errorf("visit count = %d, want 0", outcome.VisitCount)
	}
	if result.IncludedConcepts == nil || len(result.IncludedConcepts) != 0 {
		t.Errorf("included = %+v, want empty non-nil", result.IncludedConcepts)
	}
}

func TestEngineRevisitDoesNotDoubleAccept(t *testing.T) {
	// 100 appears as a seed and is re-suggested by 200; the visited
	// filter keeps it from being dispatched twice and the accepted set
	// stays deduplicated.
	gateway := &fakeGateway{
		hits: []vocab.Concept{plainConcept(100, "hit")},
		concepts: map[int64]vocab.Concept{
			100: plainConcept(100, "a"),
			200: plainConcept(200, "b"),
		},
	}
	judge := &fakeJudge{decisions: map[int64]oracle.Decision{
		100: {IsStandard: true, IsCorrectForTerm: true},
		200: {SuggestedNewCandidates: []int64{100}},
	}}
	cfg := cfgWith(func(c *Config) {
		c.BatchSize = 1
		c.MaxDepth = 2
	})

	engine := newTestEngine(gateway, judge, []int64{100, 200}, cfg, t)
	result := engine.Resolve(context.Background(), testSpec("some term"))

	if len(result.IncludedConcepts) != 1 {
		t.Errorf("included = %+v, want exactly [100]", result.IncludedConcepts)
	}
	if result.ResolutionOutcome.VisitCount != 2 {
		t.Errorf("visit count = %d, want 2", result.ResolutionOutcome.VisitCount)
	}
}
