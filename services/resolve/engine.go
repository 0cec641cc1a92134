// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/vocab"
)

var tracer = otel.Tracer("github.com/AleutianAI/conceptforge/services/resolve")

// domainVocabularies narrows searches to the vocabulary that usually
// carries the standard concepts for a domain.
var domainVocabularies = map[string][]string{
	"Condition":   {"SNOMED"},
	"Drug":        {"RxNorm"},
	"Procedure":   {"SNOMED", "CPT4"},
	"Measurement": {"LOINC"},
	"Observation": {"SNOMED"},
}

// Gateway is the vocabulary surface the engine needs. vocab.Gateway
// satisfies it.
type Gateway interface {
	SearchConcepts(ctx context.Context, term string, opts vocab.SearchOptions) ([]vocab.Concept, error)
	GetRelationships(ctx context.Context, id int64) ([]vocab.Relationship, error)
	GetConceptsBatch(ctx context.Context, ids []int64) ([]vocab.Concept, error)
}

// Judge evaluates concept batches against a search term.
type Judge interface {
	EvaluateBatch(ctx context.Context, term, intent, domain string, items []oracle.BatchItem) ([]oracle.Decision, error)
}

// SeedSelector ranks search hits into an ordered seed list.
type SeedSelector interface {
	SelectSeeds(ctx context.Context, term, intent, domain string, hits []vocab.Concept) (oracle.CandidateSelection, error)
}

// SetResult is the resolved output for one concept set.
type SetResult struct {
	Name              string            `json:"name"`
	Intent            string            `json:"intent"`
	Domain            string            `json:"domain"`
	IncludedConcepts  []IncludedConcept `json:"included_concepts"`
	ExcludedConcepts  []IncludedConcept `json:"excluded_concepts"`
	ResolutionOutcome Outcome           `json:"resolution_outcome"`
}

// Engine runs bounded concept-graph exploration for concept sets.
//
// Thread Safety:
//
//	Engine is safe for concurrent use when its collaborators are;
//	each Resolve call owns its State exclusively.
type Engine struct {
	gateway Gateway
	judge   Judge
	seeds   SeedSelector
	cfg     Config
	logger  *logging.Logger

	// now is swappable for deterministic budget tests.
	now func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfig overrides the exploration bounds.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger injects a logger.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock injects a time source (used for testing the budget).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a resolution engine.
//
// Example:
//
//	engine := resolve.NewEngine(gateway, judge, selector,
//	    resolve.WithConfig(resolve.FastConfig()))
func NewEngine(gateway Gateway, judge Judge, seeds SeedSelector, opts ...EngineOption) *Engine {
	e := &Engine{
		gateway: gateway,
		judge:   judge,
		seeds:   seeds,
		cfg:     DefaultConfig(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	return e
}

// Resolve explores the concept graph for one concept set and always
// returns a well-formed result; exploration-internal failures degrade
// the outcome rather than raising.
func (e *Engine) Resolve(ctx context.Context, spec oracle.ConceptSetSpec) SetResult {
	ctx, span := tracer.Start(ctx, "resolve.concept_set",
		trace.WithAttributes(
			attribute.String("concept_set.name", spec.Name),
			attribute.String("concept_set.domain", spec.Domain),
		))
	defer span.End()

	start := e.now()
	logger := e.logger.With("concept_set", spec.Name)

	hits := e.search(ctx, spec, logger)
	if len(hits) == 0 {
		logger.Warn("no search results, set is unresolved")
		return e.finish(span, start, spec, NewState(nil, e.cfg))
	}

	selection, err := e.seeds.SelectSeeds(ctx, spec.Name, spec.Intent, spec.Domain, hits)
	if err != nil {
		// Only context cancellation reaches here; the selector fails
		// open on oracle errors.
		logger.Warn("seed selection aborted", "error", err)
		return e.finish(span, start, spec, NewState(nil, e.cfg))
	}
	logger.Info("seeds selected",
		"count", len(selection.CandidateIDs), "message", selection.Message)

	state := NewState(selection.CandidateIDs, e.cfg)
	e.explore(ctx, spec, state, start, logger)
	return e.finish(span, start, spec, state)
}

// search runs the concept set's query variants, narrowed by domain
// vocabularies, and merges hits deduplicated by ID.
func (e *Engine) search(ctx context.Context, spec oracle.ConceptSetSpec, logger *logging.Logger) []vocab.Concept {
	queries := spec.Queries
	if len(queries) > e.cfg.MaxQueries {
		queries = queries[:e.cfg.MaxQueries]
	}

	vocabularies := domainVocabularies[spec.Domain]
	if len(vocabularies) == 0 {
		vocabularies = []string{""}
	}

	var hits []vocab.Concept
	seen := make(map[int64]bool)
	for _, query := range queries {
		for _, vocabulary := range vocabularies {
			results, err := e.gateway.SearchConcepts(ctx, query, vocab.SearchOptions{
				Domain:       spec.Domain,
				Vocabulary:   vocabulary,
				StandardOnly: spec.StandardOnly,
				PageSize:     e.cfg.SearchTopK,
			})
			if err != nil {
				logger.Warn("search failed", "query", query, "vocabulary", vocabulary, "error", err)
				continue
			}
			for _, hit := range results {
				if seen[hit.ID] {
					continue
				}
				seen[hit.ID] = true
				hits = append(hits, hit)
			}
		}
	}
	return hits
}

// explore is the bounded exploration loop.
func (e *Engine) explore(ctx context.Context, spec oracle.ConceptSetSpec, state *State, start time.Time, logger *logging.Logger) {
	for !state.Halted() {
		if ctx.Err() != nil || e.now().Sub(start) > e.cfg.Budget {
			state.Halt(StopTimeout)
			logger.Info("budget exceeded", "elapsed", e.now().Sub(start).String())
			return
		}

		batch := state.NextBatch()
		if !batch.HasBatch() {
			switch {
			case batch.DepthLimitHit:
				state.Halt(StopDepthLimit)
			case batch.QueueExhausted:
				state.Halt(StopQueueExhausted)
			}
			// A visit-limit exit leaves no stop reason; the finalizer
			// reports it as exhausted.
			return
		}

		logger.Debug("processing batch",
			"iteration", state.Iteration, "ids", batch.IDs, "depths", batch.Depths)

		concepts, rels := e.fetchBatch(ctx, batch.IDs, logger)

		// Short-circuit acceptance runs before the oracle sees the
		// batch. A qualifying concept is accepted outright; a lexical
		// match that fails gating is held as fallback.
		ordered := orderedConcepts(batch.IDs, concepts)
		if match := TryShortCircuit(ordered, spec.Name); match != nil {
			if state.Accept(IncludedFrom(match.Concept)) {
				shortCircuitsTotal.Inc()
				state.SetEvidence(match.Evidence)
				logger.Info("short-circuit acceptance",
					"concept_id", match.Concept.ID, "reason", match.Reason)
			}
			// Halting here skips the oracle for this batch, so the
			// batch is not counted as visited.
			if state.EnoughAccepted() {
				state.Halt(StopEnoughMatches)
				return
			}
		} else if fallback := FallbackCandidate(ordered, spec.Name); fallback != nil {
			state.SetFallback(IncludedFrom(*fallback))
		}

		decisions := e.judgeBatch(ctx, spec, batch, concepts, rels, logger)
		state.ApplyDecisions(batch, concepts, decisions)

		if state.EnoughAccepted() {
			state.Halt(StopEnoughMatches)
			logger.Info("accepted ceiling reached", "accepted", len(state.Accepted))
			return
		}
		if state.CheckStagnation() {
			state.Halt(StopStagnation)
			logger.Warn("stagnation detected", "head", state.Pending[0].ConceptID)
			return
		}
	}
}

// fetchBatch loads concept details and relationship edges for a
// dispatched batch. Individual failures leave gaps rather than
// aborting the iteration.
func (e *Engine) fetchBatch(ctx context.Context, ids []int64, logger *logging.Logger) (map[int64]vocab.Concept, map[int64][]vocab.Relationship) {
	concepts := make(map[int64]vocab.Concept, len(ids))
	rels := make(map[int64][]vocab.Relationship, len(ids))

	fetched, err := e.gateway.GetConceptsBatch(ctx, ids)
	if err != nil {
		logger.Warn("batch detail fetch failed", "ids", ids, "error", err)
	}
	for _, concept := range fetched {
		concepts[concept.ID] = concept
	}

	for _, id := range ids {
		edges, err := e.gateway.GetRelationships(ctx, id)
		if err != nil {
			logger.Debug("relationship fetch failed", "concept_id", id, "error", err)
			continue
		}
		rels[id] = edges
	}
	return concepts, rels
}

// judgeBatch evaluates the dispatched batch through the oracle in
// chunks the judge accepts, keeping decisions aligned with batch order.
func (e *Engine) judgeBatch(ctx context.Context, spec oracle.ConceptSetSpec, batch Batch, concepts map[int64]vocab.Concept, rels map[int64][]vocab.Relationship, logger *logging.Logger) []oracle.Decision {
	items := make([]oracle.BatchItem, len(batch.IDs))
	for i, id := range batch.IDs {
		depth := 0
		if i < len(batch.Depths) {
			depth = batch.Depths[i]
		}
		items[i] = oracle.MinifyConcept(concepts[id], rels[id], depth)
		// A failed detail fetch leaves the ID as the only attribute.
		items[i].ConceptID = id
		items[i].Details.ConceptID = id
	}

	decisions := make([]oracle.Decision, 0, len(items))
	for chunkStart := 0; chunkStart < len(items); chunkStart += oracle.MaxBatchItems {
		chunkEnd := chunkStart + oracle.MaxBatchItems
		if chunkEnd > len(items) {
			chunkEnd = len(items)
		}
		chunk, err := e.judge.EvaluateBatch(ctx, spec.Name, spec.Intent, spec.Domain, items[chunkStart:chunkEnd])
		if err != nil {
			// Context cancellation: synthesize negatives so the batch
			// bookkeeping stays exact, then let the loop observe ctx.
			logger.Warn("batch evaluation aborted", "error", err)
			for _, item := range items[chunkStart:chunkEnd] {
				decisions = append(decisions, oracle.Decision{
					ConceptID: item.ConceptID,
					Reasoning: "evaluation aborted",
				})
			}
			continue
		}
		decisions = append(decisions, chunk...)
	}
	return decisions
}

// finish records metrics and builds the final set result.
func (e *Engine) finish(span trace.Span, start time.Time, spec oracle.ConceptSetSpec, state *State) SetResult {
	outcome := Finalize(state)

	elapsed := e.now().Sub(start)
	resolutionsTotal.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.StopReason != "" {
		stopReasonsTotal.WithLabelValues(string(outcome.StopReason)).Inc()
	}
	visitsPerSet.Observe(float64(outcome.VisitCount))
	resolutionDuration.Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.String("resolution.status", string(outcome.Status)),
		attribute.String("resolution.stop_reason", string(outcome.StopReason)),
		attribute.Int("resolution.visits", outcome.VisitCount),
		attribute.Int("resolution.accepted", len(outcome.AcceptedConcepts)),
	)

	e.logger.Info("resolution complete",
		"concept_set", spec.Name,
		"status", string(outcome.Status),
		"reason", outcome.Reason,
		"visits", outcome.VisitCount,
		"elapsed", elapsed.String())

	included := outcome.AcceptedConcepts
	if included == nil {
		included = []IncludedConcept{}
	}
	return SetResult{
		Name:              spec.Name,
		Intent:            spec.Intent,
		Domain:            spec.Domain,
		IncludedConcepts:  included,
		ExcludedConcepts:  []IncludedConcept{},
		ResolutionOutcome: outcome,
	}
}

// orderedConcepts lists fetched concepts in dispatch order, skipping
// IDs whose details could not be fetched.
func orderedConcepts(ids []int64, concepts map[int64]vocab.Concept) []vocab.Concept {
	out := make([]vocab.Concept, 0, len(ids))
	for _, id := range ids {
		if concept, ok := concepts[id]; ok {
			out = append(out, concept)
		}
	}
	return out
}
