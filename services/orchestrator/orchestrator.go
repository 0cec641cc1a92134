// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator coordinates cohort builds: it decomposes a
// free-text cohort definition into concept set specs, resolves each
// set through the exploration engine, and packages the results as
// ATLAS-importable concept sets.
package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/resolve"
)

// DefaultMaxParallel bounds concurrent set resolutions per build.
const DefaultMaxParallel = 5

// MaxConceptSets bounds how many decomposed concept sets one build
// resolves; MaxConceptSetsFast is the tighter fast-mode bound. Extra
// sets in the decomposition plan are dropped from the tail.
const (
	MaxConceptSets     = 5
	MaxConceptSetsFast = 3
)

// Resolver resolves one concept set spec. resolve.Engine satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, spec oracle.ConceptSetSpec) resolve.SetResult
}

// Decomposer splits a cohort definition into concept set specs.
type Decomposer interface {
	Decompose(ctx context.Context, cohortDefinition string) ([]oracle.ConceptSetSpec, error)
}

// Orchestrator runs cohort builds.
//
// Thread Safety:
//
//	Safe for concurrent use; each build owns its own result slice and
//	the resolvers are stateless per call.
type Orchestrator struct {
	resolver           Resolver
	fastResolver       Resolver
	decomposer         Decomposer
	maxParallel        int
	includeDescendants bool
	logger             *logging.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFastResolver sets the resolver used when a request asks for fast
// mode. Without one, fast requests use the standard resolver.
func WithFastResolver(r Resolver) Option {
	return func(o *Orchestrator) { o.fastResolver = r }
}

// WithMaxParallel bounds concurrent set resolutions.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithIncludeDescendants controls the descendant flag on ATLAS items.
func WithIncludeDescendants(include bool) Option {
	return func(o *Orchestrator) { o.includeDescendants = include }
}

// WithOrchestratorLogger injects a logger.
func WithOrchestratorLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(resolver Resolver, decomposer Decomposer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:           resolver,
		decomposer:         decomposer,
		maxParallel:        DefaultMaxParallel,
		includeDescendants: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	return o
}

// ResolveSet resolves a single spec and packages the ATLAS export.
func (o *Orchestrator) ResolveSet(ctx context.Context, spec oracle.ConceptSetSpec, fast bool) SetOutput {
	result := o.pick(fast).Resolve(ctx, spec)
	return SetOutput{
		SetResult: result,
		Atlas:     FormatForAtlas(result.Name, result.IncludedConcepts, o.includeDescendants && spec.IncludeDescendants),
	}
}

// Build decomposes a cohort definition and resolves every concept set
// in parallel. Results come back in decomposition order regardless of
// completion order. Decomposition failure fails the whole build; a
// panicking resolution is isolated into an unresolved set result.
func (o *Orchestrator) Build(ctx context.Context, definition string, fast bool) (*BuildResult, error) {
	specs, err := o.decomposer.Decompose(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("decompose cohort definition: %w", err)
	}
	o.logger.Info("cohort decomposed", "sets", len(specs))
	return o.BuildSets(ctx, specs, fast), nil
}

// BuildSets resolves pre-decomposed concept set specs and aggregates
// them exactly as Build does after decomposition. Plans beyond the
// set cap are trimmed from the tail.
func (o *Orchestrator) BuildSets(ctx context.Context, specs []oracle.ConceptSetSpec, fast bool) *BuildResult {
	limit := MaxConceptSets
	if fast {
		limit = MaxConceptSetsFast
	}
	if len(specs) > limit {
		o.logger.Warn("trimming concept set plan", "sets", len(specs), "limit", limit)
		specs = specs[:limit]
	}

	resolver := o.pick(fast)
	outputs := make([]SetOutput, len(specs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxParallel)
	for i, spec := range specs {
		g.Go(func() error {
			outputs[i] = o.resolveIsolated(gCtx, resolver, spec)
			return nil
		})
	}
	// Set failures degrade the individual result, never the build.
	_ = g.Wait()

	result := &BuildResult{Sets: outputs}
	for _, out := range outputs {
		result.Summary.TotalSets++
		result.Summary.TotalConcepts += len(out.IncludedConcepts)
		switch out.ResolutionOutcome.Status {
		case resolve.StatusResolved:
			result.Summary.Resolved++
		case resolve.StatusFallback:
			result.Summary.Fallback++
		default:
			result.Summary.Unresolved++
		}
	}
	return result
}

func (o *Orchestrator) pick(fast bool) Resolver {
	if fast && o.fastResolver != nil {
		return o.fastResolver
	}
	return o.resolver
}

// resolveIsolated converts a panic in one set's resolution into an
// unresolved result so sibling sets still complete.
func (o *Orchestrator) resolveIsolated(ctx context.Context, resolver Resolver, spec oracle.ConceptSetSpec) (out SetOutput) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("set resolution panicked",
				"concept_set", spec.Name, "panic", fmt.Sprint(r))
			out = degenerateOutput(spec)
		}
	}()

	result := resolver.Resolve(ctx, spec)
	return SetOutput{
		SetResult: result,
		Atlas:     FormatForAtlas(result.Name, result.IncludedConcepts, o.includeDescendants && spec.IncludeDescendants),
	}
}

func degenerateOutput(spec oracle.ConceptSetSpec) SetOutput {
	return SetOutput{
		SetResult: resolve.SetResult{
			Name:             spec.Name,
			Intent:           spec.Intent,
			Domain:           spec.Domain,
			IncludedConcepts: []resolve.IncludedConcept{},
			ExcludedConcepts: []resolve.IncludedConcept{},
			ResolutionOutcome: resolve.Outcome{
				Status:            resolve.StatusUnresolved,
				Reason:            "resolution_failed",
				PendingCandidates: []int64{},
				History:           []resolve.HistoryEntry{},
				AcceptedConcepts:  []resolve.IncludedConcept{},
			},
		},
		Atlas: FormatForAtlas(spec.Name, nil, false),
	}
}
