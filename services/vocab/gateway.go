// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vocab

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Gateway is the vocabulary lookup surface consumed by the resolution
// engine and orchestrator.
//
// AthenaClient implements Gateway directly; CachedGateway decorates
// any Gateway with caching and request coalescing.
type Gateway interface {
	// SearchConcepts searches the vocabulary for concepts matching term.
	SearchConcepts(ctx context.Context, term string, opts SearchOptions) ([]Concept, error)

	// GetConcept fetches a single concept by ID.
	GetConcept(ctx context.Context, id int64) (*Concept, error)

	// GetRelationships fetches all relationship edges for a concept.
	GetRelationships(ctx context.Context, id int64) ([]Relationship, error)

	// MapsToStandard returns standard concept IDs reachable via "Maps to".
	MapsToStandard(ctx context.Context, id int64) ([]int64, error)

	// GetConceptsBatch fetches multiple concepts, tolerating partial failure.
	GetConceptsBatch(ctx context.Context, ids []int64) ([]Concept, error)
}

// Compile-time interface checks.
var (
	_ Gateway = (*AthenaClient)(nil)
	_ Gateway = (*CachedGateway)(nil)
)

// CachedGateway decorates a Gateway with TTL caching and singleflight
// request coalescing.
//
// Exploration frontiers repeatedly revisit the same hub concepts, so
// concept and relationship hit rates are high in practice. Coalescing
// matters when the orchestrator runs many concept sets in parallel:
// identical in-flight lookups share one upstream call.
//
// Thread Safety:
//
//	CachedGateway is safe for concurrent use.
type CachedGateway struct {
	inner Gateway
	cache *ConceptCache
	group singleflight.Group
}

// NewCachedGateway wraps a Gateway with caching.
//
// Example:
//
//	gateway := vocab.NewCachedGateway(vocab.NewAthenaClient(), vocab.DefaultCacheConfig())
func NewCachedGateway(inner Gateway, config CacheConfig) *CachedGateway {
	return &CachedGateway{
		inner: inner,
		cache: NewConceptCache(config),
	}
}

// Stats exposes the underlying cache statistics.
func (g *CachedGateway) Stats() CacheStats {
	return g.cache.Stats()
}

// SearchConcepts returns cached results when available, otherwise
// performs the search once per distinct query even under concurrency.
func (g *CachedGateway) SearchConcepts(ctx context.Context, term string, opts SearchOptions) ([]Concept, error) {
	key := "search:" + opts.cacheKey(term)
	if cached := g.cache.GetSearch(opts.cacheKey(term)); cached != nil {
		return cached, nil
	}

	v, err, _ := g.group.Do(key, func() (any, error) {
		concepts, err := g.inner.SearchConcepts(ctx, term, opts)
		if err != nil {
			return nil, err
		}
		g.cache.SetSearch(opts.cacheKey(term), concepts)
		for _, concept := range concepts {
			g.cache.SetConcept(concept)
		}
		return concepts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Concept), nil
}

// GetConcept returns a cached concept or fetches it once.
func (g *CachedGateway) GetConcept(ctx context.Context, id int64) (*Concept, error) {
	if cached := g.cache.GetConcept(id); cached != nil {
		return cached, nil
	}

	key := "concept:" + strconv.FormatInt(id, 10)
	v, err, _ := g.group.Do(key, func() (any, error) {
		concept, err := g.inner.GetConcept(ctx, id)
		if err != nil {
			return nil, err
		}
		g.cache.SetConcept(*concept)
		return concept, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Concept), nil
}

// GetRelationships returns cached edges or fetches them once.
func (g *CachedGateway) GetRelationships(ctx context.Context, id int64) ([]Relationship, error) {
	if cached := g.cache.GetRelationships(id); cached != nil {
		return cached, nil
	}

	key := "rels:" + strconv.FormatInt(id, 10)
	v, err, _ := g.group.Do(key, func() (any, error) {
		rels, err := g.inner.GetRelationships(ctx, id)
		if err != nil {
			return nil, err
		}
		g.cache.SetRelationships(id, rels)
		return rels, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Relationship), nil
}

// MapsToStandard derives standard mappings from (cached) relationships.
func (g *CachedGateway) MapsToStandard(ctx context.Context, id int64) ([]int64, error) {
	rels, err := g.GetRelationships(ctx, id)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, rel := range rels {
		if rel.IsMapsTo() && rel.TargetConceptID != id {
			ids = append(ids, rel.TargetConceptID)
		}
	}
	return ids, nil
}

// GetConceptsBatch serves what it can from cache and fetches the rest.
// Individual fetch failures skip that concept; an error is returned
// only when nothing could be produced.
func (g *CachedGateway) GetConceptsBatch(ctx context.Context, ids []int64) ([]Concept, error) {
	concepts := make([]Concept, 0, len(ids))
	var lastErr error

	for _, id := range ids {
		concept, err := g.GetConcept(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		concepts = append(concepts, *concept)
	}

	if len(concepts) == 0 && lastErr != nil {
		return nil, fmt.Errorf("get concepts batch: all %d fetches failed: %w", len(ids), lastErr)
	}
	return concepts, nil
}
