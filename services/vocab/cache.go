// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vocab

import (
	"sync"
	"time"
)

// Default cache configuration.
const (
	// DefaultCacheSize is the default maximum number of entries per cache type.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default time-to-live for cache entries.
	// Vocabulary releases are quarterly, so a long TTL is safe; it
	// exists mainly to bound memory in long-lived processes.
	DefaultCacheTTL = 30 * time.Minute
)

// ConceptCache caches vocabulary lookups by concept ID and search key.
//
// Thread Safety:
//
//	ConceptCache is safe for concurrent use.
type ConceptCache struct {
	mu sync.RWMutex

	// concepts caches Concept by concept ID
	concepts map[int64]*cachedConcept

	// searches caches search results by normalized query key
	searches map[string]*cachedSearch

	// relationships caches relationship edges by concept ID
	relationships map[int64]*cachedRelationships

	// config
	maxSize int
	ttl     time.Duration

	// stats
	hits   int64
	misses int64
}

type cachedConcept struct {
	concept   Concept
	createdAt time.Time
}

type cachedSearch struct {
	concepts  []Concept
	createdAt time.Time
}

type cachedRelationships struct {
	rels      []Relationship
	createdAt time.Time
}

// CacheConfig configures the concept cache.
type CacheConfig struct {
	// MaxSize is the maximum number of entries per cache type.
	MaxSize int

	// TTL is the time-to-live for cache entries.
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize: DefaultCacheSize,
		TTL:     DefaultCacheTTL,
	}
}

// NewConceptCache creates a concept cache with the given config.
func NewConceptCache(config CacheConfig) *ConceptCache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultCacheSize
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheTTL
	}

	return &ConceptCache{
		concepts:      make(map[int64]*cachedConcept),
		searches:      make(map[string]*cachedSearch),
		relationships: make(map[int64]*cachedRelationships),
		maxSize:       config.MaxSize,
		ttl:           config.TTL,
	}
}

// CacheStats returns cache statistics.
type CacheStats struct {
	ConceptCount      int
	SearchCount       int
	RelationshipCount int
	Hits              int64
	Misses            int64
	HitRate           float64
	MaxSize           int
	TTLSeconds        int64
}

// Stats returns current cache statistics.
func (c *ConceptCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		ConceptCount:      len(c.concepts),
		SearchCount:       len(c.searches),
		RelationshipCount: len(c.relationships),
		Hits:              c.hits,
		Misses:            c.misses,
		HitRate:           hitRate,
		MaxSize:           c.maxSize,
		TTLSeconds:        int64(c.ttl.Seconds()),
	}
}

// GetConcept retrieves a cached concept.
//
// Returns nil if not cached or expired.
func (c *ConceptCache) GetConcept(id int64) *Concept {
	c.mu.RLock()
	cached, ok := c.concepts[id]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil
	}
	if time.Since(cached.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.concepts, id)
		c.misses++
		c.mu.Unlock()
		return nil
	}

	c.hit()
	concept := cached.concept
	return &concept
}

// SetConcept caches a concept.
func (c *ConceptCache) SetConcept(concept Concept) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.concepts) >= c.maxSize {
		c.evictOldestConcept()
	}
	c.concepts[concept.ID] = &cachedConcept{
		concept:   concept,
		createdAt: time.Now(),
	}
}

// GetSearch retrieves cached search results for a query key.
//
// Returns nil if not cached or expired. A cached empty result is
// returned as a non-nil empty slice so callers can distinguish
// "cached no-hits" from "not cached".
func (c *ConceptCache) GetSearch(key string) []Concept {
	c.mu.RLock()
	cached, ok := c.searches[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil
	}
	if time.Since(cached.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.searches, key)
		c.misses++
		c.mu.Unlock()
		return nil
	}

	c.hit()
	out := make([]Concept, len(cached.concepts))
	copy(out, cached.concepts)
	return out
}

// SetSearch caches search results under a query key.
func (c *ConceptCache) SetSearch(key string, concepts []Concept) {
	stored := make([]Concept, len(concepts))
	copy(stored, concepts)
	if stored == nil {
		stored = []Concept{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.searches) >= c.maxSize {
		c.evictOldestSearch()
	}
	c.searches[key] = &cachedSearch{
		concepts:  stored,
		createdAt: time.Now(),
	}
}

// GetRelationships retrieves cached relationship edges.
//
// Returns nil if not cached or expired; a cached empty edge list comes
// back as a non-nil empty slice.
func (c *ConceptCache) GetRelationships(id int64) []Relationship {
	c.mu.RLock()
	cached, ok := c.relationships[id]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil
	}
	if time.Since(cached.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.relationships, id)
		c.misses++
		c.mu.Unlock()
		return nil
	}

	c.hit()
	out := make([]Relationship, len(cached.rels))
	copy(out, cached.rels)
	return out
}

// SetRelationships caches relationship edges for a concept.
func (c *ConceptCache) SetRelationships(id int64, rels []Relationship) {
	stored := make([]Relationship, len(rels))
	copy(stored, rels)
	if stored == nil {
		stored = []Relationship{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.relationships) >= c.maxSize {
		c.evictOldestRelationships()
	}
	c.relationships[id] = &cachedRelationships{
		rels:      stored,
		createdAt: time.Now(),
	}
}

// Clear empties all cache types. Stats counters are preserved.
func (c *ConceptCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.concepts = make(map[int64]*cachedConcept)
	c.searches = make(map[string]*cachedSearch)
	c.relationships = make(map[int64]*cachedRelationships)
}

func (c *ConceptCache) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	cacheHits.Inc()
}

func (c *ConceptCache) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	cacheMisses.Inc()
}

// evictOldestConcept removes the oldest concept entry. Caller must hold mu.
func (c *ConceptCache) evictOldestConcept() {
	var oldestKey int64
	var oldestTime time.Time
	first := true

	for key, cached := range c.concepts {
		if first || cached.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.createdAt
			first = false
		}
	}
	if !first {
		delete(c.concepts, oldestKey)
	}
}

// evictOldestSearch removes the oldest search entry. Caller must hold mu.
func (c *ConceptCache) evictOldestSearch() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, cached := range c.searches {
		if first || cached.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.createdAt
			first = false
		}
	}
	if !first {
		delete(c.searches, oldestKey)
	}
}

// evictOldestRelationships removes the oldest relationship entry. Caller must hold mu.
func (c *ConceptCache) evictOldestRelationships() {
	var oldestKey int64
	var oldestTime time.Time
	first := true

	for key, cached := range c.relationships {
		if first || cached.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.createdAt
			first = false
		}
	}
	if !first {
		delete(c.relationships, oldestKey)
	}
}
