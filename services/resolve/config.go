// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve implements bounded queue-based exploration of the
// OMOP concept relationship graph.
//
// Given seed candidate concept IDs for a search term, the engine
// explores "Maps to"/"Is a" style edges breadth-first under depth,
// visit, and wall-clock bounds, applying short-circuit acceptance
// rules and batched oracle evaluation, and settles on exactly one
// terminal outcome per concept set: resolved, fallback, or unresolved.
package resolve

import (
	"fmt"
	"time"
)

// Default exploration bounds.
const (
	DefaultMaxDepth     = 2
	DefaultMaxVisits    = 50
	DefaultBatchSize    = 3
	DefaultMaxAccepted  = 3
	DefaultHistoryLimit = 120
	DefaultSearchTopK   = 8
	DefaultMaxQueries   = 3
	DefaultBudget       = 15 * time.Second

	// stagnationThreshold is how many consecutive iterations the queue
	// head may stay unchanged before exploration halts.
	stagnationThreshold = 3
)

// Config bounds a single concept-set exploration.
type Config struct {
	// MaxDepth is the maximum relationship-hop distance from a seed.
	// Items deeper than this are never dispatched or enqueued.
	MaxDepth int `yaml:"max_depth"`

	// MaxVisits caps the total number of concepts dispatched for
	// evaluation across the whole exploration.
	MaxVisits int `yaml:"max_visits"`

	// BatchSize is the number of queue items dispatched per iteration.
	BatchSize int `yaml:"batch_size"`

	// MaxAccepted stops exploration once this many concepts have been
	// accepted. The current batch is always completed first.
	MaxAccepted int `yaml:"max_accepted"`

	// HistoryLimit bounds the retained evaluation history; older
	// entries are evicted first-in first-out.
	HistoryLimit int `yaml:"history_limit"`

	// SearchTopK caps raw vocabulary search hits per query.
	SearchTopK int `yaml:"search_top_k"`

	// MaxQueries caps how many of a concept set's query variants are
	// searched.
	MaxQueries int `yaml:"max_queries"`

	// Budget is the wall-clock allowance for one concept set, checked
	// once per loop iteration. In-flight calls are allowed to finish.
	Budget time.Duration `yaml:"budget"`
}

// DefaultConfig returns the standard exploration bounds.
func DefaultConfig() Config {
	return Config{
		MaxDepth:     DefaultMaxDepth,
		MaxVisits:    DefaultMaxVisits,
		BatchSize:    DefaultBatchSize,
		MaxAccepted:  DefaultMaxAccepted,
		HistoryLimit: DefaultHistoryLimit,
		SearchTopK:   DefaultSearchTopK,
		MaxQueries:   DefaultMaxQueries,
		Budget:       DefaultBudget,
	}
}

// FastConfig trades exploration depth for speed: shallower graph walk,
// fewer visits, wider batches, fewer query variants.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxDepth = 1
	cfg.MaxVisits = 20
	cfg.BatchSize = 5
	cfg.MaxQueries = 2
	return cfg
}

// Validate checks the config for values that would break exploration
// invariants.
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be >= 0, got %d", c.MaxDepth)
	}
	if c.MaxVisits <= 0 {
		return fmt.Errorf("max_visits must be positive, got %d", c.MaxVisits)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxAccepted <= 0 {
		return fmt.Errorf("max_accepted must be positive, got %d", c.MaxAccepted)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be >= 0, got %d", c.HistoryLimit)
	}
	if c.Budget <= 0 {
		return fmt.Errorf("budget must be positive, got %s", c.Budget)
	}
	return nil
}
