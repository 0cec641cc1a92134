// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vocab

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conceptforge",
		Subsystem: "vocab",
		Name:      "requests_total",
		Help:      "Vocabulary API requests by endpoint and status.",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conceptforge",
		Subsystem: "vocab",
		Name:      "request_duration_seconds",
		Help:      "Vocabulary API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conceptforge",
		Subsystem: "vocab",
		Name:      "cache_hits_total",
		Help:      "Concept cache hits.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conceptforge",
		Subsystem: "vocab",
		Name:      "cache_misses_total",
		Help:      "Concept cache misses.",
	})
)

// observeRequest records a request to the metrics registry.
//
// The path is reduced to its endpoint family so concept IDs do not
// explode label cardinality.
func observeRequest(path string, status string, elapsed time.Duration) {
	endpoint := endpointFamily(path)
	requestsTotal.WithLabelValues(endpoint, status).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func endpointFamily(path string) string {
	switch {
	case strings.Contains(path, "/relationships"):
		return "relationships"
	case strings.Contains(path, "/concepts?"):
		return "search"
	default:
		return "concept"
	}
}
