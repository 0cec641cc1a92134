// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conceptforge",
		Subsystem: "resolve",
		Name:      "resolutions_total",
		Help:      "Concept set resolutions by terminal status.",
	}, []string{"status"})

	stopReasonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conceptforge",
		Subsystem: "resolve",
		Name:      "stop_reasons_total",
		Help:      "Exploration halts by stop reason.",
	}, []string{"reason"})

	visitsPerSet = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "conceptforge",
		Subsystem: "resolve",
		Name:      "visits_per_set",
		Help:      "Concept visits consumed per concept set.",
		Buckets:   []float64{1, 3, 5, 10, 20, 35, 50, 75, 100},
	})

	resolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "conceptforge",
		Subsystem: "resolve",
		Name:      "duration_seconds",
		Help:      "Wall-clock time per concept set resolution.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
	})

	shortCircuitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conceptforge",
		Subsystem: "resolve",
		Name:      "short_circuits_total",
		Help:      "Concepts accepted by short-circuit rules without oracle judgment.",
	})
)
