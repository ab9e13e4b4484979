// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	routeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "router",
		Name:      "requests_total",
		Help:      "Routed utterances by final source: on-device, cloud-fallback, none, error",
	}, []string{"source"})

	routeSubQueries = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spike",
		Subsystem: "router",
		Name:      "sub_queries",
		Help:      "Number of sub-queries produced by decomposition",
		Buckets:   []float64{1, 2, 3, 4, 6, 8},
	})

	routeCallDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "router",
		Name:      "call_decisions_total",
		Help:      "Per-call decisions: accepted, unknown_tool, invalid, sanity",
	}, []string{"decision"})

	routeFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "router",
		Name:      "cloud_fallback_total",
		Help:      "Cloud fallback invocations by scope: single, sub_query, whole_utterance",
	}, []string{"scope"})

	routeShortcutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "router",
		Name:      "keyboard_shortcut_total",
		Help:      "Sub-queries answered from the keyboard shortcut table without a model call",
	})

	routeElapsedMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spike",
		Subsystem: "router",
		Name:      "total_time_ms",
		Help:      "Accounted model time per routed utterance, by source",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"source"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var routerTracer = otel.Tracer("spike.routing")
