// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ondevice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "ondevice",
		Name:      "classify_total",
		Help:      "On-device classifications by outcome: strict, repaired, failed, engine_error",
	}, []string{"outcome"})

	classifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spike",
		Subsystem: "ondevice",
		Name:      "completion_duration_seconds",
		Help:      "Wall time of one engine completion",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spike",
		Subsystem: "ondevice",
		Name:      "engine_wait_seconds",
		Help:      "Time spent waiting for exclusive use of the engine",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
	})
)
