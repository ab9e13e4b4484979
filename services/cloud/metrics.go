// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cloudRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "cloud",
		Name:      "requests_total",
		Help:      "Cloud classification requests by outcome: ok, error, rate_limited",
	}, []string{"outcome"})

	cloudLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spike",
		Subsystem: "cloud",
		Name:      "latency_seconds",
		Help:      "Wall time of successful cloud classifications",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
	})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spike",
		Subsystem: "cloud",
		Name:      "limiter_wait_seconds",
		Help:      "Time spent waiting on the outbound QPS limiter",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	})

	transcribeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "cloud",
		Name:      "transcriptions_total",
		Help:      "Transcriptions by outcome: ok, empty, error",
	}, []string{"outcome"})
)
