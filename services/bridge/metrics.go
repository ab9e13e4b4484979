// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bridgeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "bridge",
		Name:      "requests_total",
		Help:      "HTTP requests by matched route and status code",
	}, []string{"endpoint", "status"})

	bridgeTranscriptionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spike",
		Subsystem: "bridge",
		Name:      "transcription_duration_seconds",
		Help:      "Time spent transcribing uploaded audio",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	bridgeJournalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spike",
		Subsystem: "bridge",
		Name:      "journal_failures_total",
		Help:      "Routed requests that could not be journaled",
	})
)
