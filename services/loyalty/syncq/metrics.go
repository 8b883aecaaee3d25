// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_sync_cycles_total",
		Help: "Sync cycles by outcome",
	}, []string{"status"})

	pushedOperationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_sync_pushed_operations_total",
		Help: "Outbox operations successfully pushed to the remote store",
	})

	pulledEntitiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_sync_pulled_entities_total",
		Help: "Entities reconciled from the remote store",
	})

	droppedOperationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_sync_dropped_operations_total",
		Help: "Outbox operations permanently dropped after exhausting retries",
	})

	syncDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyalty_sync_duration_seconds",
		Help:    "Time to run one sync cycle",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"})
)
