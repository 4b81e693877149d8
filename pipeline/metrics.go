// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "pipeline",
			Name:      "runs_started_total",
			Help:      "Discovery runs started",
		},
	)
	runsAborted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "pipeline",
			Name:      "runs_aborted_total",
			Help:      "Discovery runs aborted by the risk kill-switch",
		},
	)
	draftsQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "pipeline",
			Name:      "drafts_queued_total",
			Help:      "Drafts queued for human approval",
		},
	)
	itemErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "pipeline",
			Name:      "item_errors_total",
			Help:      "Item-local failures isolated during a run, by stage",
		},
		[]string{"stage"},
	)
)

var registerPipelineMetrics sync.Once

func init() {
	registerPipelineMetrics.Do(func() {
		prometheus.MustRegister(runsStarted, runsAborted, draftsQueued, itemErrors)
	})
}
