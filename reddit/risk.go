// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

var (
	riskScoreGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "axon",
			Subsystem: "reddit",
			Name:      "risk_score",
			Help:      "Blended forbidden/empty response ratio for the current run",
		},
	)
	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "reddit",
			Name:      "upstream_requests_total",
			Help:      "Total upstream API requests by result",
		},
		[]string{"result"},
	)
)

var registerRiskMetrics sync.Once

func init() {
	registerRiskMetrics.Do(func() {
		prometheus.MustRegister(riskScoreGauge, upstreamRequests)
	})
}

// Governor watches the mix of upstream responses for signs that the
// account is being throttled or shadowbanned. Forbidden responses weigh
// heavier than empty listings because Reddit serves HTTP 403 to banned
// clients, while empty listings can also mean a quiet subreddit.
type Governor struct {
	total     atomic.Int64
	forbidden atomic.Int64
	empty     atomic.Int64
	threshold float64
}

func NewGovernor(threshold float64) *Governor {
	return &Governor{threshold: threshold}
}

// RecordSuccess counts one upstream call that completed normally.
func (g *Governor) RecordSuccess() {
	g.total.Inc()
	upstreamRequests.WithLabelValues("ok").Inc()
	riskScoreGauge.Set(g.Score())
}

// RecordForbidden counts one upstream call rejected with HTTP 403.
func (g *Governor) RecordForbidden() {
	g.total.Inc()
	g.forbidden.Inc()
	upstreamRequests.WithLabelValues("forbidden").Inc()
	riskScoreGauge.Set(g.Score())
}

// RecordFailure counts one upstream call that failed for any other
// reason. Failures don't feed the risk score but still spend budget.
func (g *Governor) RecordFailure() {
	g.total.Inc()
	upstreamRequests.WithLabelValues("error").Inc()
	riskScoreGauge.Set(g.Score())
}

// RecordEmpty counts a listing that came back with no entries at all.
func (g *Governor) RecordEmpty() {
	g.empty.Inc()
	upstreamRequests.WithLabelValues("empty").Inc()
	riskScoreGauge.Set(g.Score())
}

// Score blends the forbidden and empty ratios into [0, 1].
func (g *Governor) Score() float64 {
	total := g.total.Load()
	if total == 0 {
		return 0
	}
	score := 0.6*(float64(g.forbidden.Load())/float64(total)) +
		0.4*(float64(g.empty.Load())/float64(total))
	if score > 1 {
		score = 1
	}
	return score
}

// Check returns ErrRiskLockout once the score has crossed the
// threshold. Callers check before every upstream request.
func (g *Governor) Check() error {
	if g.Score() > g.threshold {
		return ErrRiskLockout
	}
	return nil
}

// Reset clears the counters at the start of a run.
func (g *Governor) Reset() {
	g.total.Store(0)
	g.forbidden.Store(0)
	g.empty.Store(0)
	riskScoreGauge.Set(0)
}
