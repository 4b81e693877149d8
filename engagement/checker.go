// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package engagement observes how published replies fared. It runs
// independently of the discovery pipeline, a configured delay after
// publication, and only ever writes the engagement columns plus the
// checked flag, so it can safely overlap a running pipeline.
package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/reddit"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/types"
)

var checksRun = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "axon",
		Subsystem: "engagement",
		Name:      "checks_total",
		Help:      "Engagement checks by result",
	},
	[]string{"result"},
)

var registerEngagementMetrics sync.Once

func init() {
	registerEngagementMetrics.Do(func() {
		prometheus.MustRegister(checksRun)
	})
}

// MetricsSource reads the current engagement of a posted comment.
// Implemented by *reddit.Client.
type MetricsSource interface {
	FetchCommentMetrics(ctx context.Context, fullname string) (*reddit.CommentMetrics, error)
}

// Checker sweeps published drafts whose observation delay has passed.
type Checker struct {
	cfg    *config.Scoring
	db     storage.Database
	source MetricsSource

	now func() time.Time
}

func NewChecker(cfg *config.Scoring, db storage.Database, source MetricsSource) *Checker {
	return &Checker{
		cfg:    cfg,
		db:     db,
		source: source,
		now:    time.Now,
	}
}

// Report summarises one sweep.
type Report struct {
	Checked int
	Deleted int
	Errors  []types.RunError
}

// CheckOnce measures up to limit published drafts that are due. Every
// draft it looks at is flagged as checked, even when the posted comment
// turned out to be deleted, so the sweep never revisits a dead row. A
// fetch error leaves the draft unflagged for the next sweep.
func (c *Checker) CheckOnce(ctx context.Context, limit int) (*Report, error) {
	report := &Report{}
	if !c.cfg.Engagement.Enabled {
		logrus.Debug("Engagement checking is disabled")
		return report, nil
	}

	cutoff := c.now().Add(-c.cfg.Engagement.Delay)
	drafts, err := c.db.DraftsDueEngagementCheck(ctx, cutoff, limit)
	if err != nil {
		return report, err
	}
	logrus.WithFields(logrus.Fields{
		"due":    len(drafts),
		"cutoff": cutoff.UTC().Format(time.RFC3339),
	}).Info("Starting engagement sweep")

	for i := range drafts {
		draft := &drafts[i]
		if err := c.checkOne(ctx, report, draft); err != nil {
			if reddit.IsFatal(err) {
				return report, err
			}
			checksRun.WithLabelValues("error").Inc()
			report.Errors = append(report.Errors, types.RunError{
				Stage:    "engagement",
				Fullname: draft.PostedFullname,
				Message:  err.Error(),
			})
		}
	}
	return report, nil
}

func (c *Checker) checkOne(ctx context.Context, report *Report, draft *types.DraftRecord) error {
	log := logrus.WithFields(logrus.Fields{
		"draft_id": draft.DraftID,
		"posted":   draft.PostedFullname,
	})
	if draft.PostedFullname == "" {
		// Published without a posted id should not happen; flag it so
		// the sweep does not spin on it forever.
		log.Warn("Published draft has no posted fullname, flagging as checked")
		return c.db.MarkEngagementChecked(ctx, draft.PostedFullname)
	}

	metrics, err := c.source.FetchCommentMetrics(ctx, draft.PostedFullname)
	if err != nil {
		return err
	}

	if metrics.Deleted {
		report.Deleted++
		checksRun.WithLabelValues("deleted").Inc()
		log.Info("Posted comment no longer exists, flagging as checked")
		return c.db.MarkEngagementChecked(ctx, draft.PostedFullname)
	}

	score, err := c.db.RecordEngagement(ctx, draft.DraftID, metrics.Upvotes, metrics.Replies)
	if err != nil {
		return err
	}
	if err := c.db.MarkEngagementChecked(ctx, draft.PostedFullname); err != nil {
		return err
	}

	report.Checked++
	checksRun.WithLabelValues("ok").Inc()
	log.WithFields(logrus.Fields{
		"upvotes":          metrics.Upvotes,
		"replies":          metrics.Replies,
		"engagement_score": score,
	}).Info("Engagement recorded")
	return nil
}
