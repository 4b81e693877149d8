// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package publish posts approved drafts upstream. Publishing is the
// only step that writes to Reddit, so it carries the same pacing and
// daily-cap discipline as discovery: one draft at a time, jitter in
// between, and a hard stop once the day's budget is spent.
package publish

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/notify"
	"github.com/element-hq/axon/reddit"
	"github.com/element-hq/axon/selection"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/types"
)

var publishes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "axon",
		Subsystem: "publish",
		Name:      "attempts_total",
		Help:      "Publish attempts by result",
	},
	[]string{"result"},
)

var registerPublishMetrics sync.Once

func init() {
	registerPublishMetrics.Do(func() {
		prometheus.MustRegister(publishes)
	})
}

// Submitter posts a reply under a parent item. Implemented by
// *reddit.Client.
type Submitter interface {
	SubmitComment(ctx context.Context, parentFullname, text string) (string, error)
}

// Report summarises one publish batch.
type Report struct {
	Attempted int
	Published int
	Errors    []types.RunError
}

// Publisher drains the approved draft queue.
type Publisher struct {
	cfg      *config.Axon
	db       storage.Database
	source   Submitter
	gate     *selection.DailyGate
	notifier notify.Notifier

	// DryRun walks the queue and logs what would be posted without
	// touching Reddit or the database.
	DryRun bool

	sleep func(ctx context.Context, d time.Duration)
	rng   *rand.Rand
	now   func() time.Time
}

func NewPublisher(cfg *config.Axon, db storage.Database, source Submitter, notifier notify.Notifier) *Publisher {
	return &Publisher{
		cfg:      cfg,
		db:       db,
		source:   source,
		gate:     selection.NewDailyGate(db, cfg.Selection.MaxPerDay),
		notifier: notifier,
		sleep:    sleepContext,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// PublishApproved posts up to limit approved drafts, oldest first. A
// failed draft stays approved so a later batch retries it; only the
// risk kill-switch aborts the batch.
func (p *Publisher) PublishApproved(ctx context.Context, limit int) (*Report, error) {
	report := &Report{}

	drafts, err := p.db.ApprovedDrafts(ctx, limit)
	if err != nil {
		return report, err
	}
	logrus.WithFields(logrus.Fields{
		"approved": len(drafts),
		"dry_run":  p.DryRun,
	}).Info("Starting publish batch")

	for i := range drafts {
		draft := &drafts[i]

		ok, err := p.gate.Admit(ctx, p.now())
		if err != nil {
			return report, err
		}
		if !ok {
			logrus.Info("Daily publish cap reached, stopping batch")
			return report, nil
		}

		report.Attempted++
		if err := p.publishOne(ctx, report, draft); err != nil {
			if reddit.IsFatal(err) {
				return report, err
			}
			continue
		}
		report.Published++

		if !p.DryRun && i < len(drafts)-1 {
			p.jitter(ctx)
		}
	}
	return report, nil
}

// PublishDraft posts a single approved draft by ID. The callback API
// uses it for auto-publish right after an approval, skipping the batch
// jitter since a human just acted.
func (p *Publisher) PublishDraft(ctx context.Context, draftID string) error {
	draft, err := p.db.GetDraft(ctx, draftID)
	if err != nil {
		return err
	}
	if draft == nil {
		return fmt.Errorf("no such draft %q", draftID)
	}
	if draft.Status != types.DraftApproved {
		return fmt.Errorf("draft %q is %s, not approved", draftID, draft.Status)
	}
	if ok, err := p.gate.Admit(ctx, p.now()); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("daily publish cap reached, draft %q stays queued", draftID)
	}
	return p.publishOne(ctx, &Report{}, draft)
}

func (p *Publisher) publishOne(ctx context.Context, report *Report, draft *types.DraftRecord) error {
	log := logrus.WithFields(logrus.Fields{
		"draft_id":  draft.DraftID,
		"fullname":  draft.Fullname,
		"subreddit": draft.Subreddit,
	})

	if p.DryRun {
		log.WithField("length", len(draft.Content)).Info("Dry run: would publish draft")
		return nil
	}

	posted, err := p.source.SubmitComment(ctx, draft.Fullname, draft.Content)
	if err != nil {
		publishes.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Failed to publish draft")
		report.Errors = append(report.Errors, types.RunError{
			Stage:    "publish",
			Fullname: draft.Fullname,
			Message:  err.Error(),
		})
		if markErr := p.markReplied(ctx, draft, types.AttemptFailed); markErr != nil {
			log.WithError(markErr).Warn("Failed to record failed attempt")
		}
		return err
	}

	now := p.now().UTC()
	updated, err := p.db.SetDraftPublished(ctx, draft.DraftID, posted, now)
	if err != nil {
		report.Errors = append(report.Errors, types.RunError{
			Stage:    "publish_record",
			Fullname: draft.Fullname,
			Message:  err.Error(),
		})
		return err
	}
	if !updated {
		// The draft moved out of approved underneath us; nothing to do.
		log.Warn("Draft no longer approved, skipping bookkeeping")
		return nil
	}

	if err := p.markReplied(ctx, draft, types.AttemptSuccess); err != nil {
		log.WithError(err).Warn("Failed to record successful attempt")
	}
	if err := p.db.IncrementPublishedCount(ctx, types.DayKey(now)); err != nil {
		log.WithError(err).Warn("Failed to increment daily counter")
	}
	if err := p.notifier.NotifyStatus(ctx, notify.StatusUpdate{
		DraftID:   draft.DraftID,
		Status:    types.DraftPublished,
		CommentID: posted,
	}); err != nil {
		log.WithError(err).Warn("Failed to deliver publish status update")
	}

	publishes.WithLabelValues("ok").Inc()
	log.WithField("posted", posted).Info("Draft published")
	return nil
}

// markReplied upserts the replay ledger for the draft's item. An
// existing record keeps its priority tier so a failed inbox reply still
// cools down on the short clock.
func (p *Publisher) markReplied(ctx context.Context, draft *types.DraftRecord, status types.AttemptStatus) error {
	priority := types.PriorityNormal
	if existing, err := p.db.GetReplayRecord(ctx, draft.Fullname); err == nil && existing != nil {
		priority = existing.Priority
	}
	return p.db.MarkReplied(ctx, &types.ReplayRecord{
		Fullname:    draft.Fullname,
		Subreddit:   draft.Subreddit,
		Status:      status,
		Class:       draft.Class,
		Priority:    priority,
		LastAttempt: p.now().UTC(),
	})
}

func (p *Publisher) jitter(ctx context.Context) {
	window := p.cfg.Reddit.MaxJitter - p.cfg.Reddit.MinJitter
	d := p.cfg.Reddit.MinJitter
	if window > 0 {
		d += time.Duration(p.rng.Int63n(int64(window)))
	}
	if d <= 0 {
		return
	}
	logrus.WithField("jitter", d.Round(time.Second)).Info("Pausing between publishes")
	p.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
