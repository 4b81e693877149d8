// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package pipeline runs one discovery cycle end to end: fetch
// candidates, score them, admit the few that survive the selection
// stages, generate a draft reply for each and queue it for human
// approval. The loop is strictly sequential and fault-isolated per
// item; the only thing that aborts a run outright is the risk
// governor's kill-switch.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/generator"
	"github.com/element-hq/axon/notify"
	"github.com/element-hq/axon/reddit"
	"github.com/element-hq/axon/selection"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/types"
)

// Source produces candidates from the upstream platform. Implemented by
// *reddit.Client.
type Source interface {
	ResetRun()
	UnreadReplies(ctx context.Context) ([]types.Candidate, error)
	RisingAcrossSubreddits(ctx context.Context) ([]types.Candidate, []error)
	DiscoveryReplies(ctx context.Context, posts []types.Candidate) ([]types.Candidate, []error)
	AncestorChain(ctx context.Context, candidate *types.Candidate) ([]types.ThreadMessage, error)
	Risk() *reddit.Governor
}

// RuleChecker vets a subreddit's posted rules. Implemented by
// *reddit.RuleEngine.
type RuleChecker interface {
	Check(ctx context.Context, subreddit string) types.RuleVerdict
}

// Scorer assigns the composite quality score. Implemented by
// *scoring.Scorer.
type Scorer interface {
	Score(ctx context.Context, candidate *types.Candidate) float64
}

// ContentGenerator writes the draft reply. Implemented by
// *generator.Generator.
type ContentGenerator interface {
	Generate(ctx context.Context, req generator.Request) (string, error)
}

// Pipeline wires the discovery run together. Construct with New and
// reuse across runs; all cross-run state lives in the database.
type Pipeline struct {
	cfg      *config.Axon
	db       storage.Database
	source   Source
	rules    RuleChecker
	scorer   Scorer
	selector *selection.Selector
	gate     *selection.DailyGate
	guard    *ReplayGuard
	gen      ContentGenerator
	builder  *generator.ContextBuilder
	notifier notify.Notifier

	// DryRun exercises every read path but queues nothing: no draft
	// rows, no notifications, no jitter.
	DryRun bool

	sleep func(ctx context.Context, d time.Duration)
	rng   *rand.Rand
	now   func() time.Time
}

func New(
	cfg *config.Axon,
	db storage.Database,
	source Source,
	rules RuleChecker,
	scorer Scorer,
	gen ContentGenerator,
	notifier notify.Notifier,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		db:       db,
		source:   source,
		rules:    rules,
		scorer:   scorer,
		selector: selection.NewSelector(&cfg.Selection),
		gate:     selection.NewDailyGate(db, cfg.Selection.MaxPerDay),
		guard:    NewReplayGuard(db, &cfg.Selection),
		gen:      gen,
		builder:  generator.NewContextBuilder(cfg.Generator.MaxContextChars),
		notifier: notifier,
		sleep:    sleepContext,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Guard exposes the replay guard, shared with the publisher so both
// write the same ledger.
func (p *Pipeline) Guard() *ReplayGuard {
	return p.guard
}

// Run executes one full discovery cycle. The returned report is always
// populated, even when the run aborted; err is non-nil only for the
// risk kill-switch and other run-fatal conditions.
func (p *Pipeline) Run(ctx context.Context) (*types.RunReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipeline.Run")
	defer span.Finish()

	report := &types.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
	}
	defer func() {
		report.Duration = p.now().UTC().Sub(report.StartedAt)
	}()

	runsStarted.Inc()
	log := logrus.WithField("run_id", report.RunID)
	log.WithField("dry_run", p.DryRun).Info("Starting discovery run")

	p.source.ResetRun()

	posts, comments, err := p.fetch(ctx, report, log)
	if err != nil {
		runsAborted.Inc()
		log.WithError(err).Error("Run aborted while fetching candidates")
		return report, err
	}
	report.PostsFound = len(posts)
	report.CommentsFound = len(comments)

	pool, err := p.admit(ctx, report, log, posts, comments)
	if err != nil {
		runsAborted.Inc()
		log.WithError(err).Error("Run aborted while admitting candidates")
		return report, err
	}
	report.Admitted = len(pool)
	log.WithFields(logrus.Fields{
		"posts_found":    report.PostsFound,
		"comments_found": report.CommentsFound,
		"admitted":       report.Admitted,
	}).Info("Candidate admission complete")

	if err := p.dispatch(ctx, report, log, pool); err != nil {
		runsAborted.Inc()
		log.WithError(err).Error("Run aborted while dispatching")
		return report, err
	}

	log.WithFields(logrus.Fields{
		"dispatched": report.Dispatched,
		"errors":     report.ErrorCount(),
		"risk_score": p.source.Risk().Score(),
	}).Info("Discovery run finished")
	return report, nil
}

// fetch pulls the run's candidate pools: operator-addressed inbox items
// first when enabled, then rising posts across the configured
// subreddits, then discovery replies underneath those posts. Source
// errors are item-local unless the kill-switch tripped.
func (p *Pipeline) fetch(ctx context.Context, report *types.RunReport, log *logrus.Entry) (posts, comments []types.Candidate, err error) {
	if p.cfg.Reddit.InboxEnabled {
		inbox, err := p.source.UnreadReplies(ctx)
		if err != nil {
			if reddit.IsFatal(err) {
				return nil, nil, err
			}
			p.recordError(ctx, report, "fetch_inbox", "", err)
		}
		comments = append(comments, inbox...)
	}

	rising, errs := p.source.RisingAcrossSubreddits(ctx)
	for _, ferr := range errs {
		if reddit.IsFatal(ferr) {
			return nil, nil, ferr
		}
		p.recordError(ctx, report, "fetch_rising", "", ferr)
	}
	posts = append(posts, rising...)

	replies, errs := p.source.DiscoveryReplies(ctx, rising)
	for _, ferr := range errs {
		if reddit.IsFatal(ferr) {
			return nil, nil, ferr
		}
		p.recordError(ctx, report, "fetch_replies", "", ferr)
	}
	comments = append(comments, replies...)

	log.WithFields(logrus.Fields{
		"posts":    len(posts),
		"comments": len(comments),
	}).Debug("Candidate pools fetched")
	return posts, comments, nil
}

// admit runs the selection stages in order: ratio split, scoring, the
// replay ledger, subreddit rules, priority ordering and the diversity
// caps. Each stage only removes or reorders.
func (p *Pipeline) admit(ctx context.Context, report *types.RunReport, log *logrus.Entry, posts, comments []types.Candidate) ([]types.Candidate, error) {
	pool := p.selector.RatioSplit(posts, comments)

	for i := range pool {
		pool[i].QualityScore = p.scorer.Score(ctx, &pool[i])
	}
	pool = p.selector.ScoreFloor(pool)

	retryable := pool[:0]
	for i := range pool {
		ok, err := p.guard.IsRetryable(ctx, pool[i].Fullname)
		if err != nil {
			return nil, fmt.Errorf("replay ledger lookup failed: %w", err)
		}
		if !ok {
			log.WithField("fullname", pool[i].Fullname).Debug("Dropping previously attempted item")
			continue
		}
		retryable = append(retryable, pool[i])
	}
	pool = retryable

	allowed := pool[:0]
	for i := range pool {
		verdict := p.rules.Check(ctx, pool[i].Subreddit)
		if verdict.Restricted() {
			log.WithFields(logrus.Fields{
				"fullname":  pool[i].Fullname,
				"subreddit": pool[i].Subreddit,
				"reason":    verdict.Reason,
			}).Info("Subreddit rules restrict participation, skipping item")
			if err := p.guard.MarkAttempt(ctx, &pool[i], types.AttemptSkipped); err != nil {
				p.recordError(ctx, report, "mark_skipped", pool[i].Fullname, err)
			}
			continue
		}
		allowed = append(allowed, pool[i])
	}
	pool = allowed

	pool = p.selector.Order(pool)
	pool = p.selector.DiversityFilter(pool)
	return pool, nil
}

// dispatch walks the admitted pool one item at a time: gate on the
// daily cap, build context, generate, queue the draft and notify the
// reviewer. Failures on one item never stop the next.
func (p *Pipeline) dispatch(ctx context.Context, report *types.RunReport, log *logrus.Entry, pool []types.Candidate) error {
	for i := range pool {
		candidate := &pool[i]

		ok, err := p.gate.Admit(ctx, p.now())
		if err != nil {
			return fmt.Errorf("daily cap lookup failed: %w", err)
		}
		if !ok {
			log.Info("Daily publish cap reached, stopping dispatch for this run")
			return nil
		}

		queued, err := p.dispatchOne(ctx, report, log, candidate)
		if err != nil {
			if reddit.IsFatal(err) {
				return err
			}
			// Already recorded; the item carries no replay record so a
			// later run may rediscover it.
			continue
		}
		if queued {
			report.Dispatched++
		}

		if !p.DryRun && i < len(pool)-1 {
			p.jitter(ctx, log)
		}
	}
	return nil
}

func (p *Pipeline) dispatchOne(ctx context.Context, report *types.RunReport, log *logrus.Entry, candidate *types.Candidate) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipeline.dispatchOne")
	span.SetTag("fullname", candidate.Fullname)
	defer span.Finish()

	convo, err := p.buildContext(ctx, candidate)
	if err != nil {
		p.recordError(ctx, report, "build_context", candidate.Fullname, err)
		return false, err
	}

	content, err := p.gen.Generate(ctx, generator.Request{
		Subreddit: candidate.Subreddit,
		Context:   convo,
	})
	if err != nil {
		p.recordError(ctx, report, "generate", candidate.Fullname, err)
		return false, err
	}

	if p.DryRun {
		log.WithFields(logrus.Fields{
			"fullname":  candidate.Fullname,
			"subreddit": candidate.Subreddit,
			"score":     candidate.QualityScore,
			"length":    len(content),
		}).Info("Dry run: would queue draft")
		return true, nil
	}

	draft := &types.DraftRecord{
		DraftID:      uuid.NewString(),
		Fullname:     candidate.Fullname,
		Subreddit:    candidate.Subreddit,
		Content:      content,
		Permalink:    candidate.Permalink,
		Class:        candidate.Class,
		QualityScore: candidate.QualityScore,
	}
	token, created, err := p.db.CreateDraft(ctx, draft)
	if err != nil {
		p.recordError(ctx, report, "create_draft", candidate.Fullname, err)
		return false, err
	}
	if !created {
		// Another run already queued this item. Not an error.
		log.WithField("fullname", candidate.Fullname).Warn("Draft already queued for item")
		return false, nil
	}
	draftsQueued.Inc()
	log.WithFields(logrus.Fields{
		"draft_id":  draft.DraftID,
		"fullname":  candidate.Fullname,
		"subreddit": candidate.Subreddit,
		"score":     candidate.QualityScore,
	}).Info("Draft queued for approval")

	if err := p.notifier.Notify(ctx, notify.Notification{
		DraftID:   draft.DraftID,
		Subreddit: draft.Subreddit,
		Content:   draft.Content,
		ThreadURL: draft.Permalink,
		Token:     token,
	}); err != nil {
		// The draft stays queued; the reviewer can still find it through
		// the pending listing even though the one-click links are lost.
		p.recordError(ctx, report, "notify", candidate.Fullname, err)
	}
	return true, nil
}

// buildContext assembles and scrubs the conversation the generator
// sees. Comments need their ancestor chain fetched first.
func (p *Pipeline) buildContext(ctx context.Context, candidate *types.Candidate) (string, error) {
	var packed string
	if candidate.IsComment() {
		chain, err := p.source.AncestorChain(ctx, candidate)
		if err != nil {
			return "", err
		}
		packed = p.builder.BuildCommentContext(candidate, chain)
	} else {
		packed = p.builder.BuildPostContext(candidate)
	}
	return generator.ScrubPII(packed), nil
}

// jitter sleeps a random duration inside the configured window so
// consecutive upstream writes stay humanly paced.
func (p *Pipeline) jitter(ctx context.Context, log *logrus.Entry) {
	window := p.cfg.Reddit.MaxJitter - p.cfg.Reddit.MinJitter
	d := p.cfg.Reddit.MinJitter
	if window > 0 {
		d += time.Duration(p.rng.Int63n(int64(window)))
	}
	if d <= 0 {
		return
	}
	log.WithField("jitter", d.Round(time.Second)).Info("Pausing between dispatches")
	p.sleep(ctx, d)
}

func (p *Pipeline) recordError(ctx context.Context, report *types.RunReport, stage, fullname string, err error) {
	report.AddError(stage, fullname, err)
	itemErrors.WithLabelValues(stage).Inc()
	logrus.WithError(err).WithFields(logrus.Fields{
		"run_id":   report.RunID,
		"stage":    stage,
		"fullname": fullname,
	}).Error("Pipeline stage failed for item")
	if dbErr := p.db.LogRunError(ctx, &types.ErrorLogEntry{
		RunID:    report.RunID,
		Stage:    stage,
		Fullname: fullname,
		Message:  err.Error(),
	}); dbErr != nil {
		logrus.WithError(dbErr).Warn("Failed to persist run error")
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
