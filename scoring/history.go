// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package scoring

import (
	"context"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/types"
)

const (
	// historyWindow bounds how many records one subreddit+class pair
	// contributes. Decay makes anything beyond this negligible anyway.
	historyWindow = 200

	// successUpvotes is the bar a published reply must clear to count as
	// a success in the historical blend.
	successUpvotes = 5

	// engagementCeiling converts raw engagement scores to [0, 1]. A
	// score of 10 (roughly 20 upvotes plus a few replies) saturates the
	// signal.
	engagementCeiling = 10.0
)

// Tracker turns past draft outcomes in one subreddit into a single
// score. Computation hits the database, so results are cached for
// Learning.CacheTTL; a run scores many candidates from the same few
// subreddits.
type Tracker struct {
	cfg   *config.Learning
	db    storage.Database
	cache *gocache.Cache
}

func NewTracker(cfg *config.Learning, db storage.Database) *Tracker {
	return &Tracker{
		cfg:   cfg,
		db:    db,
		cache: gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// SubredditScore blends four weighted rates over the recent outcome
// history of one subreddit and class:
//
//   - approval: drafts a human approved (or that went on to publish)
//   - publish: approved drafts that actually reached Reddit
//   - engagement: normalized engagement of published replies
//   - success: published replies that cleared the upvote bar
//
// Every record's contribution decays with age. Before MinSamples
// records exist the subreddit scores the neutral 0.5: too little
// history to reward or punish.
func (t *Tracker) SubredditScore(ctx context.Context, subreddit string, class types.ItemClass) float64 {
	if !t.cfg.Enabled {
		return neutralScore
	}
	key := subreddit + "/" + string(class)
	if cached, ok := t.cache.Get(key); ok {
		return cached.(float64)
	}
	score := t.computeScore(ctx, subreddit, class)
	t.cache.Set(key, score, gocache.DefaultExpiration)
	return score
}

func (t *Tracker) computeScore(ctx context.Context, subreddit string, class types.ItemClass) float64 {
	records, err := t.db.History(ctx, subreddit, class, historyWindow)
	if err != nil {
		logrus.WithError(err).WithField("subreddit", subreddit).Warn("Failed to load outcome history, scoring neutrally")
		return neutralScore
	}
	if len(records) < t.cfg.MinSamples {
		return neutralScore
	}

	now := time.Now()
	var total, approved, published float64
	var engagementWeight, engagementSum float64
	var succeeded float64
	for i := range records {
		rec := &records[i]
		w := t.decayWeight(now.Sub(rec.CreatedAt))
		total += w
		switch rec.Outcome {
		case types.DraftApproved:
			approved += w
		case types.DraftPublished:
			approved += w
			published += w
			if rec.EngagementScore != nil {
				engagementWeight += w
				engagementSum += w * *rec.EngagementScore
			}
			if rec.Upvotes != nil && *rec.Upvotes >= successUpvotes {
				succeeded += w
			}
		}
	}

	// Each component falls back to neutral when its denominator is
	// empty, so a subreddit with approvals but no publishes yet is not
	// punished for the missing signal.
	approvalRate := neutralScore
	if total > 0 {
		approvalRate = approved / total
	}
	publishRate := neutralScore
	if approved > 0 {
		publishRate = published / approved
	}
	engagementRate := neutralScore
	if engagementWeight > 0 {
		engagementRate = math.Min(engagementSum/engagementWeight/engagementCeiling, 1.0)
	}
	successRate := neutralScore
	if published > 0 {
		successRate = succeeded / published
	}

	weightSum := t.cfg.WeightApproval + t.cfg.WeightPublish + t.cfg.WeightEngagement + t.cfg.WeightSuccess
	if weightSum <= 0 {
		return neutralScore
	}
	return (approvalRate*t.cfg.WeightApproval +
		publishRate*t.cfg.WeightPublish +
		engagementRate*t.cfg.WeightEngagement +
		successRate*t.cfg.WeightSuccess) / weightSum
}

// decayWeight maps a record's age to its contribution. Old outcomes
// never vanish entirely; subreddit culture changes slowly.
func (t *Tracker) decayWeight(age time.Duration) float64 {
	switch {
	case age <= t.cfg.DecayRecent:
		return 1.0
	case age <= t.cfg.DecayMedium:
		return 0.7
	case age <= t.cfg.DecayOld:
		return 0.4
	default:
		return 0.2
	}
}
