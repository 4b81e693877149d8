// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package selection decides which scored candidates a run may dispatch,
// and in what order. The stages run in a fixed sequence, each one only
// removing or reordering items: ratio split, score floor, priority
// sort with exploration, diversity caps. The daily cap is a gate
// consulted between dispatches, not a filter over the pool.
package selection

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/types"
)

// Selector applies the admission stages to run-scoped candidate slices.
type Selector struct {
	cfg *config.Selection
	rng *rand.Rand
}

func NewSelector(cfg *config.Selection) *Selector {
	return &Selector{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RatioSplit merges the two class pools into one dispatch pool sized by
// the configured post:comment ratio and the per-class run caps. Posts
// come first. When too few posts exist to hit the ratio target, spare
// slots are backfilled with comments; the reverse never happens, since
// a run light on comments should not overweight posts.
func (s *Selector) RatioSplit(posts, comments []types.Candidate) []types.Candidate {
	targetPosts := int(math.Round(float64(s.cfg.MaxPerRun) * s.cfg.PostReplyRatio))
	if targetPosts > s.cfg.MaxPostRepliesPerRun {
		targetPosts = s.cfg.MaxPostRepliesPerRun
	}
	if targetPosts > len(posts) {
		targetPosts = len(posts)
	}
	if targetPosts < 0 {
		targetPosts = 0
	}

	targetComments := s.cfg.MaxPerRun - targetPosts
	if targetComments > s.cfg.MaxCommentRepliesPerRun {
		targetComments = s.cfg.MaxCommentRepliesPerRun
	}
	if targetComments > len(comments) {
		targetComments = len(comments)
	}
	if targetComments < 0 {
		targetComments = 0
	}

	// Backfill: if the post pool fell short of the ratio target, let
	// comments take the unused slots, even past their per-class cap.
	if targetPosts < int(float64(s.cfg.MaxPerRun)*s.cfg.PostReplyRatio) && len(comments) > targetComments {
		extra := s.cfg.MaxPerRun - targetPosts - targetComments
		if remaining := len(comments) - targetComments; extra > remaining {
			extra = remaining
		}
		if extra > 0 {
			targetComments += extra
		}
	}

	selected := make([]types.Candidate, 0, targetPosts+targetComments)
	selected = append(selected, posts[:targetPosts]...)
	selected = append(selected, comments[:targetComments]...)

	logrus.WithFields(logrus.Fields{
		"posts":    targetPosts,
		"comments": targetComments,
		"ratio":    s.cfg.PostReplyRatio,
	}).Info("Selected candidates by ratio")
	return selected
}

// ScoreFloor drops candidates below the per-class minimum quality
// score. Posts carry the higher floor: a mediocre top-level reply is
// more visible than a mediocre comment.
func (s *Selector) ScoreFloor(candidates []types.Candidate) []types.Candidate {
	kept := make([]types.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		floor := s.cfg.MinScore
		if candidate.Class == types.ItemPost {
			floor = s.cfg.MinScorePost
		}
		if candidate.QualityScore < floor {
			logrus.WithFields(logrus.Fields{
				"fullname": candidate.Fullname,
				"score":    candidate.QualityScore,
				"floor":    floor,
			}).Debug("Dropping candidate below score floor")
			continue
		}
		kept = append(kept, candidate)
	}
	return kept
}

// Order sorts candidates by (priority tier, quality score), both
// descending, then with probability ExplorationRate shuffles just the
// top ExplorationTopN window. A fully deterministic order would make
// the account's behaviour fingerprintable and would starve
// never-quite-top candidates forever.
func (s *Selector) Order(candidates []types.Candidate) []types.Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return tierRank(candidates[i].Priority) > tierRank(candidates[j].Priority)
		}
		return candidates[i].QualityScore > candidates[j].QualityScore
	})

	window := s.cfg.ExplorationTopN
	if window > len(candidates) {
		window = len(candidates)
	}
	if window > 1 && s.rng.Float64() < s.cfg.ExplorationRate {
		s.rng.Shuffle(window, func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		logrus.WithField("window", window).Debug("Exploration shuffle applied")
	}
	return candidates
}

// DiversityFilter greedily walks the ordered pool enforcing the thread
// and subreddit caps. The thread cap is strict; the subreddit cap may
// be exceeded by candidates scoring above the quality-boost threshold.
func (s *Selector) DiversityFilter(candidates []types.Candidate) []types.Candidate {
	if !s.cfg.Diversity.Enabled {
		return candidates
	}
	perThread := make(map[string]int, len(candidates))
	perSubreddit := make(map[string]int, len(candidates))
	kept := make([]types.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		thread := candidate.ThreadFullname()
		if perThread[thread] >= s.cfg.Diversity.MaxPerThread {
			logrus.WithFields(logrus.Fields{
				"fullname": candidate.Fullname,
				"thread":   thread,
			}).Debug("Thread already selected, dropping candidate")
			continue
		}
		if perSubreddit[candidate.Subreddit] >= s.cfg.Diversity.MaxPerSubreddit &&
			candidate.QualityScore <= s.cfg.Diversity.QualityBoostThreshold {
			logrus.WithFields(logrus.Fields{
				"fullname":  candidate.Fullname,
				"subreddit": candidate.Subreddit,
				"score":     candidate.QualityScore,
			}).Debug("Subreddit cap reached, dropping candidate")
			continue
		}
		perThread[thread]++
		perSubreddit[candidate.Subreddit]++
		kept = append(kept, candidate)
	}
	return kept
}

func tierRank(p types.Priority) int {
	if p == types.PriorityHigh {
		return 1
	}
	return 0
}

// DailyGate enforces the cross-run publish cap. It is consulted before
// every dispatch; once it reports exhausted the caller stops
// dispatching for the remainder of the run.
type DailyGate struct {
	db  storage.Database
	max int
}

func NewDailyGate(db storage.Database, maxPerDay int) *DailyGate {
	return &DailyGate{db: db, max: maxPerDay}
}

// Admit reports whether the day identified by now still has quota.
func (g *DailyGate) Admit(ctx context.Context, now time.Time) (bool, error) {
	count, err := g.db.PublishedCountOn(ctx, types.DayKey(now))
	if err != nil {
		return false, err
	}
	return count < int64(g.max), nil
}
