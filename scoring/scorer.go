// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package scoring ranks candidates by how likely a reply is to land
// well: thread quality, timing, author standing and what history says
// about the subreddit. Scores live in [0, 1] and degrade to a neutral
// 0.5 whenever a signal cannot be read, so scoring never blocks the
// pipeline.
package scoring

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/reddit"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/types"
)

// neutralScore is what any signal scores when it cannot be evaluated.
const neutralScore = 0.5

// KarmaSource resolves an author's combined karma. *reddit.Client
// satisfies this.
type KarmaSource interface {
	AuthorKarma(ctx context.Context, username string) (int64, error)
}

// HistorySource produces the historical sub-score for a subreddit and
// item class. *Tracker satisfies this.
type HistorySource interface {
	SubredditScore(ctx context.Context, subreddit string, class types.ItemClass) float64
}

// Scorer computes the composite quality score of candidates.
type Scorer struct {
	cfg     *config.Scoring
	karma   KarmaSource
	history HistorySource
}

func NewScorer(cfg *config.Scoring, karma KarmaSource, history HistorySource) *Scorer {
	return &Scorer{
		cfg:     cfg,
		karma:   karma,
		history: history,
	}
}

// Score computes the weighted composite for one candidate and stamps it
// onto the candidate. The seven weights are normalized by their sum, so
// only their relative sizes matter.
func (s *Scorer) Score(ctx context.Context, candidate *types.Candidate) float64 {
	if !s.cfg.Enabled {
		candidate.QualityScore = neutralScore
		return neutralScore
	}
	total := s.cfg.Weights.Sum()
	if total <= 0 {
		candidate.QualityScore = neutralScore
		return neutralScore
	}

	w := s.cfg.Weights
	composite := (w.Upvote*s.upvoteScore(candidate) +
		w.Karma*s.karmaScore(ctx, candidate) +
		w.Freshness*s.freshnessScore(candidate) +
		w.Velocity*s.velocityScore(candidate) +
		w.Question*s.questionScore(candidate) +
		w.Depth*s.depthScore(candidate) +
		w.Historical*s.historicalScore(ctx, candidate)) / total

	candidate.QualityScore = composite
	return composite
}

// upvoteScore rates how well the thread is being received. Posts carry
// an upvote ratio; comments only have a raw score, so they get a
// coarser banding.
func (s *Scorer) upvoteScore(candidate *types.Candidate) float64 {
	if candidate.IsComment() {
		switch score := candidate.Score; {
		case score >= 10:
			return 0.85
		case score >= 5:
			return 0.75
		case score >= 2:
			return 0.65
		case score >= 0:
			return 0.55
		default:
			return 0.40
		}
	}
	switch ratio := candidate.UpvoteRatio; {
	case ratio >= s.cfg.UpvoteExcellent:
		return 1.0
	case ratio >= s.cfg.UpvoteGood:
		return 0.8
	case ratio >= s.cfg.UpvoteMixed:
		return 0.5
	default:
		return 0.2
	}
}

// karmaScore rates the author's standing. A vanished account scores
// zero; an unreadable one scores neutrally.
func (s *Scorer) karmaScore(ctx context.Context, candidate *types.Candidate) float64 {
	if s.karma == nil {
		return neutralScore
	}
	karma, err := s.karma.AuthorKarma(ctx, candidate.Author)
	if err != nil {
		var apiErr *reddit.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return 0.0
		}
		logrus.WithError(err).WithField("author", candidate.Author).Debug("Karma lookup failed, scoring neutrally")
		return neutralScore
	}
	candidate.AuthorKarma = karma
	switch {
	case karma >= s.cfg.KarmaEstablished:
		return 1.0
	case karma >= s.cfg.KarmaActive:
		return 0.8
	case karma >= s.cfg.KarmaRegular:
		return 0.5
	default:
		return 0.3
	}
}

// freshnessScore rates how recently the item was created. Replies to
// young threads get read; replies to cold ones don't.
func (s *Scorer) freshnessScore(candidate *types.Candidate) float64 {
	switch age := time.Since(candidate.CreatedAt); {
	case age < s.cfg.FreshnessHot:
		return 1.0
	case age < s.cfg.FreshnessActive:
		return 0.8
	case age < s.cfg.FreshnessWarm:
		return 0.6
	case age < s.cfg.FreshnessCooling:
		return 0.4
	default:
		return 0.2
	}
}

// velocityScore rates how fast the conversation is moving, in comments
// per minute of the parent thread's life. Very young threads get an age
// floor of one minute so the division stays sane.
func (s *Scorer) velocityScore(candidate *types.Candidate) float64 {
	if candidate.IsComment() && candidate.ParentCreatedAt.IsZero() {
		// Thread stats were never fetched; don't score an unknown.
		return neutralScore
	}
	minutes := time.Since(candidate.ThreadCreatedAt()).Minutes()
	if minutes < 1 {
		minutes = 1
	}
	switch velocity := float64(candidate.CommentCount) / minutes; {
	case velocity >= s.cfg.VelocityViral:
		return 1.0
	case velocity >= s.cfg.VelocityHigh:
		return 0.8
	case velocity >= s.cfg.VelocityModerate:
		return 0.6
	case velocity >= s.cfg.VelocityLow:
		return 0.4
	default:
		return 0.2
	}
}

// questionScore rates whether the item is asking for something a reply
// can actually provide. Signals stack up to a cap of 1.0.
func (s *Scorer) questionScore(candidate *types.Candidate) float64 {
	score := 0.0
	if strings.Contains(candidate.TitleText(), "?") {
		score += 0.4
	}
	text := candidate.ContextText()
	if containsAny(text, s.cfg.HelpKeywords) {
		score += 0.3
	}
	if containsAny(text, s.cfg.ProblemKeywords) {
		score += 0.3
	}
	if score == 0 {
		return 0.2
	}
	if score > 1 {
		return 1.0
	}
	return score
}

// depthScore rates the size of the conversation. The ideal window is a
// thread big enough to be alive but small enough that a reply is seen.
func (s *Scorer) depthScore(candidate *types.Candidate) float64 {
	if candidate.IsComment() && candidate.ParentCreatedAt.IsZero() {
		return neutralScore
	}
	n := int(candidate.CommentCount)
	switch {
	case n >= s.cfg.DepthIdealMin && n <= s.cfg.DepthIdealMax:
		return 1.0
	case n >= s.cfg.DepthEarlyMin && n < s.cfg.DepthIdealMin:
		return 0.8
	case n > s.cfg.DepthIdealMax && n <= s.cfg.DepthCrowdedMax:
		return 0.7
	case n < s.cfg.DepthEarlyMin:
		return 0.4
	default:
		return 0.3
	}
}

func (s *Scorer) historicalScore(ctx context.Context, candidate *types.Candidate) float64 {
	if s.history == nil {
		return neutralScore
	}
	return s.history.SubredditScore(ctx, candidate.Subreddit, candidate.Class)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
