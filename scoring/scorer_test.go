// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package scoring_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/element-hq/axon/reddit"
	"github.com/element-hq/axon/scoring"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/types"
)

type karmaStub struct {
	karma int64
	err   error
	calls int
}

func (k *karmaStub) AuthorKarma(_ context.Context, _ string) (int64, error) {
	k.calls++
	if k.err != nil {
		return 0, k.err
	}
	return k.karma, nil
}

type historyStub struct {
	score float64
}

func (h historyStub) SubredditScore(_ context.Context, _ string, _ types.ItemClass) float64 {
	return h.score
}

// soloWeight returns a default scoring config with every weight zeroed
// except the one the caller sets, so the composite equals that single
// sub-score.
func soloWeight(t *testing.T, set func(*config.ScoreWeights)) *config.Scoring {
	t.Helper()
	cfg := &config.Scoring{}
	cfg.Defaults(config.DefaultOpts{})
	cfg.Weights = config.ScoreWeights{}
	set(&cfg.Weights)
	return cfg
}

func scoredPost(mutate func(*types.Candidate)) *types.Candidate {
	c := &types.Candidate{
		Fullname:     "t3_abc123",
		Class:        types.ItemPost,
		Subreddit:    "golang",
		Author:       "gopher_dev",
		Title:        "Weekly release thread",
		Body:         "Changelog inside.",
		Score:        42,
		UpvoteRatio:  0.93,
		CommentCount: 8,
		CreatedAt:    time.Now().Add(-5 * time.Minute),
		Priority:     types.PriorityNormal,
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestScorer_DisabledScoresNeutrally(t *testing.T) {
	t.Parallel()

	cfg := &config.Scoring{}
	cfg.Defaults(config.DefaultOpts{})
	cfg.Enabled = false
	scorer := scoring.NewScorer(cfg, &karmaStub{karma: 50000}, historyStub{score: 1.0})

	candidate := scoredPost(nil)
	assert.InDelta(t, 0.5, scorer.Score(context.Background(), candidate), 0.0001)
	assert.InDelta(t, 0.5, candidate.QualityScore, 0.0001)
}

func TestScorer_ZeroWeightsScoreNeutrally(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(*config.ScoreWeights) {})
	scorer := scoring.NewScorer(cfg, nil, nil)

	assert.InDelta(t, 0.5, scorer.Score(context.Background(), scoredPost(nil)), 0.0001)
}

func TestScorer_UpvoteRatioBands(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Upvote = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	cases := []struct {
		ratio float64
		want  float64
	}{
		{0.95, 1.0},
		{0.90, 1.0},
		{0.80, 0.8},
		{0.65, 0.5},
		{0.30, 0.2},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("ratio_%.2f", tc.ratio), func(t *testing.T) {
			candidate := scoredPost(func(c *types.Candidate) { c.UpvoteRatio = tc.ratio })
			assert.InDelta(t, tc.want, scorer.Score(context.Background(), candidate), 0.0001)
		})
	}
}

func TestScorer_CommentScoreBands(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Upvote = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	cases := []struct {
		score int64
		want  float64
	}{
		{12, 0.85},
		{7, 0.75},
		{3, 0.65},
		{1, 0.55},
		{-2, 0.40},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("score_%d", tc.score), func(t *testing.T) {
			candidate := scoredPost(func(c *types.Candidate) {
				c.Class = types.ItemComment
				c.Score = tc.score
				c.UpvoteRatio = 0 // comments never carry one
			})
			assert.InDelta(t, tc.want, scorer.Score(context.Background(), candidate), 0.0001)
		})
	}
}

func TestScorer_KarmaBands(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Karma = 1 })

	cases := []struct {
		name  string
		karma int64
		want  float64
	}{
		{"established", 50000, 1.0},
		{"active", 5000, 0.8},
		{"regular", 500, 0.5},
		{"new_account", 50, 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source := &karmaStub{karma: tc.karma}
			scorer := scoring.NewScorer(cfg, source, nil)
			candidate := scoredPost(nil)
			assert.InDelta(t, tc.want, scorer.Score(context.Background(), candidate), 0.0001)
			assert.Equal(t, tc.karma, candidate.AuthorKarma, "fetched karma should be stamped onto the candidate")
		})
	}
}

func TestScorer_VanishedAuthorScoresZero(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Karma = 1 })
	source := &karmaStub{err: &reddit.APIError{StatusCode: http.StatusNotFound, Endpoint: "/user/ghost/about"}}
	scorer := scoring.NewScorer(cfg, source, nil)

	assert.InDelta(t, 0.0, scorer.Score(context.Background(), scoredPost(nil)), 0.0001)
}

func TestScorer_KarmaLookupFailureScoresNeutrally(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Karma = 1 })

	scorer := scoring.NewScorer(cfg, &karmaStub{err: errors.New("connection reset")}, nil)
	assert.InDelta(t, 0.5, scorer.Score(context.Background(), scoredPost(nil)), 0.0001)

	// No karma source configured at all behaves the same way.
	scorer = scoring.NewScorer(cfg, nil, nil)
	assert.InDelta(t, 0.5, scorer.Score(context.Background(), scoredPost(nil)), 0.0001)
}

func TestScorer_FreshnessBands(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Freshness = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{5 * time.Minute, 1.0},
		{20 * time.Minute, 0.8},
		{45 * time.Minute, 0.6},
		{90 * time.Minute, 0.4},
		{3 * time.Hour, 0.2},
	}
	for _, tc := range cases {
		t.Run(tc.age.String(), func(t *testing.T) {
			candidate := scoredPost(func(c *types.Candidate) {
				c.CreatedAt = time.Now().Add(-tc.age)
			})
			assert.InDelta(t, tc.want, scorer.Score(context.Background(), candidate), 0.0001)
		})
	}
}

func TestScorer_VelocityBands(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Velocity = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	cases := []struct {
		name     string
		age      time.Duration
		comments int64
		want     float64
	}{
		{"viral", 10 * time.Minute, 15, 1.0},
		{"high", 10 * time.Minute, 6, 0.8},
		{"moderate", 10 * time.Minute, 3, 0.6},
		{"low", 10 * time.Minute, 1, 0.4},
		{"dead", 10 * time.Minute, 0, 0.2},
		// Items younger than a minute get an age floor so two quick
		// comments do not read as infinite velocity.
		{"age_floor", 10 * time.Second, 2, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			candidate := scoredPost(func(c *types.Candidate) {
				c.CreatedAt = time.Now().Add(-tc.age)
				c.CommentCount = tc.comments
			})
			assert.InDelta(t, tc.want, scorer.Score(context.Background(), candidate), 0.0001)
		})
	}
}

func TestScorer_QuestionSignals(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Question = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	cases := []struct {
		name  string
		title string
		body  string
		want  float64
	}{
		{"no_signal", "Weekly release thread", "Changelog inside.", 0.2},
		{"question_mark_only", "Is this expected behaviour?", "", 0.4},
		{"help_keyword_only", "Recommendations for a linter", "", 0.3},
		{"problem_keyword_only", "Stuck on a migration", "", 0.3},
		{"all_signals", "How do I fix this error?", "", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			candidate := scoredPost(func(c *types.Candidate) {
				c.Title = tc.title
				c.Body = tc.body
			})
			assert.InDelta(t, tc.want, scorer.Score(context.Background(), candidate), 0.0001)
		})
	}
}

func TestScorer_ThreadDepthBands(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Depth = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	cases := []struct {
		comments int64
		want     float64
	}{
		{10, 1.0},
		{5, 1.0},
		{15, 1.0},
		{4, 0.8},
		{3, 0.8},
		{16, 0.7},
		{30, 0.7},
		{2, 0.4},
		{45, 0.3},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("comments_%d", tc.comments), func(t *testing.T) {
			candidate := scoredPost(func(c *types.Candidate) { c.CommentCount = tc.comments })
			assert.InDelta(t, tc.want, scorer.Score(context.Background(), candidate), 0.0001)
		})
	}
}

// scoredComment builds a comment candidate the way discovery does: the
// thread stats (CommentCount, ParentCreatedAt) come from the parent
// post, the comment only contributes its own body, score and age.
func scoredComment(mutate func(*types.Candidate)) *types.Candidate {
	c := &types.Candidate{
		Fullname:        "t1_def456",
		Class:           types.ItemComment,
		Subreddit:       "golang",
		Author:          "gopher_dev",
		Body:            "Same here, every clean build dies at link time.",
		ParentFullname:  "t3_abc123",
		ParentTitle:     "How do I fix this build error?",
		Score:           3,
		CommentCount:    40,
		CreatedAt:       time.Now().Add(-5 * time.Minute),
		ParentCreatedAt: time.Now().Add(-20 * time.Minute),
		Priority:        types.PriorityNormal,
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestScorer_CommentVelocityUsesParentThread(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Velocity = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	// 40 comments in 20 minutes is 2/min, a viral thread, even though
	// the comment itself is only 5 minutes old.
	got := scorer.Score(context.Background(), scoredComment(nil))
	assert.InDelta(t, 1.0, got, 0.0001)

	// A comment on a slow thread scores the floor regardless of its own
	// age.
	got = scorer.Score(context.Background(), scoredComment(func(c *types.Candidate) {
		c.CommentCount = 1
		c.ParentCreatedAt = time.Now().Add(-3 * time.Hour)
	}))
	assert.InDelta(t, 0.2, got, 0.0001)
}

func TestScorer_CommentDepthUsesParentThread(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Depth = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	// 40 comments overflows the crowded band.
	got := scorer.Score(context.Background(), scoredComment(nil))
	assert.InDelta(t, 0.3, got, 0.0001)

	got = scorer.Score(context.Background(), scoredComment(func(c *types.Candidate) {
		c.CommentCount = 10
	}))
	assert.InDelta(t, 1.0, got, 0.0001)
}

func TestScorer_CommentQuestionSignalsUseParentTitle(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Question = 1 })
	scorer := scoring.NewScorer(cfg, nil, nil)

	// "How do I fix this build error?" carries all three signals: the
	// question mark, a help keyword and a problem keyword.
	got := scorer.Score(context.Background(), scoredComment(nil))
	assert.InDelta(t, 1.0, got, 0.0001)

	got = scorer.Score(context.Background(), scoredComment(func(c *types.Candidate) {
		c.ParentTitle = "Weekly release thread"
		c.Body = "Nice changelog."
	}))
	assert.InDelta(t, 0.2, got, 0.0001)
}

func TestScorer_CommentWithUnknownThreadScoresNeutrally(t *testing.T) {
	t.Parallel()

	// When the parent thread could not be resolved, velocity and depth
	// must not read the zero values as a dead thread.
	unknown := func(c *types.Candidate) {
		c.CommentCount = 0
		c.ParentCreatedAt = time.Time{}
	}

	velocity := scoring.NewScorer(soloWeight(t, func(w *config.ScoreWeights) { w.Velocity = 1 }), nil, nil)
	assert.InDelta(t, 0.5, velocity.Score(context.Background(), scoredComment(unknown)), 0.0001)

	depth := scoring.NewScorer(soloWeight(t, func(w *config.ScoreWeights) { w.Depth = 1 }), nil, nil)
	assert.InDelta(t, 0.5, depth.Score(context.Background(), scoredComment(unknown)), 0.0001)
}

func TestScorer_HistoricalComesFromTracker(t *testing.T) {
	t.Parallel()

	cfg := soloWeight(t, func(w *config.ScoreWeights) { w.Historical = 1 })

	scorer := scoring.NewScorer(cfg, nil, historyStub{score: 0.9})
	assert.InDelta(t, 0.9, scorer.Score(context.Background(), scoredPost(nil)), 0.0001)

	// Without a tracker the signal is neutral.
	scorer = scoring.NewScorer(cfg, nil, nil)
	assert.InDelta(t, 0.5, scorer.Score(context.Background(), scoredPost(nil)), 0.0001)
}

func TestScorer_CompositeBlendsAllSignals(t *testing.T) {
	t.Parallel()

	cfg := &config.Scoring{}
	cfg.Defaults(config.DefaultOpts{})
	scorer := scoring.NewScorer(cfg, &karmaStub{karma: 50000}, historyStub{score: 0.9})

	// An excellent 5-minute-old post: every band maxes out except the
	// question signal (0.4 + 0.3 = 0.7) and history (0.9). With the
	// default weights summing to 1 the composite is
	// 0.15 + 0.10 + 0.20 + 0.15 + 0.15*0.7 + 0.10 + 0.15*0.9 = 0.94.
	candidate := scoredPost(func(c *types.Candidate) {
		c.Title = "How do I profile goroutines?"
		c.Body = "pprof output attached."
	})
	got := scorer.Score(context.Background(), candidate)
	assert.InDelta(t, 0.94, got, 0.0001)
	assert.InDelta(t, got, candidate.QualityScore, 0.0001)
}

func TestScorer_WeightsAreNormalizedBySum(t *testing.T) {
	t.Parallel()

	// Seven equal weights of 0.2 sum to 1.4; after normalization each
	// contributes 1/7 (~0.1429), so the composite must match the
	// default config, whose weights already sum to 1.
	uniform := &config.Scoring{}
	uniform.Defaults(config.DefaultOpts{})
	uniform.Weights = config.ScoreWeights{
		Upvote: 0.2, Karma: 0.2, Freshness: 0.2, Velocity: 0.2,
		Question: 0.2, Depth: 0.2, Historical: 0.2,
	}
	unit := &config.Scoring{}
	unit.Defaults(config.DefaultOpts{})
	unit.Weights = config.ScoreWeights{
		Upvote: 1.0 / 7, Karma: 1.0 / 7, Freshness: 1.0 / 7, Velocity: 1.0 / 7,
		Question: 1.0 / 7, Depth: 1.0 / 7, Historical: 1.0 / 7,
	}

	a := scoring.NewScorer(uniform, &karmaStub{karma: 50000}, historyStub{score: 0.9})
	b := scoring.NewScorer(unit, &karmaStub{karma: 50000}, historyStub{score: 0.9})

	gotA := a.Score(context.Background(), scoredPost(nil))
	gotB := b.Score(context.Background(), scoredPost(nil))
	assert.InDelta(t, gotA, gotB, 0.0001)
	assert.Greater(t, gotA, 0.0)
	assert.LessOrEqual(t, gotA, 1.0)
}
