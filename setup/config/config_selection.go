// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import "time"

type Selection struct {
	Global *Global `yaml:"-"`

	// PostReplyRatio is the fraction of a run's replies that should target
	// top-level posts rather than comments, e.g. 0.3 for 30% posts.
	PostReplyRatio float64 `yaml:"post_reply_ratio"`

	// Per-class caps within a single run.
	MaxPostRepliesPerRun    int `yaml:"max_post_replies_per_run"`
	MaxCommentRepliesPerRun int `yaml:"max_comment_replies_per_run"`

	// MaxPerRun caps how many drafts one run may queue in total.
	MaxPerRun int `yaml:"max_per_run"`

	// MaxPerDay caps published replies per UTC calendar day across runs.
	MaxPerDay int `yaml:"max_per_day"`

	// Candidates scoring below these never reach selection.
	MinScore     float64 `yaml:"min_score"`
	MinScorePost float64 `yaml:"min_score_post"`

	// ExplorationRate is the probability that the top ExplorationTopN
	// ordered candidates are shuffled, so selection order is not fully
	// deterministic.
	ExplorationRate float64 `yaml:"exploration_rate"`
	ExplorationTopN int     `yaml:"exploration_top_n"`

	Diversity Diversity `yaml:"diversity"`

	// Cooldowns before a failed item may be attempted again. Inbox items
	// fail transiently more often, so they retry sooner.
	InboxCooldown     time.Duration `yaml:"inbox_cooldown"`
	DiscoveryCooldown time.Duration `yaml:"discovery_cooldown"`
}

// Diversity caps stop a run from concentrating on one thread or one
// subreddit.
type Diversity struct {
	Enabled bool `yaml:"enabled"`

	// At most this many selections per subreddit per run...
	MaxPerSubreddit int `yaml:"max_per_subreddit"`
	// ...and strictly this many per thread.
	MaxPerThread int `yaml:"max_per_thread"`

	// Candidates scoring above the boost threshold may take slots
	// beyond MaxPerSubreddit. The thread cap has no such override.
	QualityBoostThreshold float64 `yaml:"quality_boost_threshold"`
}

func (c *Selection) Defaults(opts DefaultOpts) {
	c.PostReplyRatio = 0.3
	c.MaxPostRepliesPerRun = 1
	c.MaxCommentRepliesPerRun = 2
	c.MaxPerRun = 3
	c.MaxPerDay = 8
	c.MinScore = 0.35
	c.MinScorePost = 0.40
	c.ExplorationRate = 0.25
	c.ExplorationTopN = 5
	c.Diversity = Diversity{
		Enabled:               true,
		MaxPerSubreddit:       2,
		MaxPerThread:          1,
		QualityBoostThreshold: 0.75,
	}
	c.InboxCooldown = 6 * time.Hour
	c.DiscoveryCooldown = 24 * time.Hour
}

func (c *Selection) Verify(configErrs *ConfigErrors) {
	checkUnitInterval(configErrs, "selection.post_reply_ratio", c.PostReplyRatio)
	checkUnitInterval(configErrs, "selection.exploration_rate", c.ExplorationRate)
	checkUnitInterval(configErrs, "selection.min_score", c.MinScore)
	checkUnitInterval(configErrs, "selection.min_score_post", c.MinScorePost)
	checkPositive(configErrs, "selection.max_per_run", int64(c.MaxPerRun))
	checkPositive(configErrs, "selection.max_per_day", int64(c.MaxPerDay))
	checkPositive(configErrs, "selection.exploration_top_n", int64(c.ExplorationTopN))
	if c.Diversity.Enabled {
		if c.Diversity.MaxPerThread < 1 {
			configErrs.Add("selection.diversity.max_per_thread must be at least 1")
		}
		if c.Diversity.MaxPerSubreddit < 1 {
			configErrs.Add("selection.diversity.max_per_subreddit must be at least 1")
		}
		checkUnitInterval(configErrs, "selection.diversity.quality_boost_threshold", c.Diversity.QualityBoostThreshold)
	}
	if c.InboxCooldown <= 0 || c.DiscoveryCooldown <= 0 {
		configErrs.Add("selection cooldowns must be positive durations")
	}
}
