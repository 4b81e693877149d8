// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"time"
)

type Scoring struct {
	Global *Global `yaml:"-"`

	// Enabled turns composite quality scoring on. When disabled every
	// candidate scores the neutral 0.5.
	Enabled bool `yaml:"enabled"`

	// Weights for the seven sub-scores. They are normalized to sum to 1
	// before use, so only their relative sizes matter.
	Weights ScoreWeights `yaml:"weights"`

	// Karma thresholds for the author sub-score.
	KarmaEstablished int64 `yaml:"karma_established"`
	KarmaActive      int64 `yaml:"karma_active"`
	KarmaRegular     int64 `yaml:"karma_regular"`

	// Upvote-ratio band edges.
	UpvoteExcellent float64 `yaml:"upvote_excellent"`
	UpvoteGood      float64 `yaml:"upvote_good"`
	UpvoteMixed     float64 `yaml:"upvote_mixed"`

	// Freshness band edges, youngest first.
	FreshnessHot     time.Duration `yaml:"freshness_hot"`
	FreshnessActive  time.Duration `yaml:"freshness_active"`
	FreshnessWarm    time.Duration `yaml:"freshness_warm"`
	FreshnessCooling time.Duration `yaml:"freshness_cooling"`

	// Velocity band edges in comments per minute.
	VelocityViral    float64 `yaml:"velocity_viral"`
	VelocityHigh     float64 `yaml:"velocity_high"`
	VelocityModerate float64 `yaml:"velocity_moderate"`
	VelocityLow      float64 `yaml:"velocity_low"`

	// Thread-depth windows measured in comment count.
	DepthIdealMin   int `yaml:"depth_ideal_min"`
	DepthIdealMax   int `yaml:"depth_ideal_max"`
	DepthEarlyMin   int `yaml:"depth_early_min"`
	DepthCrowdedMax int `yaml:"depth_crowded_max"`

	// Phrases that mark a title or body as seeking help or describing a
	// problem, for the question sub-score.
	HelpKeywords    []string `yaml:"help_keywords"`
	ProblemKeywords []string `yaml:"problem_keywords"`

	Learning Learning `yaml:"learning"`

	Engagement EngagementCheck `yaml:"engagement"`
}

type ScoreWeights struct {
	Upvote     float64 `yaml:"upvote"`
	Karma      float64 `yaml:"karma"`
	Freshness  float64 `yaml:"freshness"`
	Velocity   float64 `yaml:"velocity"`
	Question   float64 `yaml:"question"`
	Depth      float64 `yaml:"depth"`
	Historical float64 `yaml:"historical"`
}

// Learning configures the historical performance signal derived from past
// draft outcomes.
type Learning struct {
	Enabled bool `yaml:"enabled"`

	// MinSamples is the number of records a subreddit needs before its
	// history influences scoring at all.
	MinSamples int `yaml:"min_samples"`

	// Recency decay windows. Records older than DecayOld still count,
	// just with the smallest weight.
	DecayRecent time.Duration `yaml:"decay_recent"`
	DecayMedium time.Duration `yaml:"decay_medium"`
	DecayOld    time.Duration `yaml:"decay_old"`

	// Component weights for the blended historical score.
	WeightApproval   float64 `yaml:"weight_approval"`
	WeightPublish    float64 `yaml:"weight_publish"`
	WeightEngagement float64 `yaml:"weight_engagement"`
	WeightSuccess    float64 `yaml:"weight_success"`

	// How long a computed subreddit score may be served from cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// EngagementCheck configures the deferred observation of published replies.
type EngagementCheck struct {
	Enabled bool `yaml:"enabled"`
	// Delay after publishing before upvotes and replies are sampled.
	Delay time.Duration `yaml:"delay"`
}

func (c *Scoring) Defaults(opts DefaultOpts) {
	c.Enabled = true
	c.Weights = ScoreWeights{
		Upvote:     0.15,
		Karma:      0.10,
		Freshness:  0.20,
		Velocity:   0.15,
		Question:   0.15,
		Depth:      0.10,
		Historical: 0.15,
	}
	c.KarmaEstablished = 10000
	c.KarmaActive = 1000
	c.KarmaRegular = 100
	c.UpvoteExcellent = 0.90
	c.UpvoteGood = 0.75
	c.UpvoteMixed = 0.60
	c.FreshnessHot = 15 * time.Minute
	c.FreshnessActive = 30 * time.Minute
	c.FreshnessWarm = time.Hour
	c.FreshnessCooling = 2 * time.Hour
	c.VelocityViral = 1.0
	c.VelocityHigh = 0.5
	c.VelocityModerate = 0.2
	c.VelocityLow = 0.1
	c.DepthIdealMin = 5
	c.DepthIdealMax = 15
	c.DepthEarlyMin = 3
	c.DepthCrowdedMax = 30
	c.HelpKeywords = []string{"how do i", "help", "advice", "recommend", "suggest", "anyone know"}
	c.ProblemKeywords = []string{"issue", "problem", "error", "stuck", "struggling", "trouble"}
	c.Learning = Learning{
		Enabled:          true,
		MinSamples:       5,
		DecayRecent:      7 * 24 * time.Hour,
		DecayMedium:      30 * 24 * time.Hour,
		DecayOld:         90 * 24 * time.Hour,
		WeightApproval:   0.30,
		WeightPublish:    0.20,
		WeightEngagement: 0.30,
		WeightSuccess:    0.20,
		CacheTTL:         5 * time.Minute,
	}
	c.Engagement = EngagementCheck{
		Enabled: true,
		Delay:   24 * time.Hour,
	}
}

func (c *Scoring) Verify(configErrs *ConfigErrors) {
	for _, w := range []struct {
		key   string
		value float64
	}{
		{"scoring.weights.upvote", c.Weights.Upvote},
		{"scoring.weights.karma", c.Weights.Karma},
		{"scoring.weights.freshness", c.Weights.Freshness},
		{"scoring.weights.velocity", c.Weights.Velocity},
		{"scoring.weights.question", c.Weights.Question},
		{"scoring.weights.depth", c.Weights.Depth},
		{"scoring.weights.historical", c.Weights.Historical},
	} {
		checkUnitInterval(configErrs, w.key, w.value)
	}
	if c.Weights.Sum() <= 0 {
		configErrs.Add("scoring.weights must not all be zero")
	}
	if c.DepthIdealMin > c.DepthIdealMax {
		configErrs.Add("scoring.depth_ideal_min must not exceed scoring.depth_ideal_max")
	}
	if c.Learning.Enabled {
		checkPositive(configErrs, "scoring.learning.min_samples", int64(c.Learning.MinSamples))
		if s := c.Learning.WeightApproval + c.Learning.WeightPublish + c.Learning.WeightEngagement + c.Learning.WeightSuccess; s <= 0 {
			configErrs.Add("scoring.learning component weights must not all be zero")
		}
	}
}

// Sum returns the raw (pre-normalization) total of the seven weights.
func (w ScoreWeights) Sum() float64 {
	return w.Upvote + w.Karma + w.Freshness + w.Velocity + w.Question + w.Depth + w.Historical
}
