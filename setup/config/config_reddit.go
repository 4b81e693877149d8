// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"
)

type Reddit struct {
	Global *Global `yaml:"-"`

	// Script-type OAuth2 app credentials. The password grant is the only
	// flow Reddit allows for single-account bots.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	// Password may be left empty in the config file and supplied through
	// the AXON_REDDIT_PASSWORD environment variable instead.
	Password string `yaml:"password"`

	// UserAgent must follow Reddit's API rules, e.g.
	// "android:com.example.axon:v1.2 (by /u/YourUsername)".
	UserAgent string `yaml:"user_agent"`

	// The subreddits the agent discovers candidates in.
	Subreddits []string `yaml:"subreddits"`

	// InboxEnabled controls whether operator-addressed inbox items are
	// fetched ahead of discovery content.
	InboxEnabled bool `yaml:"inbox_enabled"`

	// Risk circuit breaker. When the blended forbidden/empty error rate
	// exceeds RiskThreshold the run is aborted outright.
	RiskThreshold float64 `yaml:"risk_threshold"`

	// RequestsPerRun is the upstream call budget for a single run. When
	// spent, further calls fail with a retryable error rather than the
	// kill-switch.
	RequestsPerRun int `yaml:"requests_per_run"`

	// Client-side pacing of upstream calls.
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`

	// Discovery filters for rising posts.
	MaxPostAge      time.Duration `yaml:"max_post_age"`
	MinPostComments int           `yaml:"min_post_comments"`
	MaxPostComments int           `yaml:"max_post_comments"`
	// Posts whose title or body mention any of these are never candidates.
	BlockedKeywords []string `yaml:"blocked_keywords"`

	// OneCommentPerPost caps reply discovery at a single comment per
	// post, spreading candidates across threads. Turning it off takes up
	// to three per post instead.
	OneCommentPerPost bool `yaml:"one_comment_per_post"`

	// MaxContextComments bounds the ancestor chain fetched when building
	// reply context for a comment candidate.
	MaxContextComments int `yaml:"max_context_comments"`

	// How long fetched subreddit rules are cached in memory.
	RulesCacheTTL time.Duration `yaml:"rules_cache_ttl"`

	// Jitter inserted between upstream write operations so posting stays
	// humanly paced. Drawn uniformly from [min, max].
	MinJitter time.Duration `yaml:"min_jitter"`
	MaxJitter time.Duration `yaml:"max_jitter"`

	passwordOnce sync.Once
	password     string
}

// defaultBlockedKeywords is the stock list of topics the agent refuses to
// engage with. Matching is case-insensitive substring on title+body.
var defaultBlockedKeywords = []string{
	"trump", "biden", "obama", "maga",
	"democrat", "republican", "liberal", "conservative",
	"politics", "political", "election", "vote",
	"abortion", "pro-life", "pro-choice",
	"gun control", "second amendment", "2nd amendment",
	"immigration", "immigrant", "border wall", "deportation",
	"racist", "racism", "nazi", "fascist", "antifa",
	"blm", "black lives matter", "all lives matter",
	"lgbtq", "transgender", "trans rights",
	"climate change", "global warming",
	"vaccine", "anti-vax", "covid hoax",
	"conspiracy", "qanon", "deep state",
}

// userAgentPattern is the shape Reddit expects for API clients.
var userAgentPattern = regexp.MustCompile(`^[a-z]+:[\w.-]+:v[\w.-]+ \(by /u/[\w-]+\)$`)

func (c *Reddit) Defaults(opts DefaultOpts) {
	c.InboxEnabled = true
	c.RiskThreshold = 0.7
	c.RequestsPerRun = 60
	c.RequestsPerSecond = 1
	c.RequestTimeout = 30 * time.Second
	c.MaxPostAge = 45 * time.Minute
	c.MinPostComments = 3
	c.MaxPostComments = 20
	c.BlockedKeywords = defaultBlockedKeywords
	c.OneCommentPerPost = true
	c.MaxContextComments = 3
	c.RulesCacheTTL = 24 * time.Hour
	c.MinJitter = 15 * time.Minute
	c.MaxJitter = 60 * time.Minute
	if opts.Generate {
		c.UserAgent = "linux:com.example.axon:v0.1 (by /u/YourUsername)"
		c.Subreddits = []string{"golang", "selfhosted"}
	}
}

func (c *Reddit) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "reddit.client_id", c.ClientID)
	checkNotEmpty(configErrs, "reddit.client_secret", c.ClientSecret)
	checkNotEmpty(configErrs, "reddit.username", c.Username)
	if c.GetPassword() == "" {
		configErrs.Add("either reddit.password or AXON_REDDIT_PASSWORD must be set")
	}
	checkNotEmpty(configErrs, "reddit.user_agent", c.UserAgent)
	if c.UserAgent != "" && !userAgentPattern.MatchString(c.UserAgent) {
		configErrs.Add(fmt.Sprintf(
			"reddit.user_agent must look like \"platform:tld.domain.app:vX.Y (by /u/Username)\", got %q", c.UserAgent,
		))
	}
	if len(c.Subreddits) == 0 {
		configErrs.Add("reddit.subreddits must name at least one subreddit")
	}
	checkUnitInterval(configErrs, "reddit.risk_threshold", c.RiskThreshold)
	checkPositive(configErrs, "reddit.requests_per_run", int64(c.RequestsPerRun))
	if c.MinJitter > c.MaxJitter {
		configErrs.Add("reddit.min_jitter must not exceed reddit.max_jitter")
	}
	if c.MinPostComments > c.MaxPostComments {
		configErrs.Add("reddit.min_post_comments must not exceed reddit.max_post_comments")
	}
}

// GetPassword returns the account password, preferring the
// AXON_REDDIT_PASSWORD environment variable over the config file so the
// secret can stay out of on-disk config.
func (c *Reddit) GetPassword() string {
	c.passwordOnce.Do(func() {
		c.password = os.Getenv("AXON_REDDIT_PASSWORD")
		if c.password == "" {
			c.password = c.Password
		}
	})
	return c.password
}
