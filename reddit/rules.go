// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/internal/caching"
	"github.com/element-hq/axon/types"
)

// botRestrictionPatterns are phrases in subreddit rules that forbid
// automated participation. One match restricts the whole subreddit.
var botRestrictionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bno\s+bots?\b`),
	regexp.MustCompile(`(?i)\bbots?\s+not\s+allowed\b`),
	regexp.MustCompile(`(?i)\bno\s+automation\b`),
	regexp.MustCompile(`(?i)\bhuman\s+(posts?|only)\b`),
}

// RuleEngine decides whether a subreddit's posted rules allow the agent
// to participate. Verdicts are cached so rule pages are fetched at most
// once per TTL window. Fetch failures default to allowed and stay
// uncached: a flaky rules endpoint must not stall the pipeline, and the
// next run retries it.
type RuleEngine struct {
	client *Client
	caches caching.RuleVerdictCache
	ttl    time.Duration
}

func NewRuleEngine(client *Client, caches caching.RuleVerdictCache, ttl time.Duration) *RuleEngine {
	return &RuleEngine{
		client: client,
		caches: caches,
		ttl:    ttl,
	}
}

// Check returns the compliance verdict for a subreddit.
func (e *RuleEngine) Check(ctx context.Context, subreddit string) types.RuleVerdict {
	if v, ok := e.caches.GetRuleVerdict(subreddit); ok && time.Since(v.FetchedAt) < e.ttl {
		return v
	}

	verdict := types.RuleVerdict{
		Subreddit: subreddit,
		Status:    types.RuleAllowed,
		FetchedAt: time.Now(),
	}
	if e.client == nil {
		return verdict
	}

	rulesText, err := e.client.SubredditRules(ctx, subreddit)
	if err != nil {
		logrus.WithError(err).WithField("subreddit", subreddit).Warn("Failed to fetch subreddit rules, defaulting to allowed")
		return verdict
	}
	for _, pattern := range botRestrictionPatterns {
		if match := pattern.FindString(rulesText); match != "" {
			verdict.Status = types.RuleRestricted
			verdict.Reason = fmt.Sprintf("subreddit rules match %q", strings.ToLower(match))
			break
		}
	}
	e.caches.StoreRuleVerdict(subreddit, verdict)
	return verdict
}

// SubredditRules fetches the rule listing of a subreddit as one text
// blob for pattern matching.
func (c *Client) SubredditRules(ctx context.Context, subreddit string) (string, error) {
	res, err := c.get(ctx, "/r/"+url.PathEscape(subreddit)+"/about/rules", nil)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, rule := range res.Get("rules").Array() {
		b.WriteString(rule.Get("short_name").String())
		b.WriteString("\n")
		b.WriteString(rule.Get("description").String())
		b.WriteString("\n")
	}
	return b.String(), nil
}
