// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package caching

import "github.com/element-hq/axon/types"

// RuleVerdictCache caches the outcome of subreddit rule compliance
// checks so that rule pages are not re-fetched on every run.
type RuleVerdictCache interface {
	GetRuleVerdict(subreddit string) (v types.RuleVerdict, ok bool)
	StoreRuleVerdict(subreddit string, v types.RuleVerdict)
	// EvictRuleVerdict drops a cached verdict, forcing a re-fetch.
	EvictRuleVerdict(subreddit string)
}

func (c Caches) GetRuleVerdict(subreddit string) (v types.RuleVerdict, ok bool) {
	return c.SubredditRules.Get(subreddit)
}

func (c Caches) StoreRuleVerdict(subreddit string, v types.RuleVerdict) {
	c.SubredditRules.Set(subreddit, v)
}

func (c Caches) EvictRuleVerdict(subreddit string) {
	c.SubredditRules.Unset(subreddit)
}

// AuthorKarmaCache caches account karma lookups, which change slowly
// but are consulted for every scored candidate.
type AuthorKarmaCache interface {
	GetAuthorKarma(username string) (karma int64, ok bool)
	StoreAuthorKarma(username string, karma int64)
}

func (c Caches) GetAuthorKarma(username string) (karma int64, ok bool) {
	return c.AuthorKarma.Get(username)
}

func (c Caches) StoreAuthorKarma(username string, karma int64) {
	c.AuthorKarma.Set(username, karma)
}
