// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/types"
)

// UnreadReplies returns unread comment replies addressed to the account,
// restricted to the configured subreddits. These are people talking to
// us, so they carry high priority through the rest of the pipeline.
// Consumed items are marked read upstream unless the client is in dry
// run, so the next run starts from a clean inbox.
func (c *Client) UnreadReplies(ctx context.Context) ([]types.Candidate, error) {
	if !c.cfg.InboxEnabled {
		return nil, nil
	}
	res, err := c.get(ctx, "/message/unread", url.Values{
		"limit": {listingLimit},
	})
	if err != nil {
		if !errors.Is(err, ErrRiskLockout) && !errors.Is(err, ErrRequestBudget) {
			c.risk.RecordEmpty()
		}
		return nil, fmt.Errorf("failed to fetch unread inbox: %w", err)
	}

	allowed := make(map[string]struct{}, len(c.cfg.Subreddits))
	for _, s := range c.cfg.Subreddits {
		allowed[strings.ToLower(s)] = struct{}{}
	}

	var candidates []types.Candidate
	var consumed []string
	for _, child := range res.Get("data.children").Array() {
		// Only comment replies; private messages are kind t4 and are not
		// something the agent answers.
		if child.Get("kind").String() != "t1" {
			continue
		}
		data := child.Get("data")
		fullname := data.Get("name").String()
		consumed = append(consumed, fullname)

		subreddit := data.Get("subreddit").String()
		if _, ok := allowed[strings.ToLower(subreddit)]; !ok {
			continue
		}
		author := data.Get("author").String()
		if IgnorableAuthor(author) {
			continue
		}
		body := data.Get("body").String()
		if kw, blocked := BlockedKeyword(body, c.cfg.BlockedKeywords); blocked {
			logrus.WithFields(logrus.Fields{
				"fullname": fullname,
				"keyword":  kw,
			}).Debug("Skipping inbox reply over blocked keyword")
			continue
		}
		if !c.markSeen(fullname) {
			continue
		}

		permalink := data.Get("context").String()
		if permalink != "" && !strings.HasPrefix(permalink, "http") {
			permalink = "https://reddit.com" + permalink
		}
		candidates = append(candidates, types.Candidate{
			Fullname:       fullname,
			Class:          types.ItemComment,
			Subreddit:      subreddit,
			Author:         author,
			Body:           body,
			Permalink:      permalink,
			ParentFullname: data.Get("link_id").String(),
			ParentTitle:    data.Get("link_title").String(),
			Score:          data.Get("score").Int(),
			CreatedAt:      time.Unix(data.Get("created_utc").Int(), 0),
			Priority:       types.PriorityHigh,
		})
	}

	if len(candidates) > 0 {
		c.fillThreadStats(ctx, candidates)
	}

	if len(consumed) > 0 && !c.DryRun {
		if err := c.markRead(ctx, consumed); err != nil {
			// Not fatal: the replay ledger stops double replies even if the
			// same items show up unread again.
			logrus.WithError(err).Warn("Failed to mark inbox items read")
		}
	}
	return candidates, nil
}

// fillThreadStats resolves the parent threads of inbox replies in one
// /api/info call. The inbox listing carries the link title but not the
// thread's size or age, which the scorer's velocity and depth signals
// need. Failure is tolerable: the affected signals score neutrally.
func (c *Client) fillThreadStats(ctx context.Context, candidates []types.Candidate) {
	ids := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		if cand.ParentFullname == "" {
			continue
		}
		if _, dup := seen[cand.ParentFullname]; dup {
			continue
		}
		seen[cand.ParentFullname] = struct{}{}
		ids = append(ids, cand.ParentFullname)
	}
	if len(ids) == 0 {
		return
	}

	res, err := c.get(ctx, "/api/info", url.Values{
		"id": {strings.Join(ids, ",")},
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to resolve parent threads of inbox replies")
		return
	}

	type threadStats struct {
		comments int64
		created  time.Time
	}
	stats := make(map[string]threadStats, len(ids))
	for _, child := range res.Get("data.children").Array() {
		data := child.Get("data")
		stats[data.Get("name").String()] = threadStats{
			comments: data.Get("num_comments").Int(),
			created:  time.Unix(data.Get("created_utc").Int(), 0),
		}
	}
	for i := range candidates {
		if st, ok := stats[candidates[i].ParentFullname]; ok {
			candidates[i].CommentCount = st.comments
			candidates[i].ParentCreatedAt = st.created
		}
	}
}

func (c *Client) markRead(ctx context.Context, fullnames []string) error {
	_, err := c.post(ctx, "/api/read_message", url.Values{
		"id": {strings.Join(fullnames, ",")},
	})
	return err
}
