// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/types"
)

// DiscoveryReplies fetches top-level comments under already discovered
// rising posts and returns the ones worth replying to. Joining a
// conversation someone else started reads far more organically than
// always answering the post itself, so these fill the comment side of
// the pool. With one_comment_per_post set, at most one comment is
// taken from each post; otherwise up to three.
//
// One post failing does not stop the others, but a risk lockout aborts
// immediately.
func (c *Client) DiscoveryReplies(ctx context.Context, posts []types.Candidate) ([]types.Candidate, []error) {
	perPost := 3
	if c.cfg.OneCommentPerPost {
		perPost = 1
	}

	var all []types.Candidate
	var errs []error
	for i := range posts {
		post := &posts[i]
		replies, err := c.postReplies(ctx, post, perPost)
		if err != nil {
			if IsFatal(err) {
				return all, append(errs, err)
			}
			logrus.WithError(err).WithField("fullname", post.Fullname).Warn("Reply discovery failed, continuing with remaining posts")
			errs = append(errs, fmt.Errorf("%s: %w", post.Fullname, err))
			continue
		}
		all = append(all, replies...)
	}
	return all, errs
}

// postReplies pulls the top level of one post's comment tree and keeps
// the first perPost comments that pass the discovery filters.
func (c *Client) postReplies(ctx context.Context, post *types.Candidate, perPost int) ([]types.Candidate, error) {
	id := strings.TrimPrefix(post.Fullname, "t3_")
	res, err := c.get(ctx, "/comments/"+url.PathEscape(id), url.Values{
		"limit": {listingLimit},
		"depth": {"1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments under %s: %w", post.Fullname, err)
	}

	// The endpoint returns two listings: the post itself, then its
	// comment tree. Only the second is of interest here.
	var candidates []types.Candidate
	for _, child := range res.Get("1.data.children").Array() {
		if len(candidates) >= perPost {
			break
		}
		if child.Get("kind").String() != "t1" {
			// "more" stubs and the like.
			continue
		}
		data := child.Get("data")
		fullname := data.Get("name").String()
		author := data.Get("author").String()
		if IgnorableAuthor(author) {
			continue
		}
		body := data.Get("body").String()
		if kw, blocked := BlockedKeyword(body, c.cfg.BlockedKeywords); blocked {
			logrus.WithFields(logrus.Fields{
				"fullname": fullname,
				"keyword":  kw,
			}).Debug("Skipping discovered comment over blocked keyword")
			continue
		}
		if !c.markSeen(fullname) {
			continue
		}
		candidates = append(candidates, types.Candidate{
			Fullname:        fullname,
			Class:           types.ItemComment,
			Subreddit:       post.Subreddit,
			Author:          author,
			Body:            body,
			Permalink:       "https://reddit.com" + data.Get("permalink").String(),
			ParentFullname:  post.Fullname,
			ParentTitle:     post.Title,
			Score:           data.Get("score").Int(),
			CommentCount:    post.CommentCount,
			CreatedAt:       time.Unix(data.Get("created_utc").Int(), 0),
			ParentCreatedAt: post.CreatedAt,
			Priority:        types.PriorityNormal,
		})
	}
	return candidates, nil
}
