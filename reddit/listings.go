// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/element-hq/axon/types"
)

// listingLimit is how many entries we ask for per listing request.
const listingLimit = "25"

// RisingPosts fetches the rising listing for one subreddit and returns
// the posts worth considering. Rising is the sweet spot for organic
// replies: threads young enough that a reply is seen, already proven
// enough that the thread won't die. A listing with no entries at all
// counts against the risk score, since that is how shadowbans look.
func (c *Client) RisingPosts(ctx context.Context, subreddit string) ([]types.Candidate, error) {
	res, err := c.get(ctx, "/r/"+url.PathEscape(subreddit)+"/rising", url.Values{
		"limit": {listingLimit},
	})
	if err != nil {
		// A failed listing yielded no items, which is exactly what a
		// shadowban looks like, so it feeds the risk score twice. Calls
		// the client refused locally never reached Reddit and don't count.
		if !errors.Is(err, ErrRiskLockout) && !errors.Is(err, ErrRequestBudget) {
			c.risk.RecordEmpty()
		}
		return nil, fmt.Errorf("failed to fetch rising posts for r/%s: %w", subreddit, err)
	}
	children := res.Get("data.children").Array()
	if len(children) == 0 {
		c.risk.RecordEmpty()
		logrus.WithField("subreddit", subreddit).Warn("Rising listing came back empty")
		return nil, nil
	}

	now := time.Now()
	candidates := make([]types.Candidate, 0, len(children))
	for _, child := range children {
		data := child.Get("data")
		candidate, skip := c.postCandidate(data, now)
		if skip != "" {
			logrus.WithFields(logrus.Fields{
				"subreddit": subreddit,
				"fullname":  data.Get("name").String(),
				"reason":    skip,
			}).Debug("Skipping rising post")
			continue
		}
		if !c.markSeen(candidate.Fullname) {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// postCandidate converts one listing entry into a candidate, returning
// a skip reason when the post fails a discovery filter.
func (c *Client) postCandidate(data gjson.Result, now time.Time) (types.Candidate, string) {
	author := data.Get("author").String()
	if IgnorableAuthor(author) {
		return types.Candidate{}, "author is deleted or automated"
	}
	if data.Get("locked").Bool() {
		return types.Candidate{}, "post is locked"
	}
	if removed := data.Get("removed_by_category"); removed.Exists() && removed.String() != "" {
		return types.Candidate{}, "post was removed"
	}

	created := time.Unix(data.Get("created_utc").Int(), 0)
	if age := now.Sub(created); age > c.cfg.MaxPostAge {
		return types.Candidate{}, fmt.Sprintf("post is %s old", age.Truncate(time.Minute))
	}

	comments := data.Get("num_comments").Int()
	if comments < int64(c.cfg.MinPostComments) || comments > int64(c.cfg.MaxPostComments) {
		return types.Candidate{}, fmt.Sprintf("comment count %d outside window", comments)
	}

	title := data.Get("title").String()
	body := data.Get("selftext").String()
	if kw, blocked := BlockedKeyword(title+" "+body, c.cfg.BlockedKeywords); blocked {
		return types.Candidate{}, fmt.Sprintf("mentions blocked keyword %q", kw)
	}

	return types.Candidate{
		Fullname:     data.Get("name").String(),
		Class:        types.ItemPost,
		Subreddit:    data.Get("subreddit").String(),
		Author:       author,
		Title:        title,
		Body:         body,
		Permalink:    "https://reddit.com" + data.Get("permalink").String(),
		Score:        data.Get("score").Int(),
		UpvoteRatio:  data.Get("upvote_ratio").Float(),
		CommentCount: comments,
		CreatedAt:    created,
		Priority:     types.PriorityNormal,
	}, ""
}

// RisingAcrossSubreddits fans RisingPosts out over the configured
// subreddits. One subreddit failing does not stop the others, but a
// risk lockout aborts immediately.
func (c *Client) RisingAcrossSubreddits(ctx context.Context) ([]types.Candidate, []error) {
	var all []types.Candidate
	var errs []error
	for _, subreddit := range c.cfg.Subreddits {
		candidates, err := c.RisingPosts(ctx, subreddit)
		if err != nil {
			if IsFatal(err) {
				return all, append(errs, err)
			}
			logrus.WithError(err).WithField("subreddit", subreddit).Warn("Rising fetch failed, continuing with remaining subreddits")
			errs = append(errs, fmt.Errorf("r/%s: %w", subreddit, err))
			continue
		}
		all = append(all, candidates...)
	}
	return all, errs
}
