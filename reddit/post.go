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
)

// SubmitComment posts a reply under the given parent and returns the
// fullname of the created comment. The parent may be a post (t3_) or a
// comment (t1_). In dry run nothing is sent and a fake fullname comes
// back so the rest of the bookkeeping can still be exercised.
func (c *Client) SubmitComment(ctx context.Context, parentFullname, text string) (string, error) {
	if c.DryRun {
		fake := fmt.Sprintf("t1_dryrun%d", time.Now().UnixNano())
		logrus.WithFields(logrus.Fields{
			"parent": parentFullname,
			"length": len(text),
		}).Info("Dry run: would post comment")
		return fake, nil
	}

	res, err := c.post(ctx, "/api/comment", url.Values{
		"api_type": {"json"},
		"thing_id": {parentFullname},
		"text":     {text},
	})
	if err != nil {
		return "", fmt.Errorf("failed to post comment under %s: %w", parentFullname, err)
	}

	if errs := res.Get("json.errors").Array(); len(errs) > 0 {
		parts := errs[0].Array()
		code, message := "UNKNOWN", ""
		if len(parts) > 0 {
			code = parts[0].String()
		}
		if len(parts) > 1 {
			message = parts[1].String()
		}
		return "", fmt.Errorf("comment rejected by Reddit: %s %s", code, message)
	}

	fullname := res.Get("json.data.things.0.data.name").String()
	if fullname == "" {
		return "", fmt.Errorf("comment response carried no fullname")
	}
	return fullname, nil
}

// CommentMetrics is the engagement snapshot of one posted comment.
type CommentMetrics struct {
	Upvotes int64
	Replies int64
	// Deleted means the comment no longer exists upstream, whether
	// removed by moderators or deleted by Reddit.
	Deleted bool
}

// FetchCommentMetrics reads the current score and direct reply count of
// a comment we posted earlier.
func (c *Client) FetchCommentMetrics(ctx context.Context, fullname string) (*CommentMetrics, error) {
	res, err := c.get(ctx, "/api/info", url.Values{"id": {fullname}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comment %s: %w", fullname, err)
	}
	data := res.Get("data.children.0.data")
	if !data.Exists() {
		return &CommentMetrics{Deleted: true}, nil
	}
	if data.Get("author").String() == "[deleted]" || data.Get("body").String() == "[removed]" {
		return &CommentMetrics{Deleted: true}, nil
	}

	metrics := &CommentMetrics{
		Upvotes: data.Get("score").Int(),
	}

	// Reply counts only exist in the comment tree, not in /api/info.
	permalink := data.Get("permalink").String()
	if permalink == "" {
		return metrics, nil
	}
	tree, err := c.get(ctx, strings.TrimSuffix(permalink, "/")+".json", url.Values{
		"limit": {"100"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comment tree for %s: %w", fullname, err)
	}
	for _, reply := range tree.Get("1.data.children.0.data.replies.data.children").Array() {
		// "more" stubs are pagination markers, not replies.
		if reply.Get("kind").String() == "t1" {
			metrics.Replies++
		}
	}
	return metrics, nil
}
