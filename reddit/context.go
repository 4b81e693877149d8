// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/element-hq/axon/types"
)

// AncestorChain walks up the parent chain of a comment so the reply
// generator can see what the conversation already said. The walk stops
// at the post, or after MaxContextComments hops for very deep threads.
// The chain comes back oldest first, without the candidate itself.
func (c *Client) AncestorChain(ctx context.Context, candidate *types.Candidate) ([]types.ThreadMessage, error) {
	if !candidate.IsComment() {
		return nil, nil
	}

	var chain []types.ThreadMessage
	parent, err := c.commentParent(ctx, candidate.Fullname)
	if err != nil {
		return nil, err
	}
	for hop := 0; hop < c.cfg.MaxContextComments; hop++ {
		if !strings.HasPrefix(parent, "t1_") {
			// Reached the post itself.
			break
		}
		res, err := c.get(ctx, "/api/info", url.Values{"id": {parent}})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch ancestor %s: %w", parent, err)
		}
		data := res.Get("data.children.0.data")
		if !data.Exists() {
			break
		}
		chain = append(chain, types.ThreadMessage{
			Author: data.Get("author").String(),
			Body:   data.Get("body").String(),
		})
		parent = data.Get("parent_id").String()
	}

	// The walk collected newest first; flip it.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// commentParent resolves the immediate parent fullname of a comment.
// Inbox items already carry it; discovered comments need a lookup.
func (c *Client) commentParent(ctx context.Context, fullname string) (string, error) {
	res, err := c.get(ctx, "/api/info", url.Values{"id": {fullname}})
	if err != nil {
		return "", fmt.Errorf("failed to fetch comment %s: %w", fullname, err)
	}
	return res.Get("data.children.0.data.parent_id").String(), nil
}
