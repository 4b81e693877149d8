// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"fmt"
	"net/url"
)

// AuthorKarma returns the combined karma of an account. Lookups are
// cached because the same prolific authors show up run after run, and
// karma moves slowly enough that a day-old figure scores identically.
func (c *Client) AuthorKarma(ctx context.Context, username string) (int64, error) {
	if c.caches != nil {
		if karma, ok := c.caches.GetAuthorKarma(username); ok {
			return karma, nil
		}
	}
	res, err := c.get(ctx, "/user/"+url.PathEscape(username)+"/about", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch karma for u/%s: %w", username, err)
	}
	data := res.Get("data")
	karma := data.Get("total_karma").Int()
	if karma == 0 {
		// Older API payloads split the figure.
		karma = data.Get("link_karma").Int() + data.Get("comment_karma").Int()
	}
	if c.caches != nil {
		c.caches.StoreAuthorKarma(username, karma)
	}
	return karma, nil
}
