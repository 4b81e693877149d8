// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/axon/types"
)

func inboxReply(overrides map[string]interface{}) map[string]interface{} {
	reply := map[string]interface{}{
		"name":        "t1_reply1",
		"subreddit":   "golang",
		"author":      "curious_user",
		"body":        "Thanks, but how does this behave with goroutine leaks?",
		"context":     "/r/golang/comments/abc123/profiling/reply1/?context=3",
		"link_id":     "t3_abc123",
		"link_title":  "How do I profile allocations in a long-running service?",
		"score":       3,
		"created_utc": time.Now().Add(-30 * time.Minute).Unix(),
	}
	for k, v := range overrides {
		reply[k] = v
	}
	return reply
}

// parentThreadInfo is what /api/info serves for the thread the test
// replies hang off.
func parentThreadInfo(t *testing.T) string {
	t.Helper()
	return listingBody(t, "t3", map[string]interface{}{
		"name":         "t3_abc123",
		"num_comments": 12,
		"created_utc":  time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC).Unix(),
	})
}

func TestUnreadRepliesBuildsCandidates(t *testing.T) {
	var markedRead, infoIDs string
	var mu sync.Mutex
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message/unread":
			serveJSON(w, listingBody(t, "t1", inboxReply(nil)))
		case "/api/info":
			mu.Lock()
			infoIDs = r.URL.Query().Get("id")
			mu.Unlock()
			serveJSON(w, parentThreadInfo(t))
		case "/api/read_message":
			require.NoError(t, r.ParseForm())
			mu.Lock()
			markedRead = r.Form.Get("id")
			mu.Unlock()
			serveJSON(w, `{}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	candidates, err := client.UnreadReplies(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	got := candidates[0]
	assert.Equal(t, "t1_reply1", got.Fullname)
	assert.Equal(t, types.ItemComment, got.Class)
	assert.Equal(t, types.PriorityHigh, got.Priority, "inbox items outrank discovered content")
	assert.Equal(t, "t3_abc123", got.ParentFullname)
	assert.Equal(t, "How do I profile allocations in a long-running service?", got.ParentTitle)
	assert.Contains(t, got.Permalink, "https://reddit.com/r/golang/")
	assert.Equal(t, int64(12), got.CommentCount, "thread size comes from the parent post")
	assert.Equal(t, time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC), got.ParentCreatedAt.UTC())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "t3_abc123", infoIDs)
	assert.Equal(t, "t1_reply1", markedRead, "consumed items must be marked read")
}

func TestUnreadRepliesTolerateThreadLookupFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message/unread":
			serveJSON(w, listingBody(t, "t1", inboxReply(nil)))
		case "/api/info":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/read_message":
			serveJSON(w, `{}`)
		}
	})

	candidates, err := client.UnreadReplies(context.Background())
	require.NoError(t, err, "a failed thread lookup must not cost the inbox fetch")
	require.Len(t, candidates, 1)
	assert.Zero(t, candidates[0].CommentCount)
	assert.True(t, candidates[0].ParentCreatedAt.IsZero())
}

func TestUnreadRepliesFilters(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message/unread":
			doc := listingBody(t, "t1",
				inboxReply(map[string]interface{}{"name": "t1_outside", "subreddit": "AskReddit"}),
				inboxReply(map[string]interface{}{"name": "t1_frombot", "author": "reply_bot"}),
				inboxReply(map[string]interface{}{"name": "t1_spicy", "body": "What about the election though?"}),
				inboxReply(map[string]interface{}{"name": "t1_good"}),
			)
			serveJSON(w, doc)
		case "/api/read_message":
			serveJSON(w, `{}`)
		}
	})

	candidates, err := client.UnreadReplies(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "t1_good", candidates[0].Fullname)
}

func TestUnreadRepliesIgnoresPrivateMessages(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message/unread":
			serveJSON(w, listingBody(t, "t4", map[string]interface{}{
				"name":    "t4_pm1",
				"author":  "someone",
				"subject": "hello",
				"body":    "are you a bot?",
			}))
		case "/api/read_message":
			t.Error("private messages alone should not be marked read")
		}
	})

	candidates, err := client.UnreadReplies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestUnreadRepliesDryRunSkipsMarkRead(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message/unread":
			serveJSON(w, listingBody(t, "t1", inboxReply(nil)))
		case "/api/read_message":
			t.Error("dry run must not write to the inbox")
		}
	})
	client.DryRun = true

	candidates, err := client.UnreadReplies(context.Background())
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestUnreadRepliesDisabled(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when the inbox is disabled")
	})
	client.cfg.InboxEnabled = false

	candidates, err := client.UnreadReplies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, 0, fake.APIHits())
}
