// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCommentReturnsFullname(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/comment", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "t3_abc123", r.Form.Get("thing_id"))
		assert.Equal(t, "json", r.Form.Get("api_type"))
		assert.Contains(t, r.Form.Get("text"), "pprof")
		serveJSON(w, `{"json": {"errors": [], "data": {"things": [{"kind": "t1", "data": {"name": "t1_new1"}}]}}}`)
	})

	fullname, err := client.SubmitComment(context.Background(), "t3_abc123", "Have you tried pprof?")
	require.NoError(t, err)
	assert.Equal(t, "t1_new1", fullname)
}

func TestSubmitCommentSurfacesAPIErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		serveJSON(w, `{"json": {"errors": [["RATELIMIT", "you are doing that too much. try again in 9 minutes.", "ratelimit"]]}}`)
	})

	_, err := client.SubmitComment(context.Background(), "t3_abc123", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATELIMIT")
}

func TestSubmitCommentDryRun(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry run must never reach the API")
	})
	client.DryRun = true

	fullname, err := client.SubmitComment(context.Background(), "t3_abc123", "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fullname, "t1_dryrun"))
	assert.Equal(t, 0, fake.APIHits())
}

func TestFetchCommentMetrics(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/info":
			serveJSON(w, listingBody(t, "t1", map[string]interface{}{
				"name":      "t1_mine",
				"author":    "axon_operator",
				"body":      "Have you tried pprof?",
				"score":     14,
				"permalink": "/r/golang/comments/abc123/profiling/mine/",
			}))
		case "/r/golang/comments/abc123/profiling/mine.json":
			serveJSON(w, `[
				{"kind": "Listing", "data": {"children": []}},
				{"kind": "Listing", "data": {"children": [{"kind": "t1", "data": {
					"name": "t1_mine",
					"replies": {"kind": "Listing", "data": {"children": [
						{"kind": "t1", "data": {"name": "t1_r1"}},
						{"kind": "t1", "data": {"name": "t1_r2"}},
						{"kind": "more", "data": {}}
					]}}
				}}]}}
			]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	metrics, err := client.FetchCommentMetrics(context.Background(), "t1_mine")
	require.NoError(t, err)
	assert.Equal(t, int64(14), metrics.Upvotes)
	assert.Equal(t, int64(2), metrics.Replies, `"more" stubs are not replies`)
	assert.False(t, metrics.Deleted)
}

func TestFetchCommentMetricsDeleted(t *testing.T) {
	tests := []struct {
		name  string
		entry map[string]interface{}
	}{
		{"gone entirely", nil},
		{"author deleted", map[string]interface{}{
			"name":   "t1_mine",
			"author": "[deleted]",
			"body":   "Have you tried pprof?",
		}},
		{"body removed", map[string]interface{}{
			"name":   "t1_mine",
			"author": "axon_operator",
			"body":   "[removed]",
		}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			body := `{"kind": "Listing", "data": {"children": []}}`
			if tc.entry != nil {
				body = listingBody(t, "t1", tc.entry)
			}
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				serveJSON(w, body)
			})

			metrics, err := client.FetchCommentMetrics(context.Background(), "t1_mine")
			require.NoError(t, err)
			assert.True(t, metrics.Deleted)
		})
	}
}
