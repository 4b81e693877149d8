// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/axon/types"
)

// chainHandler serves /api/info lookups from a comment tree keyed by
// fullname.
func chainHandler(t *testing.T, comments map[string]map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/info", r.URL.Path)
		id := r.URL.Query().Get("id")
		entry, ok := comments[id]
		if !ok {
			serveJSON(w, `{"kind": "Listing", "data": {"children": []}}`)
			return
		}
		serveJSON(w, listingBody(t, "t1", entry))
	}
}

func TestAncestorChainWalksToPost(t *testing.T) {
	client, _ := newTestClient(t, chainHandler(t, map[string]map[string]interface{}{
		"t1_leaf": {"name": "t1_leaf", "author": "c", "body": "deepest", "parent_id": "t1_mid"},
		"t1_mid":  {"name": "t1_mid", "author": "b", "body": "middle", "parent_id": "t1_root"},
		"t1_root": {"name": "t1_root", "author": "a", "body": "first reply", "parent_id": "t3_post"},
	}))

	candidate := &types.Candidate{Fullname: "t1_leaf", Class: types.ItemComment}
	chain, err := client.AncestorChain(context.Background(), candidate)
	require.NoError(t, err)

	require.Len(t, chain, 2, "the walk stops at the post")
	assert.Equal(t, "a", chain[0].Author, "chain must come back oldest first")
	assert.Equal(t, "first reply", chain[0].Body)
	assert.Equal(t, "b", chain[1].Author)
}

func TestAncestorChainHonoursDepthLimit(t *testing.T) {
	comments := map[string]map[string]interface{}{
		"t1_c5": {"name": "t1_c5", "author": "e", "body": "5", "parent_id": "t1_c4"},
		"t1_c4": {"name": "t1_c4", "author": "d", "body": "4", "parent_id": "t1_c3"},
		"t1_c3": {"name": "t1_c3", "author": "c", "body": "3", "parent_id": "t1_c2"},
		"t1_c2": {"name": "t1_c2", "author": "b", "body": "2", "parent_id": "t1_c1"},
		"t1_c1": {"name": "t1_c1", "author": "a", "body": "1", "parent_id": "t3_post"},
	}
	client, _ := newTestClient(t, chainHandler(t, comments))

	candidate := &types.Candidate{Fullname: "t1_c5", Class: types.ItemComment}
	chain, err := client.AncestorChain(context.Background(), candidate)
	require.NoError(t, err)

	require.Len(t, chain, 3, "very deep threads are trimmed to the configured depth")
	// The three nearest ancestors, oldest first.
	assert.Equal(t, "2", chain[0].Body)
	assert.Equal(t, "3", chain[1].Body)
	assert.Equal(t, "4", chain[2].Body)
}

func TestAncestorChainPostCandidate(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("post candidates have no ancestors to fetch")
	})

	candidate := &types.Candidate{Fullname: "t3_post", Class: types.ItemPost}
	chain, err := client.AncestorChain(context.Background(), candidate)
	require.NoError(t, err)
	assert.Empty(t, chain)
	assert.Equal(t, 0, fake.APIHits())
}

func TestAncestorChainVanishedParent(t *testing.T) {
	client, _ := newTestClient(t, chainHandler(t, map[string]map[string]interface{}{
		"t1_leaf": {"name": "t1_leaf", "author": "c", "body": "deepest", "parent_id": "t1_gone"},
	}))

	candidate := &types.Candidate{Fullname: "t1_leaf", Class: types.ItemComment}
	chain, err := client.AncestorChain(context.Background(), candidate)
	require.NoError(t, err)
	assert.Empty(t, chain, "a vanished ancestor ends the walk cleanly")
}
