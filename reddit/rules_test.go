// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/axon/internal/caching"
	"github.com/element-hq/axon/types"
)

func rulesBody(rules ...string) string {
	doc := `{"rules": [`
	for i, rule := range rules {
		if i > 0 {
			doc += ","
		}
		doc += `{"short_name": "Rule", "description": "` + rule + `"}`
	}
	return doc + `]}`
}

func TestRuleEngineRestrictsOnBotClauses(t *testing.T) {
	tests := []struct {
		name       string
		rule       string
		restricted bool
	}{
		{"no bots", "No bots in this community.", true},
		{"bots not allowed", "Bots not allowed, ever.", true},
		{"no automation", "We want no automation here.", true},
		{"human only", "human only discussions please", true},
		{"human posts", "Human posts are what we are about", true},
		{"mentions robots kindly", "We love discussing robotics here.", false},
		{"ordinary rules", "Be kind. Stay on topic. No spam.", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				serveJSON(w, rulesBody(tc.rule))
			})
			caches := caching.NewRistrettoCache(1024*1024, time.Hour, caching.DisableMetrics)
			engine := NewRuleEngine(client, caches, 24*time.Hour)

			verdict := engine.Check(context.Background(), "golang")
			if tc.restricted {
				assert.Equal(t, types.RuleRestricted, verdict.Status)
				assert.NotEmpty(t, verdict.Reason)
			} else {
				assert.Equal(t, types.RuleAllowed, verdict.Status)
			}
		})
	}
}

func TestRuleEngineCachesVerdicts(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		serveJSON(w, rulesBody("No bots."))
	})
	caches := caching.NewRistrettoCache(1024*1024, time.Hour, caching.DisableMetrics)
	engine := NewRuleEngine(client, caches, 24*time.Hour)
	ctx := context.Background()

	first := engine.Check(ctx, "golang")
	assert.Equal(t, types.RuleRestricted, first.Status)

	waitForCache(t)
	second := engine.Check(ctx, "golang")
	assert.Equal(t, types.RuleRestricted, second.Status)
	assert.Equal(t, 1, fake.APIHits(), "second check must hit the cache")
}

func TestRuleEngineDefaultsToAllowedOnFetchFailure(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	caches := caching.NewRistrettoCache(1024*1024, time.Hour, caching.DisableMetrics)
	engine := NewRuleEngine(client, caches, 24*time.Hour)
	ctx := context.Background()

	verdict := engine.Check(ctx, "golang")
	assert.Equal(t, types.RuleAllowed, verdict.Status)

	// Failures are not cached, so the next check retries the fetch.
	waitForCache(t)
	engine.Check(ctx, "golang")
	assert.Equal(t, 2, fake.APIHits())
}

func TestRuleEngineWithoutClientAllowsEverything(t *testing.T) {
	caches := caching.NewRistrettoCache(1024*1024, time.Hour, caching.DisableMetrics)
	engine := NewRuleEngine(nil, caches, 24*time.Hour)

	verdict := engine.Check(context.Background(), "anything")
	assert.Equal(t, types.RuleAllowed, verdict.Status)
	assert.False(t, verdict.Restricted())
}

func TestRuleEngineStaleVerdictRefetches(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		serveJSON(w, rulesBody("Be excellent to each other."))
	})
	caches := caching.NewRistrettoCache(1024*1024, time.Hour, caching.DisableMetrics)
	// Zero TTL: every cached verdict is immediately stale.
	engine := NewRuleEngine(client, caches, 0)
	ctx := context.Background()

	require.Equal(t, types.RuleAllowed, engine.Check(ctx, "golang").Status)
	waitForCache(t)
	engine.Check(ctx, "golang")
	assert.Equal(t, 2, fake.APIHits())
}
