// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/types"
)

// =============================================================================
// Helper Functions
// =============================================================================

// fakeReceiver records every request it sees and answers with a fixed
// body. Each status in statuses is consumed in order; the last one
// repeats forever, and an empty list means HTTP 200.
type fakeReceiver struct {
	srv      *httptest.Server
	body     string
	statuses []int

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	path   string
	header http.Header
	body   []byte
}

func newFakeReceiver(t *testing.T, body string, statuses ...int) *fakeReceiver {
	t.Helper()
	f := &fakeReceiver{body: body, statuses: statuses}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			path:   r.URL.Path,
			header: r.Header.Clone(),
			body:   payload,
		})
		seen := len(f.requests)
		f.mu.Unlock()

		status := http.StatusOK
		if len(f.statuses) > 0 {
			idx := seen - 1
			if idx >= len(f.statuses) {
				idx = len(f.statuses) - 1
			}
			status = f.statuses[idx]
		}
		w.WriteHeader(status)
		fmt.Fprint(w, f.body) // nolint: errcheck
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeReceiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeReceiver) request(t *testing.T, i int) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.requests), i)
	return f.requests[i]
}

// testNotifierConfig points all three channels at url.
func testNotifierConfig(url string) *config.Notifier {
	cfg := &config.Notifier{Global: &config.Global{PublicURL: "https://axon.example.com"}}
	cfg.Defaults(config.DefaultOpts{Generate: true})
	cfg.Webhook.URL = url
	cfg.Webhook.Secret = "wellington"
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.ChatID = "-1001"
	cfg.Slack.WebhookURL = url
	return cfg
}

func draftNotification() Notification {
	return Notification{
		DraftID:   "draft-1",
		Subreddit: "golang",
		Content:   "Have you tried pprof? It ships with the toolchain.",
		ThreadURL: "https://reddit.com/r/golang/comments/abc123/profiling/",
		Token:     "tok-abc123",
	}
}

type fakeTarget struct {
	err    error
	drafts int
	status int
}

func (f *fakeTarget) Notify(ctx context.Context, n Notification) error {
	f.drafts++
	return f.err
}

func (f *fakeTarget) NotifyStatus(ctx context.Context, u StatusUpdate) error {
	f.status++
	return f.err
}

// =============================================================================
// Tests
// =============================================================================

func TestMultiToleratesPartialFailure(t *testing.T) {
	broken := &fakeTarget{err: errors.New("boom")}
	healthy := &fakeTarget{}
	m := &Multi{targets: []namedTarget{{"webhook", broken}, {"slack", healthy}}}

	require.NoError(t, m.Notify(context.Background(), draftNotification()))
	assert.Equal(t, 1, broken.drafts, "a failing target must not stop the fan-out")
	assert.Equal(t, 1, healthy.drafts)

	require.NoError(t, m.NotifyStatus(context.Background(), StatusUpdate{DraftID: "draft-1", Status: types.DraftApproved}))
	assert.Equal(t, 1, broken.status)
	assert.Equal(t, 1, healthy.status)
}

func TestMultiFailsWhenNoTargetDelivers(t *testing.T) {
	m := &Multi{targets: []namedTarget{
		{"webhook", &fakeTarget{err: errors.New("boom")}},
		{"slack", &fakeTarget{err: errors.New("kaput")}},
	}}

	err := m.Notify(context.Background(), draftNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaput")
}

func TestMultiWithoutTargetsDropsQuietly(t *testing.T) {
	m := &Multi{}
	require.NoError(t, m.Notify(context.Background(), draftNotification()))
	require.NoError(t, m.NotifyStatus(context.Background(), StatusUpdate{DraftID: "draft-1", Status: types.DraftApproved}))
}

func TestNewNotifierBuildsEveryConfiguredTarget(t *testing.T) {
	cfg := testNotifierConfig("https://hooks.example.com/axon")
	cfg.Targets = []string{"webhook", "telegram", "slack"}

	n, err := NewNotifier(cfg)
	require.NoError(t, err)
	m, ok := n.(*Multi)
	require.True(t, ok)
	require.Len(t, m.targets, 3)
	assert.IsType(t, &Webhook{}, m.targets[0].Notifier)
	assert.IsType(t, &Telegram{}, m.targets[1].Notifier)
	assert.IsType(t, &Slack{}, m.targets[2].Notifier)
}

func TestNewNotifierRejectsUnknownTarget(t *testing.T) {
	cfg := testNotifierConfig("https://hooks.example.com/axon")
	cfg.Targets = []string{"pager"}

	_, err := NewNotifier(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"pager"`)
}

func TestApprovalURLsEscapeTokens(t *testing.T) {
	approve, reject := approvalURLs("https://axon.example.com/", "a+b c")
	assert.Equal(t, "https://axon.example.com/approve?token=a%2Bb+c&action=approve", approve)
	assert.Equal(t, "https://axon.example.com/approve?token=a%2Bb+c&action=reject", reject)
}
