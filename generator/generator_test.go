// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package generator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/element-hq/axon/setup/config"
)

// fakeOpenAI serves canned chat completions in order and records the
// request bodies it saw.
type fakeOpenAI struct {
	srv *httptest.Server

	mu       sync.Mutex
	replies  []string
	status   int
	requests [][]byte
}

func newFakeOpenAI(t *testing.T, replies ...string) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{replies: replies, status: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, body)
		n := len(f.requests) - 1
		status := f.status
		reply := ""
		if n < len(f.replies) {
			reply = f.replies[n]
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"message": "upstream unhappy", "type": "server_error"}}`)) // nolint: errcheck
			return
		}
		content, _ := json.Marshal(reply)
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": ` + string(content) + `}}]}`)) // nolint: errcheck
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOpenAI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeOpenAI) request(n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[n]
}

func newTestGenerator(t *testing.T, f *fakeOpenAI, mutate func(*config.Generator)) *Generator {
	t.Helper()
	cfg := &config.Generator{}
	cfg.Defaults(config.DefaultOpts{Generate: true})
	cfg.APIKey = "test-key"
	cfg.BaseURL = f.srv.URL + "/v1"
	cfg.FewShotExamples = []string{"Ran into this last month, bumping the ulimit fixed it."}
	if mutate != nil {
		mutate(cfg)
	}
	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	return g
}

func TestGenerator_ReturnsCleanContent(t *testing.T) {
	f := newFakeOpenAI(t, "Try pprof with the block profile enabled, it shows this contention directly.")
	g := newTestGenerator(t, f, nil)

	got, err := g.Generate(context.Background(), Request{
		Subreddit: "golang",
		Context:   "[Post Title]\nHow do I profile goroutines?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Try pprof with the block profile enabled, it shows this contention directly.", got)
	assert.Equal(t, 1, f.requestCount())

	body := gjson.ParseBytes(f.request(0))
	assert.Equal(t, "gpt-4o-mini", body.Get("model").String())
	messages := body.Get("messages").Array()
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Get("role").String())
	assert.Contains(t, messages[0].Get("content").String(), "Example replies (match this tone and style):")
	assert.Contains(t, messages[0].Get("content").String(), "1. Ran into this last month")
	assert.Equal(t, "user", messages[1].Get("role").String())
	assert.Contains(t, messages[1].Get("content").String(), "Write a reply to the following Reddit conversation:")
	assert.Contains(t, messages[1].Get("content").String(), "[Post Title]\nHow do I profile goroutines?")
}

func TestGenerator_RetriesFilteredContent(t *testing.T) {
	f := newFakeOpenAI(t,
		"As an AI, I cannot weigh in on profiler choice, but pprof is popular.",
		"Second answer still too short",
		"pprof with -http gives you a flame graph straight away, start there honestly.",
	)
	// The raised minimum makes the middle reply fail on length, so both
	// filter paths are exercised before the clean third attempt.
	g := newTestGenerator(t, f, func(cfg *config.Generator) { cfg.MinLength = 40 })

	got, err := g.Generate(context.Background(), Request{Subreddit: "golang", Context: "ctx"})
	require.NoError(t, err)
	assert.Equal(t, "pprof with -http gives you a flame graph straight away, start there honestly.", got)
	assert.Equal(t, 3, f.requestCount())
}

func TestGenerator_ExhaustsAttempts(t *testing.T) {
	f := newFakeOpenAI(t,
		"As an AI, here is my first take on the matter at hand.",
		"As a language model I can confirm the second take as well.",
		"It's important to note that the third take is no better either.",
	)
	g := newTestGenerator(t, f, nil)

	_, err := g.Generate(context.Background(), Request{Subreddit: "golang", Context: "ctx"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentFiltered)
	assert.Equal(t, 3, f.requestCount())
}

func TestGenerator_APIErrorIsNotRetried(t *testing.T) {
	f := newFakeOpenAI(t)
	f.status = http.StatusInternalServerError
	g := newTestGenerator(t, f, nil)

	_, err := g.Generate(context.Background(), Request{Subreddit: "golang", Context: "ctx"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrContentFiltered)
	assert.Equal(t, 1, f.requestCount())
}
