// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package reddit is a minimal Reddit API client for a single
// script-type OAuth2 app. It covers exactly what the agent needs:
// rising listings, the inbox, subreddit rules, comment context and
// posting replies. Every request is paced, budgeted and watched by the
// risk governor.
package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/element-hq/axon/internal/caching"
	"github.com/element-hq/axon/setup/config"
)

const (
	apiBaseURL    = "https://oauth.reddit.com"
	tokenEndpoint = "https://www.reddit.com/api/v1/access_token"

	// maxResponseSize bounds how much of an upstream response we will
	// buffer. Listings are a few hundred KB at most.
	maxResponseSize = 4 * 1024 * 1024
)

// Client talks to the Reddit API on behalf of one account.
type Client struct {
	cfg     *config.Reddit
	client  *http.Client
	limiter *rate.Limiter
	risk    *Governor
	caches  *caching.Caches

	// Overridden in tests.
	baseURL  string
	tokenURL string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	budget atomic.Int64

	// DryRun suppresses every write operation. Reads still happen so a
	// dry run exercises the full pipeline.
	DryRun bool

	seenMu  sync.Mutex
	seenIDs map[string]struct{}
}

func NewClient(cfg *config.Reddit, caches *caching.Caches) *Client {
	c := &Client{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		risk:     NewGovernor(cfg.RiskThreshold),
		caches:   caches,
		baseURL:  apiBaseURL,
		tokenURL: tokenEndpoint,
		seenIDs:  map[string]struct{}{},
	}
	c.budget.Store(int64(cfg.RequestsPerRun))
	return c
}

// Risk exposes the governor so the pipeline can report its final score.
func (c *Client) Risk() *Governor {
	return c.risk
}

// ResetRun clears per-run state: the listing dedupe set, the request
// budget and the risk counters. Call it at the start of every run.
func (c *Client) ResetRun() {
	c.seenMu.Lock()
	c.seenIDs = map[string]struct{}{}
	c.seenMu.Unlock()
	c.budget.Store(int64(c.cfg.RequestsPerRun))
	c.risk.Reset()
}

// markSeen records a fullname as consumed this run. It returns false if
// the fullname had been seen already.
func (c *Client) markSeen(fullname string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if _, ok := c.seenIDs[fullname]; ok {
		return false
	}
	c.seenIDs[fullname] = struct{}{}
	return true
}

// authenticate performs the password grant for script apps. The caller
// must hold c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.GetPassword()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close() // nolint: errcheck
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: "access_token"}
	}
	token := gjson.GetBytes(body, "access_token")
	if !token.Exists() || token.String() == "" {
		return fmt.Errorf("token response carried no access_token")
	}
	expiresIn := gjson.GetBytes(body, "expires_in").Int()
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.accessToken = token.String()
	// Refresh a minute early so a token never expires mid-request.
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
	logrus.WithField("expires_in", expiresIn).Debug("Obtained Reddit access token")
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

// invalidateToken drops the cached token after a 401 so the next call
// re-authenticates.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (gjson.Result, error) {
	return c.do(ctx, http.MethodPost, path, nil, form)
}

func (c *Client) do(ctx context.Context, method, path string, query, form url.Values) (gjson.Result, error) {
	if err := c.risk.Check(); err != nil {
		return gjson.Result{}, err
	}
	if c.budget.Dec() < 0 {
		return gjson.Result{}, ErrRequestBudget
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	result, retry, err := c.doOnce(ctx, method, path, query, form)
	if retry {
		// The token expired server-side; authenticate once and replay.
		c.invalidateToken()
		result, _, err = c.doOnce(ctx, method, path, query, form)
	}
	return result, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, query, form url.Values) (gjson.Result, bool, error) {
	token, err := c.token(ctx)
	if err != nil {
		c.risk.RecordFailure()
		return gjson.Result{}, false, fmt.Errorf("failed to authenticate: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return gjson.Result{}, false, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.risk.RecordFailure()
		return gjson.Result{}, false, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close() // nolint: errcheck
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.risk.RecordFailure()
		return gjson.Result{}, false, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.risk.RecordFailure()
		return gjson.Result{}, true, &APIError{StatusCode: resp.StatusCode, Endpoint: path}
	case resp.StatusCode == http.StatusForbidden:
		c.risk.RecordForbidden()
		logrus.WithFields(logrus.Fields{
			"path":       path,
			"risk_score": c.risk.Score(),
		}).Warn("Reddit returned 403 Forbidden")
		return gjson.Result{}, false, &APIError{StatusCode: resp.StatusCode, Endpoint: path}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.risk.RecordFailure()
		return gjson.Result{}, false, &APIError{StatusCode: resp.StatusCode, Endpoint: path}
	}

	c.risk.RecordSuccess()
	return gjson.ParseBytes(body), false, nil
}
