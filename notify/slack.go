// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/setup/config"
)

// Slack sends Block Kit formatted notifications through an incoming
// webhook. Approve and reject are URL buttons that open the approval
// page in a browser, so no Slack app interactivity is required.
type Slack struct {
	webhookURL string
	channel    string
	publicURL  string
	client     *http.Client

	now func() time.Time
}

// NewSlack builds the Slack notifier.
func NewSlack(cfg *config.Notifier) *Slack {
	return &Slack{
		webhookURL: cfg.Slack.WebhookURL,
		channel:    cfg.Slack.Channel,
		publicURL:  cfg.Global.PublicURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

func (s *Slack) Notify(ctx context.Context, n Notification) error {
	if n.Token == "" {
		return fmt.Errorf("draft %s has no approval token", n.DraftID)
	}
	fallback := fmt.Sprintf("New draft for r/%s: %s...", n.Subreddit, truncate(n.Content, 100))
	if err := s.send(ctx, fallback, s.draftBlocks(n)); err != nil {
		return err
	}
	logrus.WithField("draft_id", n.DraftID).Info("Slack notification sent")
	return nil
}

func (s *Slack) NotifyStatus(ctx context.Context, u StatusUpdate) error {
	blocks := []map[string]any{
		mrkdwnSection(fmt.Sprintf("%s *Status Update*\n\nDraft `%s` is now *%s*", statusEmoji(u.Status), u.DraftID, u.Status)),
	}
	if u.CommentID != "" {
		blocks = append(blocks, mrkdwnContext(fmt.Sprintf("Comment ID: `%s`", u.CommentID)))
	}
	return s.send(ctx, fmt.Sprintf("Draft %s is now %s", u.DraftID, u.Status), blocks)
}

func (s *Slack) draftBlocks(n Notification) []map[string]any {
	approve, reject := approvalURLs(s.publicURL, n.Token)
	return []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": "📝 New Draft for Approval", "emoji": true},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Subreddit:*\nr/%s", n.Subreddit)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Draft ID:*\n`%s`", n.DraftID)},
			},
		},
		mrkdwnSection(fmt.Sprintf("<%s|View Thread on Reddit>", n.ThreadURL)),
		{"type": "divider"},
		mrkdwnSection(fmt.Sprintf("*Draft Content:*\n\n%s", n.Content)),
		{"type": "divider"},
		{
			"type":     "actions",
			"block_id": "draft_actions_" + n.DraftID,
			"elements": []map[string]any{
				{
					"type":  "button",
					"text":  map[string]any{"type": "plain_text", "text": "✅ Approve", "emoji": true},
					"style": "primary",
					"url":   approve,
				},
				{
					"type":  "button",
					"text":  map[string]any{"type": "plain_text", "text": "❌ Reject", "emoji": true},
					"style": "danger",
					"url":   reject,
				},
			},
		},
		mrkdwnContext("Sent at " + s.now().UTC().Format("2006-01-02 15:04") + " UTC"),
	}
}

// send posts to the incoming webhook. Slack acknowledges with a literal
// "ok" body; anything else is a failure even under HTTP 200.
func (s *Slack) send(ctx context.Context, fallback string, blocks []map[string]any) error {
	if s.webhookURL == "" {
		return fmt.Errorf("slack notifier is not configured")
	}
	payload := map[string]any{"text": fallback}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}
	if s.channel != "" {
		payload["channel"] = s.channel
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close() // nolint: errcheck
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return fmt.Errorf("failed to read slack response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || string(respBody) != "ok" {
		return fmt.Errorf("slack webhook returned HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	return nil
}

func mrkdwnSection(text string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func mrkdwnContext(text string) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": text},
		},
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
