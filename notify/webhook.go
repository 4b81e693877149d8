// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/internal"
	"github.com/element-hq/axon/setup/config"
)

const (
	// webhookAttempts bounds how often a draft notification is retried.
	// Status updates are best-effort and sent once.
	webhookAttempts = 3

	// maxWebhookResponse bounds how much of the endpoint's reply we
	// drain before reusing the connection.
	maxWebhookResponse = 64 * 1024
)

// Webhook posts JSON notifications to a configured endpoint and signs
// each body with HMAC-SHA256 so the receiver can verify where it came
// from. Unlike the chat channels it also carries a machine-usable
// callback URL, for receivers that approve programmatically.
type Webhook struct {
	url       string
	secret    string
	publicURL string
	client    *http.Client

	now func() time.Time
}

// NewWebhook builds the webhook notifier. The signing secret may come
// from AXON_WEBHOOK_SECRET instead of the config file.
func NewWebhook(cfg *config.Notifier) *Webhook {
	return &Webhook{
		url:       cfg.Webhook.URL,
		secret:    cfg.Webhook.GetSecret(),
		publicURL: cfg.Global.PublicURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		now:       time.Now,
	}
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	body, err := w.draftPayload(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	var lastErr error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.post(ctx, body); err != nil {
			lastErr = err
			logrus.WithError(err).WithFields(logrus.Fields{
				"draft_id": n.DraftID,
				"attempt":  attempt,
			}).Warn("Webhook notification attempt failed")
			continue
		}
		logrus.WithField("draft_id", n.DraftID).Info("Webhook notification sent")
		return nil
	}
	return fmt.Errorf("webhook notification failed after %d attempts: %w", webhookAttempts, lastErr)
}

func (w *Webhook) NotifyStatus(ctx context.Context, u StatusUpdate) error {
	body, err := json.Marshal(map[string]any{
		"type":       "status_update",
		"draft_id":   u.DraftID,
		"status":     string(u.Status),
		"comment_id": u.CommentID,
		"timestamp":  w.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode status update: %w", err)
	}
	return w.post(ctx, body)
}

// draftPayload marshals the notification once so the signature always
// covers the exact bytes sent on the wire. encoding/json emits map keys
// in sorted order, which keeps the body canonical for receivers that
// re-serialize before verifying.
func (w *Webhook) draftPayload(n Notification) ([]byte, error) {
	base := strings.TrimRight(w.publicURL, "/")
	payload := map[string]any{
		"draft_id":     n.DraftID,
		"subreddit":    n.Subreddit,
		"content":      n.Content,
		"thread_url":   n.ThreadURL,
		"timestamp":    w.now().UTC().Format(time.RFC3339),
		"callback_url": fmt.Sprintf("%s/api/callback/%s", base, n.DraftID),
	}
	if n.Token != "" {
		approve, reject := approvalURLs(w.publicURL, n.Token)
		payload["approve_url"] = approve
		payload["reject_url"] = reject
	}
	return json.Marshal(payload)
}

func (w *Webhook) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(body) // nolint: errcheck
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Axon/"+internal.VersionString())
	req.Header.Set("X-Signature", w.sign(body))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close() // nolint: errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxWebhookResponse))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}
