// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package notify delivers draft approval requests to a human reviewer
// over one or more outbound channels: a signed webhook, a Telegram bot
// or a Slack incoming webhook. Every channel renders the same
// Notification its own way, and all of them link back to the approval
// page served by the callback API, so a reviewer can act from whichever
// client they happen to be looking at.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/types"
)

// Notification asks a reviewer to approve or reject one draft. Token is
// the plaintext approval token: it is carried here exactly once, at
// draft creation, and exists nowhere else outside the reviewer's
// mailbox. An empty Token renders the notification without approval
// links.
type Notification struct {
	DraftID   string
	Subreddit string
	Content   string
	ThreadURL string
	Token     string
}

// StatusUpdate reports a draft's lifecycle transition after the fact.
// CommentID is set once the draft has been published.
type StatusUpdate struct {
	DraftID   string
	Status    types.DraftStatus
	CommentID string
}

// Notifier delivers approval requests and status updates. Notify
// returning nil means at least one reviewer-visible channel accepted
// the message.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	NotifyStatus(ctx context.Context, u StatusUpdate) error
}

// NewNotifier builds the notifier stack from configuration. Several
// targets may be enabled at once; with none configured every delivery
// becomes a logged no-op.
func NewNotifier(cfg *config.Notifier) (Notifier, error) {
	m := &Multi{}
	for _, name := range cfg.EnabledTargets() {
		switch name {
		case "webhook":
			m.targets = append(m.targets, namedTarget{name, NewWebhook(cfg)})
		case "telegram":
			m.targets = append(m.targets, namedTarget{name, NewTelegram(cfg)})
		case "slack":
			m.targets = append(m.targets, namedTarget{name, NewSlack(cfg)})
		default:
			return nil, fmt.Errorf("unknown notifier target %q", name)
		}
	}
	if len(m.targets) == 0 {
		logrus.Warn("No notifier targets configured, draft notifications will be dropped")
	}
	return m, nil
}

// Multi fans each message out to every configured target. One target
// failing never stops delivery to the others: a draft notification has
// done its job as soon as a single channel can show it to a reviewer,
// so Multi reports an error only when every target failed.
type Multi struct {
	targets []namedTarget
}

type namedTarget struct {
	name string
	Notifier
}

func (m *Multi) Notify(ctx context.Context, n Notification) error {
	return m.fanOut(func(t namedTarget) error {
		if err := t.Notify(ctx, n); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"target":   t.name,
				"draft_id": n.DraftID,
			}).Error("Draft notification delivery failed")
			return err
		}
		return nil
	})
}

func (m *Multi) NotifyStatus(ctx context.Context, u StatusUpdate) error {
	return m.fanOut(func(t namedTarget) error {
		if err := t.NotifyStatus(ctx, u); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"target":   t.name,
				"draft_id": u.DraftID,
				"status":   u.Status,
			}).Warn("Status update delivery failed")
			return err
		}
		return nil
	})
}

func (m *Multi) fanOut(send func(namedTarget) error) error {
	if len(m.targets) == 0 {
		return nil
	}
	var delivered int
	var lastErr error
	for _, t := range m.targets {
		if err := send(t); err != nil {
			lastErr = err
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("all %d notifier targets failed, last error: %w", len(m.targets), lastErr)
	}
	return nil
}

// approvalURLs builds the one-click approve and reject links for a
// token. The token travels as a query parameter so the links work from
// any chat client without platform interactivity.
func approvalURLs(publicURL, token string) (approve, reject string) {
	base := strings.TrimRight(publicURL, "/")
	escaped := url.QueryEscape(token)
	approve = fmt.Sprintf("%s/approve?token=%s&action=approve", base, escaped)
	reject = fmt.Sprintf("%s/approve?token=%s&action=reject", base, escaped)
	return approve, reject
}

func statusEmoji(status types.DraftStatus) string {
	switch status {
	case types.DraftApproved:
		return "✅"
	case types.DraftRejected:
		return "❌"
	case types.DraftPublished:
		return "🚀"
	default:
		return "ℹ️"
	}
}
