// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package routing

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/internal/ip"
	"github.com/element-hq/axon/notify"
	"github.com/element-hq/axon/types"
)

var approvalResultTemplate = template.Must(template.New("approval_result").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Draft {{.Verb}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
body { font-family: Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 0; }
.container { max-width: 480px; margin: 48px auto; background: #ffffff; padding: 32px; border-radius: 12px; box-shadow: 0 6px 24px rgba(0, 0, 0, 0.08); text-align: center; }
h1 { font-size: 1.6rem; margin-top: 0; }
.badge { font-size: 3rem; }
.detail { color: #555555; font-size: 0.95rem; margin-top: 16px; }
</style>
</head>
<body>
<div class="container">
<div class="badge">{{.Badge}}</div>
<h1>Draft {{.Verb}}</h1>
<p class="detail">Reply for r/{{.Subreddit}}{{if .AutoPublish}} &mdash; it will be posted shortly{{end}}.</p>
<p class="detail">You can close this page.</p>
</div>
</body>
</html>
`))

var approvalGoneTemplate = template.Must(template.New("approval_gone").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Link no longer valid</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
body { font-family: Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 0; }
.container { max-width: 480px; margin: 48px auto; background: #ffffff; padding: 32px; border-radius: 12px; box-shadow: 0 6px 24px rgba(0, 0, 0, 0.08); text-align: center; }
h1 { font-size: 1.6rem; margin-top: 0; }
.detail { color: #555555; font-size: 0.95rem; margin-top: 16px; }
</style>
</head>
<body>
<div class="container">
<h1>This link is no longer valid</h1>
<p class="detail">The approval link may have expired, or the draft has already been decided.</p>
</div>
</body>
</html>
`))

// approve handles the one-click links from draft notifications. An
// expired, consumed or unknown token always renders the same page, so
// the link itself leaks nothing about draft state.
func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")
	action := r.URL.Query().Get("action")
	if action == "" {
		action = "approve"
	}
	log := logrus.WithFields(logrus.Fields{
		"action": action,
		"client": ip.GetRemoteHeader(r, "X-Real-IP"),
	})

	var target types.DraftStatus
	switch action {
	case "approve":
		target = types.DraftApproved
	case "reject":
		target = types.DraftRejected
	default:
		decisions.WithLabelValues(action, "bad_action").Inc()
		http.Error(w, "action must be approve or reject", http.StatusBadRequest)
		return
	}

	if len(token) < minTokenLength {
		decisions.WithLabelValues(action, "bad_token").Inc()
		h.renderGone(w)
		return
	}

	draft, err := h.db.GetDraftByToken(ctx, token, h.cfg.TokenLifetime)
	if err != nil {
		log.WithError(err).Error("Token lookup failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if draft == nil {
		decisions.WithLabelValues(action, "not_found").Inc()
		log.Info("Approval link used with an unknown or expired token")
		h.renderGone(w)
		return
	}

	h.decide(ctx, w, log, draft, target, action)
}

// decide applies a reviewer's decision to a pending draft and renders
// the outcome. Shared between the link handler and the signed callback
// only up to the transition; responses differ.
func (h *handlers) decide(ctx context.Context, w http.ResponseWriter, log *logrus.Entry, draft *types.DraftRecord, target types.DraftStatus, action string) {
	ok, err := h.db.UpdateDraftStatus(ctx, draft.DraftID, target, time.Now())
	if err != nil {
		log.WithError(err).Error("Status transition failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !ok {
		// Decided elsewhere between lookup and update.
		decisions.WithLabelValues(action, "conflict").Inc()
		h.renderGone(w)
		return
	}
	decisions.WithLabelValues(action, "ok").Inc()
	log.WithFields(logrus.Fields{
		"draft_id": draft.DraftID,
		"status":   target,
	}).Info("Draft decided")

	if err := h.notifier.NotifyStatus(ctx, notify.StatusUpdate{
		DraftID: draft.DraftID,
		Status:  target,
	}); err != nil {
		log.WithError(err).Warn("Failed to deliver decision status update")
	}

	autoPublish := target == types.DraftApproved && h.cfg.AutoPublish && h.pub != nil
	if autoPublish {
		go h.autoPublish(draft.DraftID)
	}

	verb, badge := "approved", "✅"
	if target == types.DraftRejected {
		verb, badge = "rejected", "❌"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := approvalResultTemplate.Execute(w, map[string]any{
		"Verb":        verb,
		"Badge":       badge,
		"Subreddit":   draft.Subreddit,
		"AutoPublish": autoPublish,
	}); err != nil {
		log.WithError(err).Error("Failed to render approval page")
	}
}

// autoPublish posts a freshly approved draft in the background. It
// runs detached from the request so a slow Reddit round-trip never
// holds the reviewer's browser open.
func (h *handlers) autoPublish(draftID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := h.pub.PublishDraft(ctx, draftID); err != nil {
		logrus.WithError(err).WithField("draft_id", draftID).Error("Auto-publish failed, draft stays approved")
		return
	}
	logrus.WithField("draft_id", draftID).Info("Draft auto-published")
}

func (h *handlers) renderGone(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusGone)
	_ = approvalGoneTemplate.Execute(w, nil)
}
