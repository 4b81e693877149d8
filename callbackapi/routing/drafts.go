// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package routing

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/internal"
)

// pendingDraftsLimit caps the listing; a reviewer with more than this
// backlog has bigger problems.
const pendingDraftsLimit = 50

type pendingDraft struct {
	DraftID      string  `json:"draft_id"`
	Subreddit    string  `json:"subreddit"`
	Content      string  `json:"content"`
	Permalink    string  `json:"permalink"`
	Class        string  `json:"item_class"`
	QualityScore float64 `json:"quality_score"`
	CreatedAt    string  `json:"created_at"`
}

// pendingDrafts lists drafts still waiting for a decision, oldest
// first, so a reviewer who lost the notification can still act.
// Approval tokens are never part of the response.
func (h *handlers) pendingDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.db.PendingDrafts(r.Context(), pendingDraftsLimit)
	if err != nil {
		logrus.WithError(err).Error("Pending draft listing failed")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]pendingDraft, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, pendingDraft{
			DraftID:      d.DraftID,
			Subreddit:    d.Subreddit,
			Content:      d.Content,
			Permalink:    d.Permalink,
			Class:        string(d.Class),
			QualityScore: d.QualityScore,
			CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":  len(out),
		"drafts": out,
	})
}

// health reports whether the process can reach its database.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.PendingDrafts(r.Context(), 1); err != nil {
		logrus.WithError(err).Error("Health check failed to reach the database")
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": internal.VersionString(),
	})
}
