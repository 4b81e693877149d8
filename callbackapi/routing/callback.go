// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package routing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/internal/ip"
	"github.com/element-hq/axon/notify"
	"github.com/element-hq/axon/types"
)

// maxCallbackBody bounds the signed request body. Decisions are tiny.
const maxCallbackBody = 64 * 1024

type callbackRequest struct {
	Action string `json:"action"`
}

// callback handles programmatic decisions from a trusted integration.
// The whole body is authenticated with HMAC-SHA256 in the X-Signature
// header, the same scheme the outbound webhook notifier signs with.
func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	draftID := mux.Vars(r)["draftID"]
	log := logrus.WithFields(logrus.Fields{
		"draft_id": draftID,
		"client":   ip.GetRemoteHeader(r, "X-Real-IP"),
	})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if !h.validSignature(r.Header.Get("X-Signature"), body) {
		decisions.WithLabelValues("callback", "bad_signature").Inc()
		log.Warn("Callback rejected: bad or missing signature")
		jsonError(w, http.StatusForbidden, "invalid signature")
		return
	}

	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	var target types.DraftStatus
	switch req.Action {
	case "approve":
		target = types.DraftApproved
	case "reject":
		target = types.DraftRejected
	default:
		jsonError(w, http.StatusBadRequest, "action must be approve or reject")
		return
	}

	draft, err := h.db.GetDraft(ctx, draftID)
	if err != nil {
		log.WithError(err).Error("Draft lookup failed")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if draft == nil {
		jsonError(w, http.StatusNotFound, "no such draft")
		return
	}

	ok, err := h.db.UpdateDraftStatus(ctx, draft.DraftID, target, time.Now())
	if err != nil {
		log.WithError(err).Error("Status transition failed")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		decisions.WithLabelValues("callback", "conflict").Inc()
		jsonError(w, http.StatusConflict, "draft already decided")
		return
	}
	decisions.WithLabelValues("callback", "ok").Inc()
	log.WithField("status", target).Info("Draft decided via signed callback")

	if err := h.notifier.NotifyStatus(ctx, notify.StatusUpdate{
		DraftID: draft.DraftID,
		Status:  target,
	}); err != nil {
		log.WithError(err).Warn("Failed to deliver decision status update")
	}
	if target == types.DraftApproved && h.cfg.AutoPublish && h.pub != nil {
		go h.autoPublish(draft.DraftID)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"draft_id": draft.DraftID,
		"status":   string(target),
	})
}

// validSignature checks "sha256=<hex>" over the exact body bytes.
func (h *handlers) validSignature(header string, body []byte) bool {
	rest, found := strings.CutPrefix(header, "sha256=")
	if !found {
		return false
	}
	got, err := hex.DecodeString(rest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.GetCallbackSecret()))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
