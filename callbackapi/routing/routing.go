// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package routing serves the human-facing approval surface: the
// one-click approve/reject links sent with every draft notification, a
// signed programmatic callback, the pending-draft listing and the
// health and metrics endpoints.
package routing

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/element-hq/axon/notify"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
)

// minTokenLength rejects obviously malformed tokens before the
// database is consulted. Real tokens are 43 characters of base64.
const minTokenLength = 20

var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "axon",
		Subsystem: "callbackapi",
		Name:      "decisions_total",
		Help:      "Approval decisions received, by action and outcome",
	},
	[]string{"action", "outcome"},
)

var registerCallbackMetrics sync.Once

func init() {
	registerCallbackMetrics.Do(func() {
		prometheus.MustRegister(decisions)
	})
}

// AutoPublisher posts one approved draft immediately. Implemented by
// *publish.Publisher.
type AutoPublisher interface {
	PublishDraft(ctx context.Context, draftID string) error
}

type handlers struct {
	cfg      *config.CallbackAPI
	metrics  *config.Metrics
	db       storage.Database
	pub      AutoPublisher
	notifier notify.Notifier
}

// Setup registers the callback API routes on the given router. pub may
// be nil, in which case approvals never auto-publish.
func Setup(router *mux.Router, cfg *config.Axon, db storage.Database, pub AutoPublisher, notifier notify.Notifier) {
	h := &handlers{
		cfg:      &cfg.CallbackAPI,
		metrics:  &cfg.Global.Metrics,
		db:       db,
		pub:      pub,
		notifier: notifier,
	}

	router.HandleFunc("/approve", h.approve).Methods(http.MethodGet)
	router.HandleFunc("/api/drafts/pending", h.pendingDrafts).Methods(http.MethodGet)
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)

	// The signed callback only exists when a signing secret does.
	if h.cfg.GetCallbackSecret() != "" {
		router.HandleFunc("/api/callback/{draftID}", h.callback).Methods(http.MethodPost)
	}

	if h.metrics.Enabled {
		router.Handle("/metrics", h.metricsHandler()).Methods(http.MethodGet)
	}
}

// metricsHandler wraps the Prometheus handler in basic auth when
// credentials are configured.
func (h *handlers) metricsHandler() http.Handler {
	inner := promhttp.Handler()
	username := h.metrics.BasicAuth.Username
	password := h.metrics.BasicAuth.Password
	if username == "" && password == "" {
		return inner
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != username || pass != password {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		inner.ServeHTTP(w, r)
	})
}
