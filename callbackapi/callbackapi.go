// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package callbackapi is the component wrapper for the approval HTTP
// surface. The reviewer's one-click links, the signed programmatic
// callback and the operational endpoints all hang off the routes it
// registers.
package callbackapi

import (
	"github.com/gorilla/mux"

	"github.com/element-hq/axon/callbackapi/routing"
	"github.com/element-hq/axon/notify"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
)

// AddPublicRoutes sets up the callback API on the given router. pub may
// be nil to disable auto-publish regardless of configuration.
func AddPublicRoutes(
	router *mux.Router,
	cfg *config.Axon,
	db storage.Database,
	pub routing.AutoPublisher,
	notifier notify.Notifier,
) {
	routing.Setup(router, cfg, db, pub, notifier)
}
