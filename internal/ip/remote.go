// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package ip resolves the client address behind a reverse proxy. The
// callback API logs it with every approval decision so an operator can
// audit where a draft was approved or rejected from.
package ip

import (
	"net"
	"net/http"
	"strings"
)

// GetRemoteHeader returns the client IP for the request, preferring
// X-Forwarded-For, then the given custom header, then RemoteAddr. When
// a header carries a chain of addresses the originating one is taken.
func GetRemoteHeader(req *http.Request, customHeaderName string) string {
	remote := req.RemoteAddr
	for _, v := range []string{
		req.Header.Get("X-Forwarded-For"),
		req.Header.Get(customHeaderName),
		req.RemoteAddr,
	} {
		if v != "" {
			remote = v
			break
		}
	}

	// Proxies append to the chain; the first entry is the client.
	first := strings.TrimSpace(strings.Split(remote, ",")[0])
	if ip := net.ParseIP(first); ip != nil {
		return first
	}
	return remote
}
