// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package ip

import (
	"net/http/httptest"
	"testing"
)

func TestGetRemoteHeader(t *testing.T) {
	cases := []struct {
		name    string
		forward string
		custom  string
		want    string
	}{
		{"remote_addr_only", "", "", "192.0.2.1:1234"},
		{"forwarded_for_wins", "198.51.100.7", "203.0.113.9", "198.51.100.7"},
		{"custom_header_fallback", "", "203.0.113.9", "203.0.113.9"},
		{"proxy_chain_takes_first", "198.51.100.7, 10.0.0.1", "", "198.51.100.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/approve", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			if tc.forward != "" {
				req.Header.Set("X-Forwarded-For", tc.forward)
			}
			if tc.custom != "" {
				req.Header.Set("X-Real-IP", tc.custom)
			}
			if got := GetRemoteHeader(req, "X-Real-IP"); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
