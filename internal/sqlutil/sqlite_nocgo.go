// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

//go:build !cgo
// +build !cgo

package sqlutil

import (
	"net/url"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// sqliteDSN adapts a file: connection string for the pure-Go sqlite
// driver, which takes pragmas through _pragma query parameters.
func sqliteDSN(connectionString string) (string, error) {
	uri, err := url.Parse(connectionString)
	if err != nil {
		return "", err
	}
	q := uri.Query()
	q.Add("_pragma", "busy_timeout(10000)")
	if uri.Opaque != "" {
		return "file:" + uri.Opaque + "?" + q.Encode(), nil
	}
	return "file:" + uri.Path + "?" + q.Encode(), nil
}
