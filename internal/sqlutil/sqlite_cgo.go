// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

//go:build cgo
// +build cgo

package sqlutil

import (
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriverName = "sqlite3"

// sqliteDSN adapts a file: connection string for the cgo sqlite3 driver,
// adding a busy timeout so concurrent readers back off instead of failing
// immediately with "database is locked".
func sqliteDSN(connectionString string) (string, error) {
	uri, err := url.Parse(connectionString)
	if err != nil {
		return "", err
	}
	q := uri.Query()
	if q.Get("_busy_timeout") == "" {
		q.Set("_busy_timeout", "10000")
	}
	uri.RawQuery = q.Encode()
	// url.Parse normalizes "file:name.db" into an opaque URL; rebuild the
	// form the driver expects.
	if uri.Opaque != "" {
		return "file:" + uri.Opaque + "?" + uri.RawQuery, nil
	}
	if uri.Path != "" && strings.HasPrefix(connectionString, "file:///") {
		return "file:" + uri.Path + "?" + uri.RawQuery, nil
	}
	return uri.String(), nil
}
