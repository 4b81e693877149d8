// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package storage

import (
	"fmt"

	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage/postgres"
	"github.com/element-hq/axon/storage/sqlite3"
)

// NewDatabase opens a database connection for the configured backend.
func NewDatabase(conMan *sqlutil.Connections, dbProperties *config.DatabaseOptions) (Database, error) {
	switch {
	case dbProperties.ConnectionString.IsSQLite():
		return sqlite3.NewDatabase(conMan, dbProperties)
	case dbProperties.ConnectionString.IsPostgres():
		return postgres.NewDatabase(conMan, dbProperties)
	default:
		return nil, fmt.Errorf("unexpected database type")
	}
}
