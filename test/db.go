// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type DBType int

const (
	DBTypeSQLite DBType = iota + 1
	DBTypePostgres
)

// PrepareDBConnectionString returns a connection string for a fresh
// test database, plus a close function to call when the test finishes.
// SQLite databases live in the test's temporary directory. Postgres
// tests reuse the database named by AXON_TEST_POSTGRES_URI and are
// skipped when it is unset.
func PrepareDBConnectionString(t *testing.T, dbType DBType) (connStr string, close func()) {
	t.Helper()
	switch dbType {
	case DBTypeSQLite:
		dbname := filepath.Join(t.TempDir(), "axon_test.db")
		return fmt.Sprintf("file:%s", dbname), func() {
			// cleaned up by t.TempDir
		}
	case DBTypePostgres:
		uri := os.Getenv("AXON_TEST_POSTGRES_URI")
		if uri == "" {
			t.Skip("AXON_TEST_POSTGRES_URI not set, skipping Postgres test")
		}
		return uri, func() {}
	default:
		t.Fatalf("unknown database type %d", dbType)
		return "", nil
	}
}

// WithAllDatabases runs the given test against all supported database
// backends as subtests.
func WithAllDatabases(t *testing.T, testFn func(t *testing.T, dbType DBType)) {
	dbs := map[string]DBType{
		"sqlite":   DBTypeSQLite,
		"postgres": DBTypePostgres,
	}
	for dbName, dbType := range dbs {
		dbt := dbType
		t.Run(dbName, func(tt *testing.T) {
			testFn(tt, dbt)
		})
	}
}
