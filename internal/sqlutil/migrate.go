// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/internal"
)

const createDBMigrationsSQL = "" +
	"CREATE TABLE IF NOT EXISTS db_migrations (" +
	" version TEXT PRIMARY KEY NOT NULL," +
	" time TEXT NOT NULL," +
	" axon_version TEXT NOT NULL" +
	");"

const insertVersionSQL = "" +
	"INSERT INTO db_migrations (version, time, axon_version)" +
	" VALUES ($1, $2, $3)"

const selectDBMigrationsSQL = "SELECT version FROM db_migrations"

// Migration defines a migration to be run.
type Migration struct {
	// Version is a simple description/name of this migration.
	Version string
	// Up defines the function to execute for an upgrade.
	Up func(ctx context.Context, txn *sql.Tx) error
	// Down defines the function to execute for a downgrade (not implemented yet).
	Down func(ctx context.Context, txn *sql.Tx) error
}

// Migrator contains fields required to run migrations.
type Migrator struct {
	db              *sql.DB
	migrations      []Migration
	knownMigrations map[string]struct{}
	mutex           *sync.Mutex
}

// NewMigrator creates a new DB migrator.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{
		db:              db,
		migrations:      []Migration{},
		knownMigrations: make(map[string]struct{}),
		mutex:           &sync.Mutex{},
	}
}

// AddMigrations appends migrations to the list of migrations. Migrations
// are executed in the order they are added and de-duplicated using their
// Version field.
func (m *Migrator) AddMigrations(migrations ...Migration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, mig := range migrations {
		if _, ok := m.knownMigrations[mig.Version]; !ok {
			m.migrations = append(m.migrations, mig)
			m.knownMigrations[mig.Version] = struct{}{}
		}
	}
}

// Up executes all migrations in the order they were added.
func (m *Migrator) Up(ctx context.Context) error {
	executedMigrations, err := m.ExecutedMigrations(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create/get migrations")
	}

	axonVersion := internal.VersionString()
	return WithTransaction(m.db, func(txn *sql.Tx) error {
		for i := range m.migrations {
			migration := m.migrations[i]
			// skip migrations that were already executed
			if _, ok := executedMigrations[migration.Version]; ok {
				continue
			}
			logrus.Debugf("Executing database migration '%s'", migration.Version)
			if err = migration.Up(ctx, txn); err != nil {
				return errors.Wrapf(err, "unable to execute migration '%s'", migration.Version)
			}
			now := time.Now().UTC().Format(time.RFC3339)
			if _, err = txn.ExecContext(ctx, insertVersionSQL, migration.Version, now, axonVersion); err != nil {
				return errors.Wrap(err, "unable to insert executed migrations")
			}
		}
		return nil
	})
}

// ExecutedMigrations returns a map of already executed migrations, in
// addition to creating the migrations table if it doesn't exist.
func (m *Migrator) ExecutedMigrations(ctx context.Context) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if _, err := m.db.ExecContext(ctx, createDBMigrationsSQL); err != nil {
		return nil, errors.Wrap(err, "unable to create db_migrations")
	}
	rows, err := m.db.QueryContext(ctx, selectDBMigrationsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query db_migrations")
	}
	defer internal.CloseAndLogIfError(ctx, rows, "ExecutedMigrations: rows.close() failed")
	for rows.Next() {
		var version string
		if err = rows.Scan(&version); err != nil {
			return nil, errors.Wrap(err, "unable to scan version")
		}
		result[version] = struct{}{}
	}
	return result, rows.Err()
}
