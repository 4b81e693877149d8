// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/setup/process"
)

// Connections hands out database connections, reusing an existing
// connection pool (and, crucially, its Writer) when the same connection
// string is requested twice. Components sharing one SQLite file must
// also share one ExclusiveWriter or they will fight over the write lock.
type Connections struct {
	globalConfig        config.DatabaseOptions
	processContext      *process.ProcessContext
	existingConnections sync.Map
}

type con struct {
	db     *sql.DB
	writer Writer
}

func NewConnectionManager(processCtx *process.ProcessContext, globalConfig config.DatabaseOptions) *Connections {
	return &Connections{
		globalConfig:   globalConfig,
		processContext: processCtx,
	}
}

func (c *Connections) Connection(dbProperties *config.DatabaseOptions) (*sql.DB, Writer, error) {
	if dbProperties.ConnectionString == "" {
		// fall back to the global connection pool
		dbProperties = &c.globalConfig
	}
	if dbProperties.ConnectionString == "" {
		return nil, nil, fmt.Errorf("no database connections configured")
	}
	// Reuse existing connections where we can
	if existing, loaded := c.existingConnections.Load(dbProperties.ConnectionString); loaded {
		v := existing.(con)
		return v.db, v.writer, nil
	}
	writer := Writer(NewDummyWriter())
	if dbProperties.ConnectionString.IsSQLite() {
		writer = NewExclusiveWriter()
	}
	db, err := Open(dbProperties, writer)
	if err != nil {
		return nil, nil, err
	}
	c.existingConnections.Store(dbProperties.ConnectionString, con{db: db, writer: writer})
	if c.processContext != nil {
		go func() {
			// If we have a ProcessContext then we can gracefully close the
			// connection when the process is stopping.
			<-c.processContext.WaitForShutdown()
			_ = db.Close()
		}()
	}
	return db, writer, nil
}

// Open a postgres or sqlite database.
func Open(dbProperties *config.DatabaseOptions, writer Writer) (*sql.DB, error) {
	var err error
	var driverName, dsn string
	switch {
	case dbProperties.ConnectionString.IsSQLite():
		driverName = sqliteDriverName
		dsn, err = sqliteDSN(string(dbProperties.ConnectionString))
		if err != nil {
			return nil, fmt.Errorf("malformed sqlite connection string: %w", err)
		}
	case dbProperties.ConnectionString.IsPostgres():
		driverName = "postgres"
		dsn = string(dbProperties.ConnectionString)
	default:
		return nil, fmt.Errorf("invalid database connection string %q", dbProperties.ConnectionString)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if driverName == "postgres" {
		db.SetMaxOpenConns(dbProperties.MaxOpenConns())
		db.SetMaxIdleConns(dbProperties.MaxIdleConns())
		db.SetConnMaxLifetime(dbProperties.ConnMaxLifetime())
	} else {
		// SQLite is serialized through the exclusive writer anyway, and
		// multiple connections to the same file only invite lock errors.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
