// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"
	"database/sql"
	"time"

	"github.com/element-hq/axon/internal"
	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/storage/tables"
	"github.com/element-hq/axon/types"
)

const errorLogSchema = `
CREATE TABLE IF NOT EXISTS axon_error_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	fullname TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS axon_error_log_run_idx
	ON axon_error_log(run_id);

CREATE INDEX IF NOT EXISTS axon_error_log_created_idx
	ON axon_error_log(created_ts);
`

const insertErrorSQL = `
INSERT INTO axon_error_log (run_id, stage, fullname, message, created_ts)
VALUES ($1, $2, $3, $4, $5)
`

const selectErrorsByRunSQL = `
SELECT run_id, stage, fullname, message, created_ts
FROM axon_error_log WHERE run_id = $1
ORDER BY created_ts ASC LIMIT $2
`

const deleteErrorsBeforeSQL = `
DELETE FROM axon_error_log WHERE created_ts < $1
`

type errorLogStatements struct {
	insertStmt       *sql.Stmt
	selectByRunStmt  *sql.Stmt
	deleteBeforeStmt *sql.Stmt
}

func NewSQLiteErrorLogTable(db *sql.DB) (tables.ErrorLog, error) {
	s := &errorLogStatements{}
	if _, err := db.Exec(errorLogSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.insertStmt, insertErrorSQL},
		{&s.selectByRunStmt, selectErrorsByRunSQL},
		{&s.deleteBeforeStmt, deleteErrorsBeforeSQL},
	}.Prepare(db)
}

func (s *errorLogStatements) InsertError(ctx context.Context, txn *sql.Tx, entry *types.ErrorLogEntry) error {
	stmt := sqlutil.TxStmt(txn, s.insertStmt)
	_, err := stmt.ExecContext(ctx,
		entry.RunID, entry.Stage, entry.Fullname, entry.Message,
		entry.CreatedAt.UTC().UnixMilli(),
	)
	return err
}

func (s *errorLogStatements) SelectErrorsByRun(ctx context.Context, txn *sql.Tx, runID string, limit int) ([]types.ErrorLogEntry, error) {
	stmt := sqlutil.TxStmt(txn, s.selectByRunStmt)
	rows, err := stmt.QueryContext(ctx, runID, limit)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectErrorsByRun: rows.close() failed")
	var entries []types.ErrorLogEntry
	for rows.Next() {
		var entry types.ErrorLogEntry
		var createdTS int64
		if err := rows.Scan(&entry.RunID, &entry.Stage, &entry.Fullname, &entry.Message, &createdTS); err != nil {
			return nil, err
		}
		entry.CreatedAt = time.UnixMilli(createdTS).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *errorLogStatements) DeleteErrorsBefore(ctx context.Context, txn *sql.Tx, before time.Time) (int64, error) {
	stmt := sqlutil.TxStmt(txn, s.deleteBeforeStmt)
	res, err := stmt.ExecContext(ctx, before.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
