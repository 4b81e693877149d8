// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/storage/tables"
	"github.com/element-hq/axon/types"
)

const repliedItemsSchema = `
CREATE TABLE IF NOT EXISTS axon_replied_items (
	fullname TEXT PRIMARY KEY,
	subreddit TEXT NOT NULL,
	status TEXT NOT NULL,
	item_class TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'normal',
	last_attempt_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS axon_replied_items_subreddit_idx
	ON axon_replied_items(subreddit);
`

const upsertRepliedItemSQL = `
INSERT INTO axon_replied_items (fullname, subreddit, status, item_class, priority, last_attempt_ts)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (fullname) DO UPDATE
SET subreddit = $2, status = $3, item_class = $4, priority = $5, last_attempt_ts = $6
`

const selectRepliedItemSQL = `
SELECT fullname, subreddit, status, item_class, priority, last_attempt_ts
FROM axon_replied_items WHERE fullname = $1
`

type repliedItemsStatements struct {
	upsertStmt *sql.Stmt
	selectStmt *sql.Stmt
}

func NewPostgresRepliedItemsTable(db *sql.DB) (tables.RepliedItems, error) {
	s := &repliedItemsStatements{}
	if _, err := db.Exec(repliedItemsSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertStmt, upsertRepliedItemSQL},
		{&s.selectStmt, selectRepliedItemSQL},
	}.Prepare(db)
}

func (s *repliedItemsStatements) UpsertRepliedItem(ctx context.Context, txn *sql.Tx, record *types.ReplayRecord) error {
	stmt := sqlutil.TxStmt(txn, s.upsertStmt)
	_, err := stmt.ExecContext(ctx,
		record.Fullname, record.Subreddit, string(record.Status),
		string(record.Class), string(record.Priority),
		record.LastAttempt.UTC().UnixMilli(),
	)
	return err
}

func (s *repliedItemsStatements) SelectRepliedItem(ctx context.Context, txn *sql.Tx, fullname string) (*types.ReplayRecord, error) {
	stmt := sqlutil.TxStmt(txn, s.selectStmt)
	var record types.ReplayRecord
	var lastAttempt int64
	err := stmt.QueryRowContext(ctx, fullname).Scan(
		&record.Fullname, &record.Subreddit, &record.Status,
		&record.Class, &record.Priority, &lastAttempt,
	)
	if err != nil {
		return nil, err
	}
	record.LastAttempt = time.UnixMilli(lastAttempt).UTC()
	return &record, nil
}
