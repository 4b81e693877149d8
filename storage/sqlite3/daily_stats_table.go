// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"
	"database/sql"
	"errors"

	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/storage/tables"
)

const dailyStatsSchema = `
CREATE TABLE IF NOT EXISTS axon_daily_stats (
	stats_date TEXT PRIMARY KEY,
	published_count INTEGER NOT NULL DEFAULT 0
);
`

const incrementPublishedSQL = `
INSERT INTO axon_daily_stats (stats_date, published_count)
VALUES ($1, 1)
ON CONFLICT (stats_date) DO UPDATE
SET published_count = published_count + 1
`

const selectPublishedCountSQL = `
SELECT published_count FROM axon_daily_stats WHERE stats_date = $1
`

type dailyStatsStatements struct {
	incrementStmt *sql.Stmt
	selectStmt    *sql.Stmt
}

func NewSQLiteDailyStatsTable(db *sql.DB) (tables.DailyStats, error) {
	s := &dailyStatsStatements{}
	if _, err := db.Exec(dailyStatsSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.incrementStmt, incrementPublishedSQL},
		{&s.selectStmt, selectPublishedCountSQL},
	}.Prepare(db)
}

func (s *dailyStatsStatements) IncrementPublished(ctx context.Context, txn *sql.Tx, day string) error {
	stmt := sqlutil.TxStmt(txn, s.incrementStmt)
	_, err := stmt.ExecContext(ctx, day)
	return err
}

func (s *dailyStatsStatements) SelectPublishedCount(ctx context.Context, txn *sql.Tx, day string) (int64, error) {
	stmt := sqlutil.TxStmt(txn, s.selectStmt)
	var count int64
	err := stmt.QueryRowContext(ctx, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}
