// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/element-hq/axon/internal"
	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/storage/tables"
	"github.com/element-hq/axon/types"
)

const performanceHistorySchema = `
CREATE TABLE IF NOT EXISTS axon_performance_history (
	id BIGSERIAL PRIMARY KEY,
	draft_id TEXT NOT NULL UNIQUE,
	subreddit TEXT NOT NULL,
	item_class TEXT NOT NULL,
	quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	engagement_score DOUBLE PRECISION,
	upvotes BIGINT,
	replies BIGINT,
	created_ts BIGINT NOT NULL,
	outcome_ts BIGINT
);

CREATE INDEX IF NOT EXISTS axon_performance_history_subreddit_idx
	ON axon_performance_history(subreddit, item_class);
`

const upsertOutcomeSQL = `
INSERT INTO axon_performance_history (draft_id, subreddit, item_class, quality_score, outcome, created_ts, outcome_ts)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (draft_id) DO UPDATE
SET outcome = $5, outcome_ts = $7
`

const updateEngagementSQL = `
UPDATE axon_performance_history
SET upvotes = $1, replies = $2, engagement_score = $3
WHERE draft_id = $4
`

const selectHistorySQL = `
SELECT draft_id, subreddit, item_class, quality_score, outcome, engagement_score, upvotes, replies, created_ts, outcome_ts
FROM axon_performance_history
WHERE subreddit = $1 AND item_class = $2
ORDER BY created_ts DESC
LIMIT $3
`

type performanceHistoryStatements struct {
	upsertStmt        *sql.Stmt
	updateEngagement  *sql.Stmt
	selectHistoryStmt *sql.Stmt
}

func NewPostgresPerformanceHistoryTable(db *sql.DB) (tables.PerformanceHistory, error) {
	s := &performanceHistoryStatements{}
	if _, err := db.Exec(performanceHistorySchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertStmt, upsertOutcomeSQL},
		{&s.updateEngagement, updateEngagementSQL},
		{&s.selectHistoryStmt, selectHistorySQL},
	}.Prepare(db)
}

func (s *performanceHistoryStatements) UpsertOutcome(ctx context.Context, txn *sql.Tx, record *types.PerformanceRecord) error {
	var outcomeTS sql.NullInt64
	if record.OutcomeAt != nil {
		outcomeTS = sql.NullInt64{Int64: record.OutcomeAt.UTC().UnixMilli(), Valid: true}
	}
	stmt := sqlutil.TxStmt(txn, s.upsertStmt)
	_, err := stmt.ExecContext(ctx,
		record.DraftID, record.Subreddit, string(record.Class),
		record.QualityScore, string(record.Outcome),
		record.CreatedAt.UTC().UnixMilli(), outcomeTS,
	)
	return err
}

func (s *performanceHistoryStatements) UpdateEngagement(ctx context.Context, txn *sql.Tx, draftID string, upvotes, replies int64, engagementScore float64) error {
	stmt := sqlutil.TxStmt(txn, s.updateEngagement)
	res, err := stmt.ExecContext(ctx, upvotes, replies, engagementScore, draftID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *performanceHistoryStatements) SelectHistory(ctx context.Context, txn *sql.Tx, subreddit string, class types.ItemClass, limit int) ([]types.PerformanceRecord, error) {
	stmt := sqlutil.TxStmt(txn, s.selectHistoryStmt)
	rows, err := stmt.QueryContext(ctx, subreddit, string(class), limit)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectHistory: rows.close() failed")
	return scanPerformanceRecords(rows)
}

func scanPerformanceRecords(rows *sql.Rows) ([]types.PerformanceRecord, error) {
	var records []types.PerformanceRecord
	for rows.Next() {
		var record types.PerformanceRecord
		var engagement sql.NullFloat64
		var upvotes, replies, outcomeTS sql.NullInt64
		var createdTS int64
		if err := rows.Scan(
			&record.DraftID, &record.Subreddit, &record.Class,
			&record.QualityScore, &record.Outcome,
			&engagement, &upvotes, &replies, &createdTS, &outcomeTS,
		); err != nil {
			return nil, err
		}
		if engagement.Valid {
			record.EngagementScore = &engagement.Float64
		}
		if upvotes.Valid {
			record.Upvotes = &upvotes.Int64
		}
		if replies.Valid {
			record.Replies = &replies.Int64
		}
		record.CreatedAt = time.UnixMilli(createdTS).UTC()
		if outcomeTS.Valid {
			at := time.UnixMilli(outcomeTS.Int64).UTC()
			record.OutcomeAt = &at
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
