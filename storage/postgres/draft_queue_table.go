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

const draftQueueSchema = `
CREATE TABLE IF NOT EXISTS axon_draft_queue (
	draft_id TEXT PRIMARY KEY,
	fullname TEXT NOT NULL UNIQUE,
	subreddit TEXT NOT NULL,
	content TEXT NOT NULL,
	permalink TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	item_class TEXT NOT NULL,
	quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	token_hash TEXT,
	token_lookup TEXT,
	token_created_ts BIGINT,
	created_ts BIGINT NOT NULL,
	approved_ts BIGINT,
	published_ts BIGINT,
	posted_fullname TEXT,
	engagement_checked BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS axon_draft_queue_status_idx
	ON axon_draft_queue(status);

CREATE INDEX IF NOT EXISTS axon_draft_queue_token_lookup_idx
	ON axon_draft_queue(token_lookup);
`

const insertDraftSQL = `
INSERT INTO axon_draft_queue (draft_id, fullname, subreddit, content, permalink, status, item_class, quality_score, token_hash, token_lookup, token_created_ts, created_ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const selectDraftSQL = `
SELECT draft_id, fullname, subreddit, content, permalink, status, item_class, quality_score, token_hash, token_lookup, token_created_ts, created_ts, approved_ts, published_ts, posted_fullname, engagement_checked
FROM axon_draft_queue
`

const selectDraftByIDSQL = selectDraftSQL + ` WHERE draft_id = $1`

const selectDraftByLookupSQL = selectDraftSQL + ` WHERE token_lookup = $1 AND token_hash IS NOT NULL`

const selectDraftsByStatusSQL = selectDraftSQL + ` WHERE status = $1 ORDER BY created_ts ASC LIMIT $2`

const selectDraftsForEngagementSQL = selectDraftSQL + `
WHERE status = 'PUBLISHED' AND engagement_checked = FALSE
	AND posted_fullname IS NOT NULL AND published_ts < $1
ORDER BY published_ts ASC LIMIT $2
`

const updateDraftStatusSQL = `
UPDATE axon_draft_queue
SET status = $1, approved_ts = $2, token_hash = NULL, token_lookup = NULL, token_created_ts = NULL
WHERE draft_id = $3 AND status = $4
`

const updateDraftPublishedSQL = `
UPDATE axon_draft_queue
SET status = 'PUBLISHED', posted_fullname = $1, published_ts = $2
WHERE draft_id = $3 AND status = 'APPROVED'
`

const markEngagementCheckedSQL = `
UPDATE axon_draft_queue SET engagement_checked = TRUE WHERE posted_fullname = $1
`

type draftQueueStatements struct {
	insertStmt            *sql.Stmt
	selectByIDStmt        *sql.Stmt
	selectByLookupStmt    *sql.Stmt
	selectByStatusStmt    *sql.Stmt
	selectForEngagement   *sql.Stmt
	updateStatusStmt      *sql.Stmt
	updatePublishedStmt   *sql.Stmt
	markEngagementChecked *sql.Stmt
}

func NewPostgresDraftQueueTable(db *sql.DB) (tables.DraftQueue, error) {
	s := &draftQueueStatements{}
	if _, err := db.Exec(draftQueueSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.insertStmt, insertDraftSQL},
		{&s.selectByIDStmt, selectDraftByIDSQL},
		{&s.selectByLookupStmt, selectDraftByLookupSQL},
		{&s.selectByStatusStmt, selectDraftsByStatusSQL},
		{&s.selectForEngagement, selectDraftsForEngagementSQL},
		{&s.updateStatusStmt, updateDraftStatusSQL},
		{&s.updatePublishedStmt, updateDraftPublishedSQL},
		{&s.markEngagementChecked, markEngagementCheckedSQL},
	}.Prepare(db)
}

func (s *draftQueueStatements) InsertDraft(ctx context.Context, txn *sql.Tx, draft *types.DraftRecord) error {
	stmt := sqlutil.TxStmt(txn, s.insertStmt)
	_, err := stmt.ExecContext(ctx,
		draft.DraftID, draft.Fullname, draft.Subreddit, draft.Content,
		draft.Permalink, string(draft.Status), string(draft.Class),
		draft.QualityScore, draft.TokenHash, draft.TokenLookupKey,
		draft.TokenCreatedAt.UTC().UnixMilli(), draft.CreatedAt.UTC().UnixMilli(),
	)
	return err
}

func (s *draftQueueStatements) SelectDraftByID(ctx context.Context, txn *sql.Tx, draftID string) (*types.DraftRecord, error) {
	stmt := sqlutil.TxStmt(txn, s.selectByIDStmt)
	return scanDraft(stmt.QueryRowContext(ctx, draftID))
}

func (s *draftQueueStatements) SelectDraftByLookupKey(ctx context.Context, txn *sql.Tx, lookupKey string) (*types.DraftRecord, error) {
	stmt := sqlutil.TxStmt(txn, s.selectByLookupStmt)
	return scanDraft(stmt.QueryRowContext(ctx, lookupKey))
}

func (s *draftQueueStatements) SelectDraftsByStatus(ctx context.Context, txn *sql.Tx, status types.DraftStatus, limit int) ([]types.DraftRecord, error) {
	stmt := sqlutil.TxStmt(txn, s.selectByStatusStmt)
	rows, err := stmt.QueryContext(ctx, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectDraftsByStatus: rows.close() failed")
	return scanDrafts(rows)
}

func (s *draftQueueStatements) SelectDraftsForEngagementCheck(ctx context.Context, txn *sql.Tx, publishedBefore time.Time, limit int) ([]types.DraftRecord, error) {
	stmt := sqlutil.TxStmt(txn, s.selectForEngagement)
	rows, err := stmt.QueryContext(ctx, publishedBefore.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectDraftsForEngagementCheck: rows.close() failed")
	return scanDrafts(rows)
}

func (s *draftQueueStatements) UpdateDraftStatus(ctx context.Context, txn *sql.Tx, draftID string, from, to types.DraftStatus, at time.Time) error {
	var approvedTS sql.NullInt64
	if to == types.DraftApproved {
		approvedTS = sql.NullInt64{Int64: at.UTC().UnixMilli(), Valid: true}
	}
	stmt := sqlutil.TxStmt(txn, s.updateStatusStmt)
	res, err := stmt.ExecContext(ctx, string(to), approvedTS, draftID, string(from))
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

func (s *draftQueueStatements) UpdateDraftPublished(ctx context.Context, txn *sql.Tx, draftID, postedFullname string, at time.Time) error {
	stmt := sqlutil.TxStmt(txn, s.updatePublishedStmt)
	res, err := stmt.ExecContext(ctx, postedFullname, at.UTC().UnixMilli(), draftID)
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

func (s *draftQueueStatements) MarkEngagementChecked(ctx context.Context, txn *sql.Tx, postedFullname string) error {
	stmt := sqlutil.TxStmt(txn, s.markEngagementChecked)
	_, err := stmt.ExecContext(ctx, postedFullname)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDraft(row scannable) (*types.DraftRecord, error) {
	var draft types.DraftRecord
	var tokenHash, tokenLookup, postedFullname sql.NullString
	var tokenCreated, createdTS sql.NullInt64
	var approvedTS, publishedTS sql.NullInt64
	err := row.Scan(
		&draft.DraftID, &draft.Fullname, &draft.Subreddit, &draft.Content,
		&draft.Permalink, &draft.Status, &draft.Class, &draft.QualityScore,
		&tokenHash, &tokenLookup, &tokenCreated, &createdTS,
		&approvedTS, &publishedTS, &postedFullname, &draft.EngagementChecked,
	)
	if err != nil {
		return nil, err
	}
	draft.TokenHash = tokenHash.String
	draft.TokenLookupKey = tokenLookup.String
	if tokenCreated.Valid {
		draft.TokenCreatedAt = time.UnixMilli(tokenCreated.Int64).UTC()
	}
	if createdTS.Valid {
		draft.CreatedAt = time.UnixMilli(createdTS.Int64).UTC()
	}
	if approvedTS.Valid {
		at := time.UnixMilli(approvedTS.Int64).UTC()
		draft.ApprovedAt = &at
	}
	if publishedTS.Valid {
		at := time.UnixMilli(publishedTS.Int64).UTC()
		draft.PublishedAt = &at
	}
	draft.PostedFullname = postedFullname.String
	return &draft, nil
}

func scanDrafts(rows *sql.Rows) ([]types.DraftRecord, error) {
	var drafts []types.DraftRecord
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *draft)
	}
	return drafts, rows.Err()
}
