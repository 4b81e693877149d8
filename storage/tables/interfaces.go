// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package tables defines the per-table contracts implemented by the
// sqlite3 and postgres backends. All select methods return
// sql.ErrNoRows when nothing matches; callers in storage/shared
// translate that to (nil, nil).
package tables

import (
	"context"
	"database/sql"
	"time"

	"github.com/element-hq/axon/types"
)

// RepliedItems is the replay ledger: one row per item the agent has ever
// attempted, keyed by Reddit fullname.
type RepliedItems interface {
	UpsertRepliedItem(ctx context.Context, txn *sql.Tx, record *types.ReplayRecord) error
	SelectRepliedItem(ctx context.Context, txn *sql.Tx, fullname string) (*types.ReplayRecord, error)
}

// DraftQueue holds drafts awaiting human approval and their lifecycle
// state afterwards.
type DraftQueue interface {
	// InsertDraft adds a new pending draft. The fullname column carries a
	// unique constraint so a second draft for the same item fails with a
	// unique constraint violation.
	InsertDraft(ctx context.Context, txn *sql.Tx, draft *types.DraftRecord) error
	SelectDraftByID(ctx context.Context, txn *sql.Tx, draftID string) (*types.DraftRecord, error)
	// SelectDraftByLookupKey resolves an approval token's lookup key to
	// its pending draft. Rows whose token has been cleared never match.
	SelectDraftByLookupKey(ctx context.Context, txn *sql.Tx, lookupKey string) (*types.DraftRecord, error)
	SelectDraftsByStatus(ctx context.Context, txn *sql.Tx, status types.DraftStatus, limit int) ([]types.DraftRecord, error)
	// UpdateDraftStatus moves a draft from one status to another,
	// clearing the approval token and stamping approved_ts when the
	// target status calls for it. Returns sql.ErrNoRows if the draft is
	// not currently in the from status.
	UpdateDraftStatus(ctx context.Context, txn *sql.Tx, draftID string, from, to types.DraftStatus, at time.Time) error
	// UpdateDraftPublished records the posted reply fullname and the
	// publication timestamp alongside the PUBLISHED status.
	UpdateDraftPublished(ctx context.Context, txn *sql.Tx, draftID, postedFullname string, at time.Time) error
	// SelectDraftsForEngagementCheck returns published drafts that have a
	// posted fullname, have not been checked yet and were published
	// before the cutoff.
	SelectDraftsForEngagementCheck(ctx context.Context, txn *sql.Tx, publishedBefore time.Time, limit int) ([]types.DraftRecord, error)
	MarkEngagementChecked(ctx context.Context, txn *sql.Tx, postedFullname string) error
}

// PerformanceHistory records one outcome row per draft for the
// historical scorer.
type PerformanceHistory interface {
	// UpsertOutcome inserts the row on first sight of a draft and updates
	// outcome and outcome_ts afterwards.
	UpsertOutcome(ctx context.Context, txn *sql.Tx, record *types.PerformanceRecord) error
	UpdateEngagement(ctx context.Context, txn *sql.Tx, draftID string, upvotes, replies int64, engagementScore float64) error
	SelectHistory(ctx context.Context, txn *sql.Tx, subreddit string, class types.ItemClass, limit int) ([]types.PerformanceRecord, error)
}

// DailyStats is the per-day published counter behind the daily volume cap.
type DailyStats interface {
	IncrementPublished(ctx context.Context, txn *sql.Tx, day string) error
	SelectPublishedCount(ctx context.Context, txn *sql.Tx, day string) (int64, error)
}

// ErrorLog is an append-only diagnostic trail of item-scoped failures.
type ErrorLog interface {
	InsertError(ctx context.Context, txn *sql.Tx, entry *types.ErrorLogEntry) error
	SelectErrorsByRun(ctx context.Context, txn *sql.Tx, runID string, limit int) ([]types.ErrorLogEntry, error)
	DeleteErrorsBefore(ctx context.Context, txn *sql.Tx, before time.Time) (int64, error)
}
