// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package shared

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/internal/tokens"
	"github.com/element-hq/axon/storage/tables"
	"github.com/element-hq/axon/types"
)

// Database wraps the individual tables into the operations the rest of
// axon uses. All writes go through the Writer so that SQLite gets a
// single exclusive writer goroutine.
type Database struct {
	DB                 *sql.DB
	Writer             sqlutil.Writer
	RepliedItems       tables.RepliedItems
	DraftQueue         tables.DraftQueue
	PerformanceHistory tables.PerformanceHistory
	DailyStats         tables.DailyStats
	ErrorLog           tables.ErrorLog
}

// CreateDraft stores a new pending draft together with its approval
// token. The plaintext token is returned exactly once, for delivery to
// the approver, and only its scrypt hash and lookup key are persisted.
// Draft creation is idempotent on the target fullname: if a draft for
// the same fullname already exists, no new row is written and created
// is false.
func (d *Database) CreateDraft(ctx context.Context, draft *types.DraftRecord) (token string, created bool, err error) {
	token, err = tokens.GenerateToken()
	if err != nil {
		return "", false, fmt.Errorf("failed to generate approval token: %w", err)
	}
	hash, err := tokens.HashToken(token)
	if err != nil {
		return "", false, fmt.Errorf("failed to hash approval token: %w", err)
	}
	now := time.Now().UTC()
	draft.Status = types.DraftPending
	draft.TokenHash = hash
	draft.TokenLookupKey = tokens.LookupKey(token)
	draft.TokenCreatedAt = now
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	err = d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		if err := d.DraftQueue.InsertDraft(ctx, txn, draft); err != nil {
			return err
		}
		return d.PerformanceHistory.UpsertOutcome(ctx, txn, &types.PerformanceRecord{
			DraftID:      draft.DraftID,
			Subreddit:    draft.Subreddit,
			Class:        draft.Class,
			QualityScore: draft.QualityScore,
			Outcome:      types.DraftPending,
			CreatedAt:    draft.CreatedAt,
		})
	})
	if err != nil {
		if sqlutil.IsUniqueConstraintViolationErr(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return token, true, nil
}

// GetDraft returns the draft with the given ID, or nil if none exists.
func (d *Database) GetDraft(ctx context.Context, draftID string) (*types.DraftRecord, error) {
	draft, err := d.DraftQueue.SelectDraftByID(ctx, nil, draftID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return draft, err
}

// GetDraftByToken resolves an approval token to its pending draft. It
// returns nil without error whenever the token cannot be redeemed: too
// short, unknown, already consumed, not pending, or older than the
// given lifetime. Callers treat nil as "expired or already used".
func (d *Database) GetDraftByToken(ctx context.Context, token string, lifetime time.Duration) (*types.DraftRecord, error) {
	if len(token) < tokens.MinTokenLength {
		return nil, nil
	}
	draft, err := d.DraftQueue.SelectDraftByLookupKey(ctx, nil, tokens.LookupKey(token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ok, err := tokens.VerifyToken(token, draft.TokenHash)
	if err != nil || !ok {
		return nil, err
	}
	if draft.Status != types.DraftPending {
		return nil, nil
	}
	if time.Now().After(draft.TokenCreatedAt.Add(lifetime)) {
		return nil, nil
	}
	return draft, nil
}

// UpdateDraftStatus moves a draft to a new status, clearing the
// approval token so it can never be redeemed twice. The outcome is
// mirrored into the performance history in the same transaction. It
// returns false if the draft does not exist, the transition is not
// allowed, or a concurrent update won the race.
func (d *Database) UpdateDraftStatus(ctx context.Context, draftID string, to types.DraftStatus, at time.Time) (bool, error) {
	var updated bool
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		draft, err := d.DraftQueue.SelectDraftByID(ctx, txn, draftID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if !draft.Status.CanTransition(to) {
			return nil
		}
		err = d.DraftQueue.UpdateDraftStatus(ctx, txn, draftID, draft.Status, to, at)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		outcomeAt := at
		if err := d.PerformanceHistory.UpsertOutcome(ctx, txn, &types.PerformanceRecord{
			DraftID:      draft.DraftID,
			Subreddit:    draft.Subreddit,
			Class:        draft.Class,
			QualityScore: draft.QualityScore,
			Outcome:      to,
			CreatedAt:    draft.CreatedAt,
			OutcomeAt:    &outcomeAt,
		}); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

// SetDraftPublished records that an approved draft went out to Reddit,
// storing the fullname of the posted comment and mirroring the outcome
// into the performance history. It returns false if the draft is not
// currently approved.
func (d *Database) SetDraftPublished(ctx context.Context, draftID, postedFullname string, at time.Time) (bool, error) {
	var updated bool
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		draft, err := d.DraftQueue.SelectDraftByID(ctx, txn, draftID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if !draft.Status.CanTransition(types.DraftPublished) {
			return nil
		}
		err = d.DraftQueue.UpdateDraftPublished(ctx, txn, draftID, postedFullname, at)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		outcomeAt := at
		if err := d.PerformanceHistory.UpsertOutcome(ctx, txn, &types.PerformanceRecord{
			DraftID:      draft.DraftID,
			Subreddit:    draft.Subreddit,
			Class:        draft.Class,
			QualityScore: draft.QualityScore,
			Outcome:      types.DraftPublished,
			CreatedAt:    draft.CreatedAt,
			OutcomeAt:    &outcomeAt,
		}); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

// PendingDrafts returns drafts awaiting a decision, oldest first.
func (d *Database) PendingDrafts(ctx context.Context, limit int) ([]types.DraftRecord, error) {
	return d.DraftQueue.SelectDraftsByStatus(ctx, nil, types.DraftPending, limit)
}

// ApprovedDrafts returns drafts ready for publishing, oldest first.
func (d *Database) ApprovedDrafts(ctx context.Context, limit int) ([]types.DraftRecord, error) {
	return d.DraftQueue.SelectDraftsByStatus(ctx, nil, types.DraftApproved, limit)
}

// DraftsDueEngagementCheck returns published drafts whose engagement
// has not yet been measured and which were published before the given
// cutoff.
func (d *Database) DraftsDueEngagementCheck(ctx context.Context, publishedBefore time.Time, limit int) ([]types.DraftRecord, error) {
	return d.DraftQueue.SelectDraftsForEngagementCheck(ctx, nil, publishedBefore, limit)
}

// RecordEngagement stores the measured upvotes and reply count for a
// published draft and derives its engagement score. Negative upvote
// totals are clamped to zero before the logarithm. The computed score
// is returned.
func (d *Database) RecordEngagement(ctx context.Context, draftID string, upvotes, replies int64) (float64, error) {
	clamped := upvotes
	if clamped < 0 {
		clamped = 0
	}
	score := math.Log(float64(clamped)+1) + float64(replies)*2
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.PerformanceHistory.UpdateEngagement(ctx, txn, draftID, upvotes, replies, score)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return score, nil
	}
	return score, err
}

// MarkEngagementChecked flags the draft behind the given posted
// fullname so the engagement checker does not revisit it. It is called
// even when the posted comment turned out to be deleted.
func (d *Database) MarkEngagementChecked(ctx context.Context, postedFullname string) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		err := d.DraftQueue.MarkEngagementChecked(ctx, txn, postedFullname)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
}

// MarkReplied upserts the replay-protection record for a fullname.
func (d *Database) MarkReplied(ctx context.Context, record *types.ReplayRecord) error {
	if record.LastAttempt.IsZero() {
		record.LastAttempt = time.Now().UTC()
	}
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.RepliedItems.UpsertRepliedItem(ctx, txn, record)
	})
}

// GetReplayRecord returns the replay-protection record for a fullname,
// or nil if the item has never been attempted.
func (d *Database) GetReplayRecord(ctx context.Context, fullname string) (*types.ReplayRecord, error) {
	record, err := d.RepliedItems.SelectRepliedItem(ctx, nil, fullname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// RecordOutcome upserts a performance history row outside of the draft
// state machine, for callers that track outcomes directly.
func (d *Database) RecordOutcome(ctx context.Context, record *types.PerformanceRecord) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.PerformanceHistory.UpsertOutcome(ctx, txn, record)
	})
}

// History returns recent performance rows for a subreddit and item
// class, newest first.
func (d *Database) History(ctx context.Context, subreddit string, class types.ItemClass, limit int) ([]types.PerformanceRecord, error) {
	return d.PerformanceHistory.SelectHistory(ctx, nil, subreddit, class, limit)
}

// PublishedCountOn returns how many replies were published on the
// given day, where day is formatted as YYYY-MM-DD in UTC.
func (d *Database) PublishedCountOn(ctx context.Context, day string) (int64, error) {
	return d.DailyStats.SelectPublishedCount(ctx, nil, day)
}

// IncrementPublishedCount bumps the published counter for a day.
func (d *Database) IncrementPublishedCount(ctx context.Context, day string) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.DailyStats.IncrementPublished(ctx, txn, day)
	})
}

// LogRunError persists a pipeline error for later inspection.
func (d *Database) LogRunError(ctx context.Context, entry *types.ErrorLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.ErrorLog.InsertError(ctx, txn, entry)
	})
}

// RunErrors returns the errors logged for a run, oldest first.
func (d *Database) RunErrors(ctx context.Context, runID string, limit int) ([]types.ErrorLogEntry, error) {
	return d.ErrorLog.SelectErrorsByRun(ctx, nil, runID, limit)
}

// PurgeErrorLog deletes error rows older than the given cutoff and
// returns how many were removed.
func (d *Database) PurgeErrorLog(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		var err error
		removed, err = d.ErrorLog.DeleteErrorsBefore(ctx, txn, before)
		return err
	})
	return removed, err
}
