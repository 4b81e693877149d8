// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package storage

import (
	"context"
	"time"

	"github.com/element-hq/axon/types"
)

// Database is the persistence layer for axon: the draft approval state
// machine, replay protection, performance history, daily publish
// counters and the pipeline error log.
type Database interface {
	// CreateDraft stores a new pending draft and returns the one-time
	// plaintext approval token. created is false when a draft for the
	// same fullname already exists, in which case nothing is written.
	CreateDraft(ctx context.Context, draft *types.DraftRecord) (token string, created bool, err error)
	// GetDraft returns a draft by ID, or nil if it does not exist.
	GetDraft(ctx context.Context, draftID string) (*types.DraftRecord, error)
	// GetDraftByToken resolves an approval token to its pending draft,
	// or nil when the token is invalid, consumed or expired.
	GetDraftByToken(ctx context.Context, token string, lifetime time.Duration) (*types.DraftRecord, error)
	// UpdateDraftStatus transitions a draft and consumes its token.
	UpdateDraftStatus(ctx context.Context, draftID string, to types.DraftStatus, at time.Time) (bool, error)
	// SetDraftPublished records the posted fullname for an approved draft.
	SetDraftPublished(ctx context.Context, draftID, postedFullname string, at time.Time) (bool, error)
	PendingDrafts(ctx context.Context, limit int) ([]types.DraftRecord, error)
	ApprovedDrafts(ctx context.Context, limit int) ([]types.DraftRecord, error)
	DraftsDueEngagementCheck(ctx context.Context, publishedBefore time.Time, limit int) ([]types.DraftRecord, error)
	// RecordEngagement stores measured engagement for a published draft
	// and returns the derived engagement score.
	RecordEngagement(ctx context.Context, draftID string, upvotes, replies int64) (float64, error)
	MarkEngagementChecked(ctx context.Context, postedFullname string) error
	MarkReplied(ctx context.Context, record *types.ReplayRecord) error
	GetReplayRecord(ctx context.Context, fullname string) (*types.ReplayRecord, error)
	RecordOutcome(ctx context.Context, record *types.PerformanceRecord) error
	History(ctx context.Context, subreddit string, class types.ItemClass, limit int) ([]types.PerformanceRecord, error)
	PublishedCountOn(ctx context.Context, day string) (int64, error)
	IncrementPublishedCount(ctx context.Context, day string) error
	LogRunError(ctx context.Context, entry *types.ErrorLogEntry) error
	RunErrors(ctx context.Context, runID string, limit int) ([]types.ErrorLogEntry, error)
	PurgeErrorLog(ctx context.Context, before time.Time) (int64, error)
}
