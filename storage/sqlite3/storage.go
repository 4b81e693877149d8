// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"

	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage/shared"
	"github.com/element-hq/axon/storage/sqlite3/deltas"
)

// NewDatabase opens a sqlite database.
func NewDatabase(conMan *sqlutil.Connections, dbProperties *config.DatabaseOptions) (*shared.Database, error) {
	db, writer, err := conMan.Connection(dbProperties)
	if err != nil {
		return nil, err
	}
	repliedItems, err := NewSQLiteRepliedItemsTable(db)
	if err != nil {
		return nil, err
	}
	draftQueue, err := NewSQLiteDraftQueueTable(db)
	if err != nil {
		return nil, err
	}
	performance, err := NewSQLitePerformanceHistoryTable(db)
	if err != nil {
		return nil, err
	}
	dailyStats, err := NewSQLiteDailyStatsTable(db)
	if err != nil {
		return nil, err
	}
	errorLog, err := NewSQLiteErrorLogTable(db)
	if err != nil {
		return nil, err
	}
	m := sqlutil.NewMigrator(db)
	m.AddMigrations(
		sqlutil.Migration{
			Version: "axon: replay priority tiers",
			Up:      deltas.UpReplayPriority,
			Down:    deltas.DownReplayPriority,
		},
		sqlutil.Migration{
			Version: "axon: draft engagement tracking",
			Up:      deltas.UpDraftEngagement,
			Down:    deltas.DownDraftEngagement,
		},
	)
	if err := m.Up(context.Background()); err != nil {
		return nil, err
	}
	return &shared.Database{
		DB:                 db,
		Writer:             writer,
		RepliedItems:       repliedItems,
		DraftQueue:         draftQueue,
		PerformanceHistory: performance,
		DailyStats:         dailyStats,
		ErrorLog:           errorLog,
	}, nil
}
