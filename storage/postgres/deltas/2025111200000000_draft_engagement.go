// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package deltas

import (
	"context"
	"database/sql"
	"fmt"
)

func UpDraftEngagement(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE axon_draft_queue
		ADD COLUMN IF NOT EXISTS posted_fullname TEXT;

		ALTER TABLE axon_draft_queue
		ADD COLUMN IF NOT EXISTS published_ts BIGINT;

		ALTER TABLE axon_draft_queue
		ADD COLUMN IF NOT EXISTS engagement_checked BOOLEAN NOT NULL DEFAULT FALSE;
	`)
	if err != nil {
		return fmt.Errorf("failed to execute draft engagement upgrade: %w", err)
	}
	return nil
}

func DownDraftEngagement(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE axon_draft_queue
		DROP COLUMN IF EXISTS posted_fullname;

		ALTER TABLE axon_draft_queue
		DROP COLUMN IF EXISTS published_ts;

		ALTER TABLE axon_draft_queue
		DROP COLUMN IF EXISTS engagement_checked;
	`)
	if err != nil {
		return fmt.Errorf("failed to execute draft engagement downgrade: %w", err)
	}
	return nil
}
