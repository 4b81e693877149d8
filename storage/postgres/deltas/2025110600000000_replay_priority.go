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

func UpReplayPriority(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE axon_replied_items
		ADD COLUMN IF NOT EXISTS priority TEXT NOT NULL DEFAULT 'normal';
	`)
	if err != nil {
		return fmt.Errorf("failed to execute replay priority upgrade: %w", err)
	}
	return nil
}

func DownReplayPriority(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE axon_replied_items
		DROP COLUMN IF EXISTS priority;
	`)
	if err != nil {
		return fmt.Errorf("failed to execute replay priority downgrade: %w", err)
	}
	return nil
}
