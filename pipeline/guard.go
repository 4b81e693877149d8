// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/types"
)

// ReplayGuard consults the durable attempt ledger before a candidate is
// allowed back into a run. A published reply blocks its item forever, a
// deliberate skip likewise; only failed attempts come back, and only
// once their cooldown has lapsed. The cooldown keys off the priority
// tier stored on the record, so a failed inbox reply retries sooner
// than failed discovery content.
type ReplayGuard struct {
	db  storage.Database
	cfg *config.Selection

	now func() time.Time
}

func NewReplayGuard(db storage.Database, cfg *config.Selection) *ReplayGuard {
	return &ReplayGuard{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// cooldown returns how long a failed attempt blocks an item of the
// given tier.
func (g *ReplayGuard) cooldown(priority types.Priority) time.Duration {
	if priority == types.PriorityHigh {
		return g.cfg.InboxCooldown
	}
	return g.cfg.DiscoveryCooldown
}

// IsRetryable reports whether an item may be attempted (again) now.
func (g *ReplayGuard) IsRetryable(ctx context.Context, fullname string) (bool, error) {
	record, err := g.db.GetReplayRecord(ctx, fullname)
	if err != nil {
		return false, err
	}
	if record == nil {
		// Never attempted.
		return true, nil
	}
	switch record.Status {
	case types.AttemptSuccess, types.AttemptSkipped:
		return false, nil
	case types.AttemptFailed:
		elapsed := g.now().Sub(record.LastAttempt)
		cooldown := g.cooldown(record.Priority)
		if elapsed < cooldown {
			logrus.WithFields(logrus.Fields{
				"fullname": fullname,
				"elapsed":  elapsed.Round(time.Minute),
				"cooldown": cooldown,
				"priority": record.Priority,
			}).Debug("Item still cooling down after a failed attempt")
			return false, nil
		}
		return true, nil
	default:
		// Unknown status from a newer schema; leave the item alone.
		return false, nil
	}
}

// MarkAttempt records how an attempt on a candidate ended.
func (g *ReplayGuard) MarkAttempt(ctx context.Context, candidate *types.Candidate, status types.AttemptStatus) error {
	return g.db.MarkReplied(ctx, &types.ReplayRecord{
		Fullname:    candidate.Fullname,
		Subreddit:   candidate.Subreddit,
		Status:      status,
		Class:       candidate.Class,
		Priority:    candidate.Priority,
		LastAttempt: g.now().UTC(),
	})
}
