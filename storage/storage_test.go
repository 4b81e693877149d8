// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package storage_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/test"
	"github.com/element-hq/axon/types"
)

func mustCreateDatabase(t *testing.T, dbType test.DBType) (storage.Database, func()) {
	connStr, close := test.PrepareDBConnectionString(t, dbType)
	cm := sqlutil.NewConnectionManager(nil, config.DatabaseOptions{})
	db, err := storage.NewDatabase(cm, &config.DatabaseOptions{
		ConnectionString: config.DataSource(connStr),
	})
	if err != nil {
		t.Fatalf("NewDatabase returned %s", err)
	}
	return db, close
}

func newTestDraft(n int) *types.DraftRecord {
	return &types.DraftRecord{
		DraftID:      fmt.Sprintf("draft%d", n),
		Fullname:     fmt.Sprintf("t3_post%d", n),
		Subreddit:    "golang",
		Content:      "Have you tried pprof? It usually points straight at the allocation.",
		Permalink:    fmt.Sprintf("https://reddit.com/r/golang/comments/post%d/", n),
		Class:        types.ItemPost,
		QualityScore: 0.82,
	}
}

func TestDraftLifecycle(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		t.Run("create returns a one-time token", func(t *testing.T) {
			token, created, err := db.CreateDraft(ctx, newTestDraft(1))
			if err != nil {
				t.Fatalf("CreateDraft: %v", err)
			}
			if !created {
				t.Fatalf("expected draft to be created")
			}
			if len(token) < 40 {
				t.Fatalf("token too short: %q", token)
			}

			draft, err := db.GetDraftByToken(ctx, token, 48*time.Hour)
			if err != nil {
				t.Fatalf("GetDraftByToken: %v", err)
			}
			if draft == nil || draft.DraftID != "draft1" {
				t.Fatalf("expected draft1, got %+v", draft)
			}
			if draft.Status != types.DraftPending {
				t.Fatalf("expected pending status, got %s", draft.Status)
			}
		})

		t.Run("create is idempotent per fullname", func(t *testing.T) {
			dupe := newTestDraft(1)
			dupe.DraftID = "draft1-dupe"
			token, created, err := db.CreateDraft(ctx, dupe)
			if err != nil {
				t.Fatalf("CreateDraft: %v", err)
			}
			if created || token != "" {
				t.Fatalf("expected duplicate create to be a no-op, got created=%v token=%q", created, token)
			}
			if draft, _ := db.GetDraft(ctx, "draft1-dupe"); draft != nil {
				t.Fatalf("duplicate draft was written: %+v", draft)
			}
		})

		t.Run("bogus tokens do not resolve", func(t *testing.T) {
			for _, tok := range []string{"", "short", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
				draft, err := db.GetDraftByToken(ctx, tok, 48*time.Hour)
				if err != nil {
					t.Fatalf("GetDraftByToken(%q): %v", tok, err)
				}
				if draft != nil {
					t.Fatalf("token %q unexpectedly resolved to %+v", tok, draft)
				}
			}
		})

		t.Run("expired tokens do not resolve", func(t *testing.T) {
			token, created, err := db.CreateDraft(ctx, newTestDraft(2))
			if err != nil || !created {
				t.Fatalf("CreateDraft: created=%v err=%v", created, err)
			}
			draft, err := db.GetDraftByToken(ctx, token, 0)
			if err != nil {
				t.Fatalf("GetDraftByToken: %v", err)
			}
			if draft != nil {
				t.Fatalf("expected expired token to be rejected, got %+v", draft)
			}
		})

		t.Run("approval consumes the token", func(t *testing.T) {
			token, created, err := db.CreateDraft(ctx, newTestDraft(3))
			if err != nil || !created {
				t.Fatalf("CreateDraft: created=%v err=%v", created, err)
			}
			ok, err := db.UpdateDraftStatus(ctx, "draft3", types.DraftApproved, time.Now())
			if err != nil {
				t.Fatalf("UpdateDraftStatus: %v", err)
			}
			if !ok {
				t.Fatalf("expected approval to succeed")
			}
			draft, err := db.GetDraft(ctx, "draft3")
			if err != nil {
				t.Fatalf("GetDraft: %v", err)
			}
			if draft.Status != types.DraftApproved {
				t.Fatalf("expected approved, got %s", draft.Status)
			}
			if draft.ApprovedAt == nil {
				t.Fatalf("expected approved timestamp to be set")
			}
			// The token must now be dead, even within its lifetime.
			if got, _ := db.GetDraftByToken(ctx, token, 48*time.Hour); got != nil {
				t.Fatalf("consumed token still resolves: %+v", got)
			}
		})

		t.Run("illegal transitions are refused", func(t *testing.T) {
			ok, err := db.UpdateDraftStatus(ctx, "draft3", types.DraftRejected, time.Now())
			if err != nil {
				t.Fatalf("UpdateDraftStatus: %v", err)
			}
			if ok {
				t.Fatalf("approved draft was rejected")
			}
			ok, err = db.UpdateDraftStatus(ctx, "no-such-draft", types.DraftApproved, time.Now())
			if err != nil {
				t.Fatalf("UpdateDraftStatus: %v", err)
			}
			if ok {
				t.Fatalf("missing draft reported as updated")
			}
		})

		t.Run("publishing records the posted fullname", func(t *testing.T) {
			ok, err := db.SetDraftPublished(ctx, "draft3", "t1_reply3", time.Now())
			if err != nil {
				t.Fatalf("SetDraftPublished: %v", err)
			}
			if !ok {
				t.Fatalf("expected publish to succeed")
			}
			draft, err := db.GetDraft(ctx, "draft3")
			if err != nil {
				t.Fatalf("GetDraft: %v", err)
			}
			if draft.Status != types.DraftPublished || draft.PostedFullname != "t1_reply3" {
				t.Fatalf("unexpected draft after publish: %+v", draft)
			}
			if draft.PublishedAt == nil {
				t.Fatalf("expected published timestamp to be set")
			}
			// Pending drafts can't jump straight to published.
			if ok, _ := db.SetDraftPublished(ctx, "draft1", "t1_nope", time.Now()); ok {
				t.Fatalf("pending draft was published")
			}
		})

		t.Run("status listings", func(t *testing.T) {
			pending, err := db.PendingDrafts(ctx, 10)
			if err != nil {
				t.Fatalf("PendingDrafts: %v", err)
			}
			if len(pending) != 2 {
				t.Fatalf("expected 2 pending drafts, got %d", len(pending))
			}
			approved, err := db.ApprovedDrafts(ctx, 10)
			if err != nil {
				t.Fatalf("ApprovedDrafts: %v", err)
			}
			if len(approved) != 0 {
				t.Fatalf("expected no approved drafts, got %d", len(approved))
			}
		})
	})
}

func TestEngagementTracking(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		if _, created, err := db.CreateDraft(ctx, newTestDraft(1)); err != nil || !created {
			t.Fatalf("CreateDraft: created=%v err=%v", created, err)
		}
		if ok, err := db.UpdateDraftStatus(ctx, "draft1", types.DraftApproved, time.Now()); err != nil || !ok {
			t.Fatalf("UpdateDraftStatus: ok=%v err=%v", ok, err)
		}
		publishedAt := time.Now().Add(-25 * time.Hour)
		if ok, err := db.SetDraftPublished(ctx, "draft1", "t1_c1", publishedAt); err != nil || !ok {
			t.Fatalf("SetDraftPublished: ok=%v err=%v", ok, err)
		}

		t.Run("published drafts become due after the delay", func(t *testing.T) {
			due, err := db.DraftsDueEngagementCheck(ctx, time.Now().Add(-24*time.Hour), 10)
			if err != nil {
				t.Fatalf("DraftsDueEngagementCheck: %v", err)
			}
			if len(due) != 1 || due[0].DraftID != "draft1" {
				t.Fatalf("expected draft1 due, got %+v", due)
			}
			// Nothing is due before the delay has elapsed.
			early, err := db.DraftsDueEngagementCheck(ctx, time.Now().Add(-48*time.Hour), 10)
			if err != nil {
				t.Fatalf("DraftsDueEngagementCheck: %v", err)
			}
			if len(early) != 0 {
				t.Fatalf("expected nothing due, got %+v", early)
			}
		})

		t.Run("engagement score is derived from votes and replies", func(t *testing.T) {
			score, err := db.RecordEngagement(ctx, "draft1", 10, 3)
			if err != nil {
				t.Fatalf("RecordEngagement: %v", err)
			}
			want := math.Log(11) + 6
			if math.Abs(score-want) > 1e-9 {
				t.Fatalf("expected score %f, got %f", want, score)
			}
			history, err := db.History(ctx, "golang", types.ItemPost, 10)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(history) != 1 {
				t.Fatalf("expected 1 history row, got %d", len(history))
			}
			row := history[0]
			if row.Outcome != types.DraftPublished {
				t.Fatalf("expected published outcome, got %s", row.Outcome)
			}
			if row.Upvotes == nil || *row.Upvotes != 10 || row.Replies == nil || *row.Replies != 3 {
				t.Fatalf("unexpected engagement counts: %+v", row)
			}
			if row.EngagementScore == nil || math.Abs(*row.EngagementScore-want) > 1e-9 {
				t.Fatalf("unexpected engagement score: %+v", row.EngagementScore)
			}
		})

		t.Run("negative scores are clamped before the logarithm", func(t *testing.T) {
			score, err := db.RecordEngagement(ctx, "draft1", -4, 1)
			if err != nil {
				t.Fatalf("RecordEngagement: %v", err)
			}
			if math.Abs(score-2) > 1e-9 {
				t.Fatalf("expected clamped score 2, got %f", score)
			}
		})

		t.Run("checked drafts are not revisited", func(t *testing.T) {
			if err := db.MarkEngagementChecked(ctx, "t1_c1"); err != nil {
				t.Fatalf("MarkEngagementChecked: %v", err)
			}
			due, err := db.DraftsDueEngagementCheck(ctx, time.Now(), 10)
			if err != nil {
				t.Fatalf("DraftsDueEngagementCheck: %v", err)
			}
			if len(due) != 0 {
				t.Fatalf("expected no drafts due after check, got %+v", due)
			}
		})
	})
}

func TestReplayRecords(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		record, err := db.GetReplayRecord(ctx, "t3_fresh")
		if err != nil {
			t.Fatalf("GetReplayRecord: %v", err)
		}
		if record != nil {
			t.Fatalf("expected no record, got %+v", record)
		}

		if err := db.MarkReplied(ctx, &types.ReplayRecord{
			Fullname:  "t3_fresh",
			Subreddit: "golang",
			Status:    types.AttemptFailed,
			Class:     types.ItemPost,
			Priority:  types.PriorityHigh,
		}); err != nil {
			t.Fatalf("MarkReplied: %v", err)
		}
		record, err = db.GetReplayRecord(ctx, "t3_fresh")
		if err != nil {
			t.Fatalf("GetReplayRecord: %v", err)
		}
		if record == nil || record.Status != types.AttemptFailed || record.Priority != types.PriorityHigh {
			t.Fatalf("unexpected record: %+v", record)
		}
		if record.LastAttempt.IsZero() {
			t.Fatalf("expected last attempt timestamp to be set")
		}

		// A later successful attempt overwrites the failure.
		if err := db.MarkReplied(ctx, &types.ReplayRecord{
			Fullname:  "t3_fresh",
			Subreddit: "golang",
			Status:    types.AttemptSuccess,
			Class:     types.ItemPost,
			Priority:  types.PriorityHigh,
		}); err != nil {
			t.Fatalf("MarkReplied: %v", err)
		}
		record, err = db.GetReplayRecord(ctx, "t3_fresh")
		if err != nil {
			t.Fatalf("GetReplayRecord: %v", err)
		}
		if record == nil || record.Status != types.AttemptSuccess {
			t.Fatalf("expected success status, got %+v", record)
		}
	})
}

func TestDailyPublishCounter(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		count, err := db.PublishedCountOn(ctx, "2025-11-14")
		if err != nil {
			t.Fatalf("PublishedCountOn: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected zero count, got %d", count)
		}
		for i := 0; i < 3; i++ {
			if err := db.IncrementPublishedCount(ctx, "2025-11-14"); err != nil {
				t.Fatalf("IncrementPublishedCount: %v", err)
			}
		}
		count, err = db.PublishedCountOn(ctx, "2025-11-14")
		if err != nil {
			t.Fatalf("PublishedCountOn: %v", err)
		}
		if count != 3 {
			t.Fatalf("expected count 3, got %d", count)
		}
		// Other days are unaffected.
		count, err = db.PublishedCountOn(ctx, "2025-11-15")
		if err != nil {
			t.Fatalf("PublishedCountOn: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected zero count for other day, got %d", count)
		}
	})
}

func TestPerformanceHistory(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			outcome := types.DraftPublished
			if i%2 == 1 {
				outcome = types.DraftRejected
			}
			if err := db.RecordOutcome(ctx, &types.PerformanceRecord{
				DraftID:      fmt.Sprintf("hist%d", i),
				Subreddit:    "golang",
				Class:        types.ItemPost,
				QualityScore: 0.7,
				Outcome:      outcome,
				CreatedAt:    time.Now().Add(time.Duration(-i) * time.Hour),
			}); err != nil {
				t.Fatalf("RecordOutcome: %v", err)
			}
		}
		if err := db.RecordOutcome(ctx, &types.PerformanceRecord{
			DraftID:      "other-sub",
			Subreddit:    "rust",
			Class:        types.ItemPost,
			QualityScore: 0.7,
			Outcome:      types.DraftPublished,
			CreatedAt:    time.Now(),
		}); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}

		history, err := db.History(ctx, "golang", types.ItemPost, 10)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 4 {
			t.Fatalf("expected 4 rows, got %d", len(history))
		}
		// Newest first.
		if history[0].DraftID != "hist0" {
			t.Fatalf("expected hist0 first, got %s", history[0].DraftID)
		}
		limited, err := db.History(ctx, "golang", types.ItemPost, 2)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(limited) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(limited))
		}
		comments, err := db.History(ctx, "golang", types.ItemComment, 10)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(comments) != 0 {
			t.Fatalf("expected no comment rows, got %d", len(comments))
		}
	})
}

func TestErrorLog(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		old := time.Now().Add(-30 * 24 * time.Hour)
		if err := db.LogRunError(ctx, &types.ErrorLogEntry{
			RunID:     "run1",
			Stage:     "fetch",
			Fullname:  "",
			Message:   "listing request returned 403",
			CreatedAt: old,
		}); err != nil {
			t.Fatalf("LogRunError: %v", err)
		}
		if err := db.LogRunError(ctx, &types.ErrorLogEntry{
			RunID:    "run1",
			Stage:    "generate",
			Fullname: "t3_abc",
			Message:  "completion rejected by content filter",
		}); err != nil {
			t.Fatalf("LogRunError: %v", err)
		}

		entries, err := db.RunErrors(ctx, "run1", 10)
		if err != nil {
			t.Fatalf("RunErrors: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Stage != "fetch" || entries[1].Stage != "generate" {
			t.Fatalf("unexpected ordering: %+v", entries)
		}

		removed, err := db.PurgeErrorLog(ctx, time.Now().Add(-7*24*time.Hour))
		if err != nil {
			t.Fatalf("PurgeErrorLog: %v", err)
		}
		if removed != 1 {
			t.Fatalf("expected 1 purged row, got %d", removed)
		}
		entries, err = db.RunErrors(ctx, "run1", 10)
		if err != nil {
			t.Fatalf("RunErrors: %v", err)
		}
		if len(entries) != 1 || entries[0].Stage != "generate" {
			t.Fatalf("expected only the recent entry, got %+v", entries)
		}
	})
}
