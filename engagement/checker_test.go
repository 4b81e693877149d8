// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package engagement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/reddit"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/storage"
	"github.com/element-hq/axon/test"
	"github.com/element-hq/axon/types"
)

type fakeMetricsSource struct {
	metrics map[string]*reddit.CommentMetrics
	errFor  map[string]error
	fetched []string
}

func (f *fakeMetricsSource) FetchCommentMetrics(ctx context.Context, fullname string) (*reddit.CommentMetrics, error) {
	f.fetched = append(f.fetched, fullname)
	if err, ok := f.errFor[fullname]; ok {
		return nil, err
	}
	if m, ok := f.metrics[fullname]; ok {
		return m, nil
	}
	return &reddit.CommentMetrics{Deleted: true}, nil
}

func mustCreateDatabase(t *testing.T, dbType test.DBType) (storage.Database, func()) {
	t.Helper()
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

// publishDraft walks a fresh draft all the way to published at the
// given time and returns its posted fullname.
func publishDraft(t *testing.T, db storage.Database, n int, at time.Time) string {
	t.Helper()
	ctx := context.Background()
	draftID := fmt.Sprintf("draft%d", n)
	_, created, err := db.CreateDraft(ctx, &types.DraftRecord{
		DraftID:   draftID,
		Fullname:  fmt.Sprintf("t3_post%d", n),
		Subreddit: "golang",
		Content:   "Try bisecting the config, half the time it is a typo in there.",
		Class:     types.ItemPost,
	})
	require.NoError(t, err)
	require.True(t, created)
	ok, err := db.UpdateDraftStatus(ctx, draftID, types.DraftApproved, at)
	require.NoError(t, err)
	require.True(t, ok)
	posted := fmt.Sprintf("t1_reply%d", n)
	ok, err = db.SetDraftPublished(ctx, draftID, posted, at)
	require.NoError(t, err)
	require.True(t, ok)
	return posted
}

func newTestChecker(t *testing.T, db storage.Database, source *fakeMetricsSource) *Checker {
	t.Helper()
	var cfg config.Axon
	cfg.Defaults(config.DefaultOpts{})
	return NewChecker(&cfg.Scoring, db, source)
}

func TestCheckOnceRecordsEngagement(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		publishedAt := time.Now().Add(-48 * time.Hour)
		posted := publishDraft(t, db, 1, publishedAt)

		source := &fakeMetricsSource{
			metrics: map[string]*reddit.CommentMetrics{
				posted: {Upvotes: 9, Replies: 2},
			},
		}
		checker := newTestChecker(t, db, source)

		report, err := checker.CheckOnce(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Checked)
		assert.Empty(t, report.Errors)

		draft, err := db.GetDraft(ctx, "draft1")
		require.NoError(t, err)
		assert.True(t, draft.EngagementChecked)

		history, err := db.History(ctx, "golang", types.ItemPost, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.NotNil(t, history[0].Upvotes)
		assert.EqualValues(t, 9, *history[0].Upvotes)
		require.NotNil(t, history[0].Replies)
		assert.EqualValues(t, 2, *history[0].Replies)

		// A second sweep finds nothing left to do.
		source.fetched = nil
		report, err = checker.CheckOnce(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Checked)
		assert.Empty(t, source.fetched)
	})
}

func TestCheckOnceHonoursObservationDelay(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()

		// Published an hour ago: not yet due under the 24h delay.
		publishDraft(t, db, 1, time.Now().Add(-time.Hour))

		source := &fakeMetricsSource{}
		checker := newTestChecker(t, db, source)

		report, err := checker.CheckOnce(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Checked)
		assert.Empty(t, source.fetched)
	})
}

func TestCheckOnceFlagsDeletedComments(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		publishDraft(t, db, 1, time.Now().Add(-48*time.Hour))

		// The fake reports every comment as deleted by default.
		source := &fakeMetricsSource{}
		checker := newTestChecker(t, db, source)

		report, err := checker.CheckOnce(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Checked)
		assert.Equal(t, 1, report.Deleted)

		draft, err := db.GetDraft(ctx, "draft1")
		require.NoError(t, err)
		assert.True(t, draft.EngagementChecked, "deleted comments are flagged so the sweep moves on")
	})
}

func TestCheckOnceLeavesFailedFetchesForNextSweep(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		ctx := context.Background()

		posted := publishDraft(t, db, 1, time.Now().Add(-48*time.Hour))

		source := &fakeMetricsSource{
			errFor: map[string]error{posted: errors.New("reddit API /api/info returned HTTP 500")},
		}
		checker := newTestChecker(t, db, source)

		report, err := checker.CheckOnce(ctx, 10)
		require.NoError(t, err)
		require.Len(t, report.Errors, 1)

		draft, err := db.GetDraft(ctx, "draft1")
		require.NoError(t, err)
		assert.False(t, draft.EngagementChecked, "a transient fetch error must leave the draft due")
	})
}
