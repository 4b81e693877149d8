// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package types holds the data model shared between the pipeline, the
// storage layer and the callback API.
package types

import (
	"strings"
	"time"
)

// ItemClass says whether a candidate is a top-level post or a comment.
type ItemClass string

const (
	ItemPost    ItemClass = "post"
	ItemComment ItemClass = "comment"
)

// Priority tiers candidates by how they were found. Items addressed
// directly to the operator (inbox replies, username mentions) outrank
// discovered content throughout the pipeline, and failed attempts on
// them retry on a shorter cooldown.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Candidate is one discovered item the agent might reply to. Candidates
// are produced fresh each run and never persisted; the durable trace of
// an attempt lives in ReplayRecord and DraftRecord.
type Candidate struct {
	// Fullname is Reddit's globally unique item id: "t3_..." for posts,
	// "t1_..." for comments. It is the identity every durable record
	// keys off.
	Fullname string

	// Class discriminates the union. Title and UpvoteRatio are only
	// meaningful for posts; ParentFullname and ParentTitle only for
	// comments.
	Class ItemClass

	Subreddit string
	Author    string
	Title     string
	Body      string
	Permalink string

	ParentFullname string
	ParentTitle    string

	Score       int64
	UpvoteRatio float64
	AuthorKarma int64

	// CommentCount is the size of the thread the candidate lives in: the
	// post's own comment count, or for comments the parent thread's. Zero
	// with a zero ParentCreatedAt means the thread stats could not be
	// fetched.
	CommentCount int64

	// CreatedAt is when the item itself was created. ParentCreatedAt is
	// when the parent thread was; comments only.
	CreatedAt       time.Time
	ParentCreatedAt time.Time

	Priority Priority

	// QualityScore is assigned exactly once, by the scorer, before
	// selection. Zero means not yet scored.
	QualityScore float64
}

// ThreadFullname returns the fullname of the thread this candidate lives
// in: the post itself for post candidates, the parent post for comments.
// The diversity cap counts selections per thread using this.
func (c *Candidate) ThreadFullname() string {
	if c.Class == ItemComment && c.ParentFullname != "" {
		return c.ParentFullname
	}
	return c.Fullname
}

// IsComment is a convenience for the common branch.
func (c *Candidate) IsComment() bool {
	return c.Class == ItemComment
}

// TitleText returns the title of the thread the candidate lives in.
// Comments have no title of their own, so their parent post's stands in.
func (c *Candidate) TitleText() string {
	if c.Class == ItemComment {
		return c.ParentTitle
	}
	return c.Title
}

// ThreadCreatedAt returns when the candidate's thread was created: the
// item itself for posts, the parent post for comments. Falls back to the
// comment's own time when the parent's is unknown.
func (c *Candidate) ThreadCreatedAt() time.Time {
	if c.Class == ItemComment && !c.ParentCreatedAt.IsZero() {
		return c.ParentCreatedAt
	}
	return c.CreatedAt
}

// ContextText joins the thread title and body for keyword matching.
func (c *Candidate) ContextText() string {
	return strings.ToLower(strings.TrimSpace(c.TitleText() + " " + c.Body))
}

// ThreadMessage is one message in the conversation above a comment
// candidate. Chains are ordered oldest first.
type ThreadMessage struct {
	Author string
	Body   string
}

// ReplayRecord is the durable ledger entry for one attempted item. It is
// created on first attempt and updated in place afterwards; the pipeline
// consults it before ever re-fetching an item.
type ReplayRecord struct {
	Fullname  string
	Subreddit string
	Status    AttemptStatus
	Class     ItemClass
	// Priority is captured at attempt time so the retry cooldown can be
	// tiered without re-deriving how the item was found.
	Priority    Priority
	LastAttempt time.Time
}

// DraftRecord is the unit of human-gated approval.
type DraftRecord struct {
	DraftID      string
	Fullname     string
	Subreddit    string
	Content      string
	Permalink    string
	Status       DraftStatus
	Class        ItemClass
	QualityScore float64

	// TokenHash and TokenLookupKey exist only while the draft is pending;
	// both are cleared the moment the draft is approved or rejected so a
	// token can never be redeemed twice.
	TokenHash      string
	TokenLookupKey string
	TokenCreatedAt time.Time

	CreatedAt   time.Time
	ApprovedAt  *time.Time
	PublishedAt *time.Time

	// PostedFullname is the fullname of the reply we posted, set when the
	// draft transitions to published.
	PostedFullname string

	// EngagementChecked flips once the post-publication metrics sweep has
	// looked at this draft, whether or not metrics could be read.
	EngagementChecked bool
}

// PerformanceRecord tracks how one draft fared, feeding the historical
// score. One row per draft, created alongside it.
type PerformanceRecord struct {
	DraftID      string
	Subreddit    string
	Class        ItemClass
	QualityScore float64
	Outcome      DraftStatus

	// Engagement fields stay nil until the post-publication check runs.
	Upvotes         *int64
	Replies         *int64
	EngagementScore *float64

	CreatedAt time.Time
	OutcomeAt *time.Time
}

// ErrorLogEntry is an append-only diagnostic row written when a run hits
// an item-local failure.
type ErrorLogEntry struct {
	RunID     string
	Stage     string
	Fullname  string
	Message   string
	CreatedAt time.Time
}

// DayKey buckets a time into the UTC calendar day used by the daily
// publish counter.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RuleStatus is the verdict of a subreddit rule compliance check.
type RuleStatus string

const (
	RuleAllowed    RuleStatus = "ALLOWED"
	RuleRestricted RuleStatus = "RESTRICTED"
)

// RuleVerdict records whether a subreddit's posted rules permit
// automated participation. FetchedAt lets callers apply their own
// staleness window on top of the cache's hard expiry.
type RuleVerdict struct {
	Subreddit string
	Status    RuleStatus
	Reason    string
	FetchedAt time.Time
}

// Restricted is true when the verdict forbids participation.
func (v RuleVerdict) Restricted() bool {
	return v.Status == RuleRestricted
}
