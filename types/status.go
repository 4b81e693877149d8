// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

// AttemptStatus records how the most recent attempt on an item ended.
type AttemptStatus string

const (
	// AttemptSuccess means a reply was published. The item is never
	// touched again.
	AttemptSuccess AttemptStatus = "SUCCESS"
	// AttemptSkipped means the item was deliberately passed over,
	// typically because a subreddit turned out to be restricted. Also
	// permanent.
	AttemptSkipped AttemptStatus = "SKIPPED"
	// AttemptFailed means the attempt errored. The item becomes
	// retryable again once its cooldown lapses.
	AttemptFailed AttemptStatus = "FAILED"
)

// DraftStatus is the lifecycle state of a queued draft.
type DraftStatus string

const (
	DraftPending   DraftStatus = "PENDING"
	DraftApproved  DraftStatus = "APPROVED"
	DraftRejected  DraftStatus = "REJECTED"
	DraftPublished DraftStatus = "PUBLISHED"
)

// draftTransitions is the complete set of legal status moves. REJECTED
// and PUBLISHED have no successors.
var draftTransitions = map[DraftStatus][]DraftStatus{
	DraftPending:  {DraftApproved, DraftRejected},
	DraftApproved: {DraftPublished},
}

// CanTransition reports whether a draft may move from this status to the
// given one. A status never transitions to itself.
func (s DraftStatus) CanTransition(to DraftStatus) bool {
	for _, next := range draftTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s DraftStatus) Terminal() bool {
	return len(draftTransitions[s]) == 0
}
