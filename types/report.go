// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import "time"

// RunError is one item-scoped failure that was isolated rather than
// aborting the run. Stage names the pipeline phase that failed.
type RunError struct {
	Stage    string
	Fullname string
	Message  string
}

// RunReport summarises a single discovery run. The process exit code of
// `axon run` is zero exactly when Errors is empty.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	PostsFound    int
	CommentsFound int
	Admitted      int
	Dispatched    int

	Errors []RunError
}

// AddError appends an item-scoped failure to the report.
func (r *RunReport) AddError(stage, fullname string, err error) {
	r.Errors = append(r.Errors, RunError{
		Stage:    stage,
		Fullname: fullname,
		Message:  err.Error(),
	})
}

// ErrorCount returns the number of isolated failures in the run.
func (r *RunReport) ErrorCount() int {
	return len(r.Errors)
}
