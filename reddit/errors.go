// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"errors"
	"fmt"
)

// ErrRiskLockout is returned once the blended forbidden/empty response
// ratio crosses the configured threshold. It aborts the whole run: at
// that point the account is likely throttled or shadowbanned and every
// further request makes it worse.
var ErrRiskLockout = errors.New("risk threshold exceeded, refusing further requests")

// ErrRequestBudget is returned when the per-run upstream call budget is
// spent. Unlike the risk lockout it is item-local: the current item
// fails but may be retried on a later run.
var ErrRequestBudget = errors.New("per-run request budget exhausted")

// APIError wraps a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit API %s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// IsFatal reports whether an error must abort the whole run rather than
// just the current item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRiskLockout)
}
