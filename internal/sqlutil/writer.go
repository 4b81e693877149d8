// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlutil

import "database/sql"

// The Writer interface is designed to allow implementations that meet
// the requirements of the database engine in use. Databases like SQLite
// only tolerate a single writer at a time, so in that case an exclusive
// writer serializes all mutations onto one goroutine. PostgreSQL can
// handle concurrent writes, so there a pass-through writer suffices.
//
// Creating transactions in the database layer directly, rather than
// through the Writer, risks deadlocks on engines with exclusive write
// locking. Use the Writer for everything that mutates.
type Writer interface {
	// Do queues a function up for execution within the writer. If the
	// supplied transaction is nil and the database is not nil, a new
	// transaction is opened for the duration of the function and committed
	// or rolled back depending on the returned error. If both are nil the
	// function runs outside of any transaction.
	Do(db *sql.DB, txn *sql.Tx, f func(txn *sql.Tx) error) error
}
