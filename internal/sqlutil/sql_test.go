// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %s", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTransaction(db, func(txn *sql.Tx) error {
		_, execErr := txn.Exec("UPDATE t SET x = 1")
		return execErr
	})
	if err != nil {
		t.Fatalf("WithTransaction returned %s", err)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %s", err)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %s", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("boom")
	err = WithTransaction(db, func(txn *sql.Tx) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTransaction returned %v, want %v", err, wantErr)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %s", err)
	}
}

func TestQueryVariadic(t *testing.T) {
	tests := []struct {
		count  int
		offset int
		want   string
	}{
		{count: 1, offset: 0, want: "($1)"},
		{count: 3, offset: 0, want: "($1, $2, $3)"},
		{count: 2, offset: 2, want: "($3, $4)"},
	}
	for _, tc := range tests {
		got := QueryVariadicOffset(tc.count, tc.offset)
		if got != tc.want {
			t.Errorf("QueryVariadicOffset(%d, %d) = %q, want %q", tc.count, tc.offset, got, tc.want)
		}
	}
}

func TestStatementListPrepare(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %s", err)
	}
	defer db.Close()

	mock.ExpectPrepare("SELECT 1")
	mock.ExpectPrepare("SELECT 2")

	var one, two *sql.Stmt
	err = StatementList{
		{&one, "SELECT 1"},
		{&two, "SELECT 2"},
	}.Prepare(db)
	if err != nil {
		t.Fatalf("StatementList.Prepare returned %s", err)
	}
	if one == nil || two == nil {
		t.Fatalf("prepared statements not assigned")
	}
}
