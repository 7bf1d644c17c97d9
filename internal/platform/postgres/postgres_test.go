package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapErrorClassifies(t *testing.T) {
	notFound := WrapError("bookings.get", sql.ErrNoRows).(*Error)
	assert.True(t, notFound.IsNotFound())

	conflict := WrapError("bookings.insert", &pq.Error{Code: "23505"}).(*Error)
	assert.True(t, conflict.IsConflict())

	locked := WrapError("bookings.lock", &pq.Error{Code: "55P03"}).(*Error)
	assert.True(t, locked.IsConflict())

	down := WrapError("ping", &pq.Error{Code: "08006"}).(*Error)
	assert.True(t, down.IsUnavailable())

	assert.ErrorIs(t, WrapError("x", context.Canceled), context.Canceled)
	assert.Nil(t, WrapError("x", nil))
}

func TestInTxCommitsAndRollsBack(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = InTx(context.Background(), db, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE bookings SET status = $1", "cancelled")
		return err
	})
	require.NoError(t, err)

	sentinel := errors.New("booking cancelled")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = InTx(context.Background(), db, func(context.Context, *sqlx.Tx) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationSourceListsVersions(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	body, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "init", identifier)
}

func TestRollbackRejectsNonPositiveSteps(t *testing.T) {
	assert.Error(t, Rollback(nil, 0))
}
