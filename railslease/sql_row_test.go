package railslease_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/railslease"
)

func TestSQLRowAcquireInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO rails_cron_locks").
		WithArgs("ns:dispatch:job:1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	backend := railslease.NewSQLRow(db, railslease.PostgresDialect)
	granted, err := backend.Acquire(context.Background(), "ns:dispatch:job:1", time.Minute)
	require.NoError(t, err)
	require.True(t, granted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRowAcquirePrunesAndRetriesOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO rails_cron_locks").
		WillReturnError(&pqLikeError{"duplicate key value violates unique constraint"})
	mock.ExpectExec("DELETE FROM rails_cron_locks WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO rails_cron_locks").
		WillReturnResult(sqlmock.NewResult(2, 1))

	backend := railslease.NewSQLRow(db, railslease.PostgresDialect)
	granted, err := backend.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.True(t, granted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRowRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM rails_cron_locks WHERE key").
		WillReturnResult(sqlmock.NewResult(0, 1))

	backend := railslease.NewSQLRow(db, railslease.PostgresDialect)
	released, err := backend.Release(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, released)
}

func TestSQLRowMySQLQuotesReservedKeyColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO rails_cron_locks \\(`key`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	backend := railslease.NewSQLRow(db, railslease.MySQLDialect)
	granted, err := backend.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.True(t, granted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRowMySQLReleaseQuotesReservedKeyColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM rails_cron_locks WHERE `key`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	backend := railslease.NewSQLRow(db, railslease.MySQLDialect)
	released, err := backend.Release(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, released)
}

type pqLikeError struct{ msg string }

func (e *pqLikeError) Error() string { return e.msg }
