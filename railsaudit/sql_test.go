package railsaudit_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/railsaudit"
)

func TestSQLLogDeletesThenInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM rails_cron_dispatches WHERE key").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO rails_cron_dispatches").
		WillReturnResult(sqlmock.NewResult(1, 1))

	reg := railsaudit.NewSQLPostgres(db)
	err = reg.Log(context.Background(), "job", time.Unix(1735689600, 0), "node-1", railsaudit.StatusDispatched)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLFindReturnsRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	firing := time.Unix(1735689600, 0)
	dispatchedAt := time.Now()

	rows := sqlmock.NewRows([]string{"key", "fire_time", "dispatched_at", "node_id", "status"}).
		AddRow("job", firing, dispatchedAt, "node-1", "dispatched")
	mock.ExpectQuery("SELECT key, fire_time, dispatched_at, node_id, status FROM rails_cron_dispatches WHERE key").
		WillReturnRows(rows)

	reg := railsaudit.NewSQLPostgres(db)
	rec, ok, err := reg.Find(context.Background(), "job", firing)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, railsaudit.StatusDispatched, rec.Status)
}

func TestSQLMySQLQuotesReservedKeyColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM rails_cron_dispatches WHERE `key`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO rails_cron_dispatches \\(`key`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	reg := railsaudit.NewSQLMySQL(db)
	err = reg.Log(context.Background(), "job", time.Unix(1735689600, 0), "node-1", railsaudit.StatusDispatched)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCleanupDeletesOldRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM rails_cron_dispatches WHERE fire_time").
		WillReturnResult(sqlmock.NewResult(0, 3))

	reg := railsaudit.NewSQLPostgres(db)
	removed, err := reg.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(3), removed)
}
