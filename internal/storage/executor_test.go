package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npsettle/portquery/internal/errors"
)

func newMockExecutor(t *testing.T, maxRows int, timeout time.Duration) (*Executor, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewExecutorWithDB(db, timeout, maxRows), mock
}

func TestExecute(t *testing.T) {
	e, mock := newMockExecutor(t, 1000, time.Second)

	mock.ExpectQuery("SELECT year, month").WillReturnRows(
		sqlmock.NewRows([]string{"year", "month", "total_amount"}).
			AddRow(2024, 1, 1500000.0).
			AddRow(2024, 2, 1725000.0))

	result, err := e.Execute(context.Background(),
		"SELECT year, month, SUM(settlement_amount) AS total_amount FROM settlement_history GROUP BY year, month")
	require.NoError(t, err)

	assert.Equal(t, []string{"year", "month", "total_amount"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, 3, result.ColumnCount)
	assert.False(t, result.Truncated)
	assert.Greater(t, result.Duration, time.Duration(0))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRowCap(t *testing.T) {
	e, mock := newMockExecutor(t, 2, time.Second)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"settlement_id"}).
			AddRow(1).AddRow(2).AddRow(3).AddRow(4))

	result, err := e.Execute(context.Background(), "SELECT settlement_id FROM settlement_history")
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestExecuteQueryError(t *testing.T) {
	e, mock := newMockExecutor(t, 1000, time.Second)

	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	_, err := e.Execute(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeExecution))
}

func TestExecuteTimeout(t *testing.T) {
	e, mock := newMockExecutor(t, 1000, 10*time.Millisecond)

	mock.ExpectQuery("SELECT").
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"x"}))

	_, err := e.Execute(context.Background(), "SELECT pg_sleep(1)")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTimeout))
}

func TestSeed(t *testing.T) {
	e, mock := newMockExecutor(t, 1000, time.Second)

	mock.ExpectBegin()

	for range seedDDL {
		mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	for i := 0; i < 4; i++ {
		mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	// deterministic row counts: 48 customers; 32 settlements per month over
	// 12 months with two fee lines each; 12 deposits per month
	totalInserts := seedCustomerCount + 384 + 768 + 144
	for i := 0; i < totalInserts; i++ {
		mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(1, 1))
	}

	mock.ExpectCommit()

	require.NoError(t, e.Seed(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedRollsBackOnFailure(t *testing.T) {
	e, mock := newMockExecutor(t, 1000, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := e.Seed(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseNilSafe(t *testing.T) {
	e := &Executor{}
	assert.NoError(t, e.Close())
}
