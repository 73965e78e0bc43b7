// Package storage runs accepted queries against a local DuckDB settlement
// database. Execution is read-only by convention: only queries that passed
// validation reach this layer, and the executor still bounds every run with
// a timeout and a row cap.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/npsettle/portquery/internal/config"
	"github.com/npsettle/portquery/internal/errors"
)

// Result holds the rows and execution metadata of a completed query
type Result struct {
	Columns     []string
	Rows        [][]any
	RowCount    int
	ColumnCount int
	Duration    time.Duration
	Truncated   bool // row cap reached before the result set ended
}

// Executor runs queries with a per-query timeout and row cap
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	maxRows int
}

// NewExecutor opens the DuckDB database file and configures the pool
func NewExecutor(cfg config.DatabaseConfig, queryTimeout time.Duration) (*Executor, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to create database directory")
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to connect to database")
	}

	return NewExecutorWithDB(db, queryTimeout, cfg.MaxResultRows), nil
}

// NewExecutorWithDB wraps an existing connection, used by tests
func NewExecutorWithDB(db *sql.DB, queryTimeout time.Duration, maxRows int) *Executor {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	return &Executor{db: db, timeout: queryTimeout, maxRows: maxRows}
}

// Execute runs the query and collects up to the configured row cap. Hitting
// the cap is not an error: the result is flagged truncated instead.
func (e *Executor) Execute(ctx context.Context, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(err, errors.ErrTypeTimeout,
				"query exceeded the %s execution timeout", e.timeout)
		}

		return nil, errors.Wrap(err, errors.ErrTypeExecution, "query execution failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to read result columns")
	}

	result := &Result{
		Columns:     columns,
		ColumnCount: len(columns),
	}

	for rows.Next() {
		if len(result.Rows) >= e.maxRows {
			result.Truncated = true

			break
		}

		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))

		for i := range values {
			scanTargets[i] = &values[i]
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to scan result row")
		}

		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(err, errors.ErrTypeTimeout,
				"query exceeded the %s execution timeout", e.timeout)
		}

		return nil, errors.Wrap(err, errors.ErrTypeExecution, "query execution failed")
	}

	result.RowCount = len(result.Rows)
	result.Duration = time.Since(start)

	return result, nil
}

// Close releases the database connection pool
func (e *Executor) Close() error {
	if e.db == nil {
		return nil
	}

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
