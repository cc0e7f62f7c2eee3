// Package dbexec provides database query execution abstractions: executors
// over a pool, a transaction or one pinned connection, named parameter binding
// per dialect, and instrumented opening of the supported drivers.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can run statements against
// a pool, a transaction or a pinned connection alike.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor executes queries directly against a database handle or a
// transaction.
type StandardExecutor struct {
	c conn
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	if db == nil {
		return &StandardExecutor{}
	}
	return &StandardExecutor{c: db}
}

// NewTxExecutor creates an executor that runs queries inside tx.
func NewTxExecutor(tx *sql.Tx) *StandardExecutor {
	if tx == nil {
		return &StandardExecutor{}
	}
	return &StandardExecutor{c: tx}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.c == nil {
		return nil, sql.ErrConnDone
	}
	return e.c.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.c == nil {
		return nil, sql.ErrConnDone
	}
	return e.c.ExecContext(ctx, query, args...)
}
