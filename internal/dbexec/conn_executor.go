package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// ConnExecutor runs every statement on one dedicated connection. Drivers keep
// LAST_INSERT_ID(), last_insert_rowid() and temporary tables per connection,
// so statements reading them must run where the write ran.
type ConnExecutor struct {
	conn *sql.Conn

	mu     sync.Mutex
	closed bool
}

// ConnExecutorConfig controls how the pinned connection is prepared.
type ConnExecutorConfig struct {
	DB *sql.DB
	// Init statements run once after the connection is acquired, for example
	// "SET search_path TO app" or "USE inventory".
	Init []string
}

// NewConnExecutor acquires a connection from cfg.DB and runs the init
// statements on it. Close returns the connection to the pool.
func NewConnExecutor(ctx context.Context, cfg ConnExecutorConfig) (*ConnExecutor, error) {
	if cfg.DB == nil {
		return nil, sql.ErrConnDone
	}
	conn, err := cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	for _, stmt := range cfg.Init {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run connection init statement %q: %w", stmt, err)
		}
	}
	return &ConnExecutor{conn: conn}, nil
}

func (e *ConnExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.isClosed() {
		return nil, sql.ErrConnDone
	}
	return e.conn.QueryContext(ctx, query, args...)
}

func (e *ConnExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.isClosed() {
		return nil, sql.ErrConnDone
	}
	return e.conn.ExecContext(ctx, query, args...)
}

// Close releases the connection. It is safe to call more than once.
func (e *ConnExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.conn.Close()
}

func (e *ConnExecutor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
