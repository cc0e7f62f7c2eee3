package dbexec

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"entitysql/internal/dialect"
	"entitysql/internal/logging"
	"entitysql/internal/ormerr"
)

// OpenConfig selects the driver and instrumentation of a database handle.
type OpenConfig struct {
	Dialect dialect.Dialect
	// Driver overrides the dialect's default database/sql driver; see DriverFor.
	Driver string
	DSN    string

	Tracing      bool
	Metrics      bool
	SQLCommenter bool
}

// Database is an opened handle plus the instrumentation registered for it.
type Database struct {
	*sql.DB
	Dialect dialect.Dialect

	stats interface{ Unregister() error }
}

// Close unregisters connection pool metrics and closes the handle.
func (d *Database) Close() error {
	if d.stats != nil {
		_ = d.stats.Unregister()
	}
	return d.DB.Close()
}

// Open opens cfg.DSN with the dialect's driver. When tracing or metrics are
// enabled the driver is wrapped with otelsql.
func Open(cfg OpenConfig, logger *logging.Logger) (*Database, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	driver, err := DriverFor(cfg.Dialect, cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: empty data source name", ormerr.ErrConfiguration)
	}

	if !cfg.Tracing && !cfg.Metrics {
		db, err := sql.Open(driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Database{DB: db, Dialect: cfg.Dialect}, nil
	}

	system := dbSystem(cfg.Dialect)
	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if cfg.Tracing {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}
	if cfg.SQLCommenter && cfg.Tracing {
		opts = append(opts, otelsql.WithSQLCommenter(true))
	} else if cfg.SQLCommenter {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open(driver, cfg.DSN, opts...)
	if err != nil {
		return nil, err
	}
	out := &Database{DB: db, Dialect: cfg.Dialect}
	if cfg.Metrics {
		reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		} else {
			out.stats = reg
		}
	}

	logger.Info("database instrumentation enabled",
		slog.String("dialect", cfg.Dialect.String()),
		slog.Bool("metrics", cfg.Metrics),
		slog.Bool("tracing", cfg.Tracing),
		slog.Bool("sqlcommenter", cfg.SQLCommenter && cfg.Tracing),
	)
	return out, nil
}

func dbSystem(d dialect.Dialect) attribute.KeyValue {
	switch d {
	case dialect.PostgreSql:
		return semconv.DBSystemPostgreSQL
	case dialect.SQLite:
		return semconv.DBSystemSqlite
	}
	return semconv.DBSystemMySQL
}
