package dbexec

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

// drivers lists the registered database/sql drivers per dialect, default first.
var drivers = map[dialect.Dialect][]string{
	dialect.MySql:      {"mysql"},
	dialect.PostgreSql: {"postgres", "pgx"},
	dialect.SQLite:     {"sqlite"},
}

// DriverFor returns the driver used for d. An empty override selects the
// dialect's default driver.
func DriverFor(d dialect.Dialect, override string) (string, error) {
	names := drivers[d]
	if len(names) == 0 {
		return "", fmt.Errorf("%w: dialect %q has no bundled driver; statements can be generated but not executed",
			ormerr.ErrConfiguration, d)
	}
	if override == "" {
		return names[0], nil
	}
	if !slices.Contains(names, override) {
		return "", fmt.Errorf("%w: driver %q cannot serve dialect %s (available: %v)",
			ormerr.ErrConfiguration, override, d, names)
	}
	return override, nil
}

// IsPermanentConnectError reports whether err is a server answer that retrying
// cannot fix: rejected credentials or a missing database.
func IsPermanentConnectError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return permanentPostgresCode(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return permanentPostgresCode(string(pqErr.Code))
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1049: // access denied to database, access denied, unknown database
			return true
		}
	}
	return false
}

// permanentPostgresCode matches SQLSTATE class 28 (invalid authorization) and
// 3D000 (invalid catalog name).
func permanentPostgresCode(code string) bool {
	return len(code) == 5 && (code[:2] == "28" || code == "3D000")
}
