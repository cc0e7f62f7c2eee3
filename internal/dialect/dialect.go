// Package dialect enumerates the SQL dialects statements can be generated for and
// the lexical conventions (identifier delimiters, parameter markers, driver names)
// each one uses.
package dialect

import (
	"fmt"
	"strings"

	"entitysql/internal/sqlutil"
)

// Dialect identifies a database engine family.
type Dialect string

const (
	MsSql       Dialect = "mssql"
	MySql       Dialect = "mysql"
	PostgreSql  Dialect = "postgres"
	SQLite      Dialect = "sqlite"
	SqlAnywhere Dialect = "sqlanywhere"
)

// ParameterPrefix is the marker used for named parameters in generated SQL.
// Drivers that need positional placeholders get them from dbexec.Bind.
const ParameterPrefix = "@"

// All lists the supported dialects in a stable order.
func All() []Dialect {
	return []Dialect{MsSql, MySql, PostgreSql, SQLite, SqlAnywhere}
}

// Parse resolves a dialect name, accepting a few common aliases.
func Parse(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mssql", "sqlserver", "ms_sql":
		return MsSql, nil
	case "mysql", "mariadb", "tidb":
		return MySql, nil
	case "postgres", "postgresql", "pgsql", "pg":
		return PostgreSql, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "sqlanywhere", "sql_anywhere", "sybase":
		return SqlAnywhere, nil
	}
	return "", fmt.Errorf("unknown SQL dialect %q", name)
}

// String implements fmt.Stringer.
func (d Dialect) String() string { return string(d) }

// Valid reports whether d is one of the supported dialects.
func (d Dialect) Valid() bool {
	for _, known := range All() {
		if d == known {
			return true
		}
	}
	return false
}

// QuoteIdentifier wraps name in the dialect's identifier delimiters.
func (d Dialect) QuoteIdentifier(name string) string {
	switch d {
	case MsSql:
		return sqlutil.QuoteBracketIdentifier(name)
	case MySql:
		return sqlutil.QuoteIdentifier(name)
	default:
		return sqlutil.QuoteANSIIdentifier(name)
	}
}

// Parameter returns the named parameter marker for name.
func (d Dialect) Parameter(name string) string {
	return ParameterPrefix + name
}

// DriverName returns the database/sql driver registered for the dialect, or an
// empty string when no driver ships with this module.
func (d Dialect) DriverName() string {
	switch d {
	case MySql:
		return "mysql"
	case PostgreSql:
		return "postgres"
	case SQLite:
		return "sqlite"
	}
	return ""
}
