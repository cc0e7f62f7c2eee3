// Package sqltype maps Go field types to the column types of each dialect.
// The smoke test uses it to create tables for the sample entities.
package sqltype

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

// Category groups Go field types that share a column type.
type Category int

const (
	// Unsupported has no column type.
	Unsupported Category = iota
	Integer
	Float
	Boolean
	String
	Time
	UUID
	Bytes
)

var (
	timeType  = reflect.TypeFor[time.Time]()
	uuidType  = reflect.TypeFor[uuid.UUID]()
	bytesType = reflect.TypeFor[[]byte]()
)

// Categorize returns the category of t. Pointers are categorized by their
// element type.
func Categorize(t reflect.Type) Category {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return Time
	case uuidType:
		return UUID
	case bytesType:
		return Bytes
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.Bool:
		return Boolean
	case reflect.String:
		return String
	default:
		return Unsupported
	}
}

func (c Category) String() string {
	switch c {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case String:
		return "string"
	case Time:
		return "time"
	case UUID:
		return "uuid"
	case Bytes:
		return "bytes"
	default:
		return "unsupported"
	}
}

// columnTypes is indexed by category, then dialect.
var columnTypes = map[Category]map[dialect.Dialect]string{
	Integer: {
		dialect.SQLite:      "INTEGER",
		dialect.MySql:       "BIGINT",
		dialect.PostgreSql:  "BIGINT",
		dialect.MsSql:       "BIGINT",
		dialect.SqlAnywhere: "BIGINT",
	},
	Float: {
		dialect.SQLite:      "REAL",
		dialect.MySql:       "DOUBLE",
		dialect.PostgreSql:  "DOUBLE PRECISION",
		dialect.MsSql:       "FLOAT",
		dialect.SqlAnywhere: "DOUBLE",
	},
	Boolean: {
		dialect.SQLite:      "BOOLEAN",
		dialect.MySql:       "BOOLEAN",
		dialect.PostgreSql:  "BOOLEAN",
		dialect.MsSql:       "BIT",
		dialect.SqlAnywhere: "BIT",
	},
	String: {
		dialect.SQLite:      "TEXT",
		dialect.MySql:       "VARCHAR(255)",
		dialect.PostgreSql:  "TEXT",
		dialect.MsSql:       "NVARCHAR(255)",
		dialect.SqlAnywhere: "VARCHAR(255)",
	},
	Time: {
		dialect.SQLite:      "DATETIME",
		dialect.MySql:       "DATETIME(6)",
		dialect.PostgreSql:  "TIMESTAMP",
		dialect.MsSql:       "DATETIME2",
		dialect.SqlAnywhere: "TIMESTAMP",
	},
	UUID: {
		dialect.SQLite:      "TEXT",
		dialect.MySql:       "CHAR(36)",
		dialect.PostgreSql:  "UUID",
		dialect.MsSql:       "UNIQUEIDENTIFIER",
		dialect.SqlAnywhere: "UNIQUEIDENTIFIER",
	},
	Bytes: {
		dialect.SQLite:      "BLOB",
		dialect.MySql:       "BLOB",
		dialect.PostgreSql:  "BYTEA",
		dialect.MsSql:       "VARBINARY(MAX)",
		dialect.SqlAnywhere: "LONG BINARY",
	},
}

// ColumnType returns the column type for a field of type t.
func ColumnType(d dialect.Dialect, t reflect.Type) (string, error) {
	c := Categorize(t)
	if typ, ok := columnTypes[c][d]; ok {
		return typ, nil
	}
	return "", fmt.Errorf("%w: no %s column type for Go type %s", ormerr.ErrConfiguration, d, t)
}

// IdentityColumn returns the definition of a single integer primary key the
// database numbers on insert.
func IdentityColumn(d dialect.Dialect) string {
	switch d {
	case dialect.MySql:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case dialect.PostgreSql:
		return "BIGSERIAL PRIMARY KEY"
	case dialect.MsSql:
		return "BIGINT IDENTITY(1,1) PRIMARY KEY"
	case dialect.SqlAnywhere:
		return "BIGINT DEFAULT AUTOINCREMENT PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}
