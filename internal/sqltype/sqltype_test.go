package sqltype

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want Category
	}{
		{reflect.TypeFor[int](), Integer},
		{reflect.TypeFor[*int64](), Integer},
		{reflect.TypeFor[uint8](), Integer},
		{reflect.TypeFor[float32](), Float},
		{reflect.TypeFor[bool](), Boolean},
		{reflect.TypeFor[*string](), String},
		{reflect.TypeFor[time.Time](), Time},
		{reflect.TypeFor[*uuid.UUID](), UUID},
		{reflect.TypeFor[[]byte](), Bytes},
		{reflect.TypeFor[[]int](), Unsupported},
		{reflect.TypeFor[map[string]string](), Unsupported},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.typ))
		})
	}
}

func TestColumnType_EveryDialect(t *testing.T) {
	for _, c := range []Category{Integer, Float, Boolean, String, Time, UUID, Bytes} {
		for _, d := range dialect.All() {
			_, ok := columnTypes[c][d]
			assert.True(t, ok, "%s has no %s column type", d, c)
		}
	}

	got, err := ColumnType(dialect.PostgreSql, reflect.TypeFor[uuid.UUID]())
	require.NoError(t, err)
	assert.Equal(t, "UUID", got)

	got, err = ColumnType(dialect.MySql, reflect.TypeFor[*string]())
	require.NoError(t, err)
	assert.Equal(t, "VARCHAR(255)", got)
}

func TestColumnType_Unsupported(t *testing.T) {
	_, err := ColumnType(dialect.SQLite, reflect.TypeFor[[]string]())
	require.Error(t, err)
	assert.ErrorIs(t, err, ormerr.ErrConfiguration)
	assert.Contains(t, err.Error(), "[]string")
}

func TestIdentityColumn(t *testing.T) {
	assert.Equal(t, "INTEGER PRIMARY KEY AUTOINCREMENT", IdentityColumn(dialect.SQLite))
	assert.Equal(t, "BIGSERIAL PRIMARY KEY", IdentityColumn(dialect.PostgreSql))
	assert.Equal(t, "BIGINT IDENTITY(1,1) PRIMARY KEY", IdentityColumn(dialect.MsSql))
}
