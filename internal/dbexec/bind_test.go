package dbexec

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

func TestBind(t *testing.T) {
	params := map[string]any{"Name": "HQ", "ID": int64(7)}

	tests := []struct {
		name     string
		dialect  dialect.Dialect
		query    string
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "mysql positional",
			dialect:  dialect.MySql,
			query:    "UPDATE `Building` SET `Name` = @Name WHERE `Id` = @ID",
			wantSQL:  "UPDATE `Building` SET `Name` = ? WHERE `Id` = ?",
			wantArgs: []any{"HQ", int64(7)},
		},
		{
			name:     "postgres numbered, repeated markers bind twice",
			dialect:  dialect.PostgreSql,
			query:    `SELECT @ID, @Name, @ID`,
			wantSQL:  `SELECT $1, $2, $3`,
			wantArgs: []any{int64(7), "HQ", int64(7)},
		},
		{
			name:     "mssql keeps named markers once each",
			dialect:  dialect.MsSql,
			query:    "SELECT [Id] FROM [Building] WHERE [Id] = @ID OR [Id] > @ID",
			wantSQL:  "SELECT [Id] FROM [Building] WHERE [Id] = @ID OR [Id] > @ID",
			wantArgs: []any{sql.Named("ID", int64(7))},
		},
		{
			name:     "system variables and quoted text are untouched",
			dialect:  dialect.SqlAnywhere,
			query:    `SELECT @@IDENTITY, '@Name', "@ID" WHERE "Name" = @Name`,
			wantSQL:  `SELECT @@IDENTITY, '@Name', "@ID" WHERE "Name" = ?`,
			wantArgs: []any{"HQ"},
		},
		{
			name:     "escaped quotes",
			dialect:  dialect.SQLite,
			query:    `SELECT 'it''s @Name' || @Name`,
			wantSQL:  `SELECT 'it''s @Name' || ?`,
			wantArgs: []any{"HQ"},
		},
		{
			name:     "bracket delimiters only for mssql",
			dialect:  dialect.MsSql,
			query:    "SELECT [@Name] FROM t",
			wantSQL:  "SELECT [@Name] FROM t",
			wantArgs: nil,
		},
		{
			name:     "postgres question marks stay literal",
			dialect:  dialect.PostgreSql,
			query:    `SELECT data ? 'key' FROM t WHERE id = @ID`,
			wantSQL:  `SELECT data ? 'key' FROM t WHERE id = $1`,
			wantArgs: []any{int64(7)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs, err := Bind(tt.dialect, tt.query, params)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, gotSQL)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func TestBind_MissingParameter(t *testing.T) {
	_, _, err := Bind(dialect.MySql, "SELECT * FROM t WHERE a = @Missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.ErrorIs(t, err, ormerr.ErrConfiguration)
	assert.Contains(t, err.Error(), "@Missing")
}
