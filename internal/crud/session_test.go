package crud

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"entitysql/internal/dialect"
	"entitysql/internal/mapping"
	"entitysql/internal/ormerr"
	"entitysql/internal/samplemodel"
)

func newSession(t *testing.T, d dialect.Dialect, matcher sqlmock.QueryMatcher) (*Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSession(db, mapping.NewRegistry(d)), mock
}

func TestSession_InsertReadsBackIdentity(t *testing.T) {
	t.Run("mysql runs the batch on one connection", func(t *testing.T) {
		s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
		mock.ExpectExec("INSERT INTO `Building` (`Name`, `Description`) VALUES (?, ?)").
			WithArgs("HQ", "Main office").
			WillReturnResult(sqlmock.NewResult(42, 1))
		mock.ExpectQuery("SELECT LAST_INSERT_ID() AS `BuildingID`").
			WillReturnRows(sqlmock.NewRows([]string{"BuildingID"}).AddRow(int64(42)))

		b := &samplemodel.Building{Name: "HQ", Description: "Main office"}
		require.NoError(t, s.Insert(context.Background(), b))
		assert.Equal(t, int64(42), b.BuildingID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres returns generated values", func(t *testing.T) {
		s, mock := newSession(t, dialect.PostgreSql, sqlmock.QueryMatcherEqual)
		mock.ExpectQuery(`INSERT INTO "Building" ("Name", "Description") VALUES ($1, $2) RETURNING "Id" AS "BuildingID"`).
			WithArgs("HQ", "").
			WillReturnRows(sqlmock.NewRows([]string{"BuildingID"}).AddRow(int64(7)))

		b := &samplemodel.Building{Name: "HQ"}
		require.NoError(t, s.Insert(context.Background(), b))
		assert.Equal(t, int64(7), b.BuildingID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inside a transaction", func(t *testing.T) {
		s, mock := newSession(t, dialect.SQLite, sqlmock.QueryMatcherEqual)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "Building" ("Name", "Description") VALUES (?, ?)`).
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectQuery(`SELECT last_insert_rowid() AS "BuildingID"`).
			WillReturnRows(sqlmock.NewRows([]string{"BuildingID"}).AddRow(int64(3)))
		mock.ExpectCommit()

		tx, err := s.db.Begin()
		require.NoError(t, err)
		b := &samplemodel.Building{Name: "Annex"}
		require.NoError(t, s.Insert(context.Background(), b, WithTx(tx)))
		require.NoError(t, tx.Commit())
		assert.Equal(t, int64(3), b.BuildingID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing generated values", func(t *testing.T) {
		s, mock := newSession(t, dialect.PostgreSql, sqlmock.QueryMatcherRegexp)
		mock.ExpectQuery("INSERT INTO").WillReturnRows(sqlmock.NewRows([]string{"BuildingID"}))

		err := s.Insert(context.Background(), &samplemodel.Building{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Building")
	})
}

func TestSession_StagedRefresh(t *testing.T) {
	employeeID := "6f1c2e8a-4b7d-4c1e-9a35-2d8f0b6c7e11"
	keyPass := "0b9d4c3e-5a6f-4e21-8c7b-1f2e3d4c5b6a"

	t.Run("mssql insert", func(t *testing.T) {
		s, mock := newSession(t, dialect.MsSql, sqlmock.QueryMatcherRegexp)
		mock.ExpectExec(regexp.QuoteMeta("SELECT * INTO #entitysql_output FROM")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [Employee]") + ".*" + regexp.QuoteMeta("INTO #entitysql_output")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("INNER JOIN #entitysql_output")).
			WillReturnRows(sqlmock.NewRows([]string{"UserID", "EmployeeID", "KeyPass", "FullName"}).
				AddRow(int64(9), employeeID, keyPass, "Doe, Jane"))
		mock.ExpectExec(regexp.QuoteMeta("DROP TABLE #entitysql_output")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		e := &samplemodel.Employee{LastName: "Doe", FirstName: "Jane"}
		require.NoError(t, s.Insert(context.Background(), e))
		assert.Equal(t, int64(9), e.UserID)
		assert.Equal(t, employeeID, e.EmployeeID.String())
		assert.Equal(t, keyPass, e.KeyPass.String())
		assert.Equal(t, "Doe, Jane", e.FullName)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mssql update", func(t *testing.T) {
		s, mock := newSession(t, dialect.MsSql, sqlmock.QueryMatcherRegexp)
		mock.ExpectExec(regexp.QuoteMeta("SELECT * INTO #entitysql_output FROM")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE [Employee]") + ".*" + regexp.QuoteMeta("INTO #entitysql_output")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM #entitysql_output")).
			WillReturnRows(sqlmock.NewRows([]string{"EmployeeID", "KeyPass", "FullName"}).
				AddRow(employeeID, keyPass, "Doe, John"))
		mock.ExpectExec(regexp.QuoteMeta("DROP TABLE #entitysql_output")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		e := &samplemodel.Employee{UserID: 9, LastName: "Doe", FirstName: "John"}
		updated, err := s.Update(context.Background(), e)
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Equal(t, int64(9), e.UserID)
		assert.Equal(t, employeeID, e.EmployeeID.String())
		assert.Equal(t, keyPass, e.KeyPass.String())
		assert.Equal(t, "Doe, John", e.FullName)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlanywhere insert", func(t *testing.T) {
		s, mock := newSession(t, dialect.SqlAnywhere, sqlmock.QueryMatcherRegexp)
		mock.ExpectExec(regexp.QuoteMeta("INTO #entitysql_keys FROM (INSERT INTO \"Employee\"")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("INNER JOIN #entitysql_keys")).
			WillReturnRows(sqlmock.NewRows([]string{"UserID", "EmployeeID", "KeyPass", "FullName"}).
				AddRow(int64(11), employeeID, keyPass, "Roe, Ann"))
		mock.ExpectExec(regexp.QuoteMeta("DROP TABLE #entitysql_keys")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		e := &samplemodel.Employee{LastName: "Roe", FirstName: "Ann"}
		require.NoError(t, s.Insert(context.Background(), e))
		assert.Equal(t, int64(11), e.UserID)
		assert.Equal(t, employeeID, e.EmployeeID.String())
		assert.Equal(t, keyPass, e.KeyPass.String())
		assert.Equal(t, "Roe, Ann", e.FullName)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("staging table is dropped when nothing comes back", func(t *testing.T) {
		s, mock := newSession(t, dialect.MsSql, sqlmock.QueryMatcherRegexp)
		mock.ExpectExec("SELECT \\* INTO").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INNER JOIN").
			WillReturnRows(sqlmock.NewRows([]string{"UserID", "EmployeeID", "KeyPass", "FullName"}))
		mock.ExpectExec("DROP TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.Insert(context.Background(), &samplemodel.Employee{LastName: "Doe"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Employee")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSession_GetUpdateDelete(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		s, mock := newSession(t, dialect.SQLite, sqlmock.QueryMatcherEqual)
		query := `SELECT "Id" AS "BuildingID", "Name", "Description" FROM "Building" WHERE "Id" = ?`
		mock.ExpectQuery(query).WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"BuildingID", "Name", "Description"}).AddRow(int64(5), "HQ", []byte("Main")))
		mock.ExpectQuery(query).WithArgs(int64(6)).
			WillReturnRows(sqlmock.NewRows([]string{"BuildingID", "Name", "Description"}))

		b := &samplemodel.Building{BuildingID: 5}
		found, err := s.Get(context.Background(), b)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, &samplemodel.Building{BuildingID: 5, Name: "HQ", Description: "Main"}, b)

		found, err = s.Get(context.Background(), &samplemodel.Building{BuildingID: 6})
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update", func(t *testing.T) {
		s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
		mock.ExpectExec("UPDATE `Building` SET `Name` = ?, `Description` = ? WHERE `Id` = ?").
			WithArgs("HQ2", "", int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		updated, err := s.Update(context.Background(), &samplemodel.Building{BuildingID: 42, Name: "HQ2"})
		require.NoError(t, err)
		assert.True(t, updated)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
		mock.ExpectExec("DELETE FROM `Building` WHERE `Id` = ?").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		deleted, err := s.Delete(context.Background(), &samplemodel.Building{BuildingID: 42})
		require.NoError(t, err)
		assert.False(t, deleted)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("execution errors propagate unchanged", func(t *testing.T) {
		s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherRegexp)
		constraint := errors.New("foreign key constraint fails")
		mock.ExpectExec("DELETE FROM").WillReturnError(constraint)

		_, err := s.Delete(context.Background(), &samplemodel.Building{BuildingID: 1})
		assert.ErrorIs(t, err, constraint)
	})

	t.Run("by-key statements need a key", func(t *testing.T) {
		s, _ := newSession(t, dialect.MySql, sqlmock.QueryMatcherRegexp)
		_, err := s.Delete(context.Background(), &samplemodel.LogEntry{})
		assert.ErrorIs(t, err, ormerr.ErrMappingShape)
	})
}

func TestFind_MapsJoinedEntities(t *testing.T) {
	s, mock := newSession(t, dialect.PostgreSql, sqlmock.QueryMatcherRegexp)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "Workstation" LEFT OUTER JOIN "Building" ON "Workstation"."BuildingId" = "Building"."Id" ` +
		`WHERE "Workstation"."AccessLevel" > $1 ORDER BY "Workstation"."Name" LIMIT 10`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"WorkstationID", "Name", "AccessLevel", "InventoryIndex", "BuildingID", "BuildingID", "Name", "Description",
		}).
			AddRow(int64(1), "A", int64(2), int64(0), int64(10), int64(10), "HQ", nil).
			AddRow(int64(2), "B", int64(3), int64(0), int64(10), int64(10), "HQ", nil).
			AddRow(int64(3), "C", int64(5), int64(0), nil, nil, nil, nil))

	got, err := Find[samplemodel.Workstation](context.Background(), s,
		LeftOuterJoin[samplemodel.Building](MapResults()),
		Where("{AccessLevel:TC} > {level:P}"),
		OrderBy("{Name:TC}"),
		Top(10),
		WithParams(map[string]any{"level": 1}),
	)
	require.NoError(t, err)
	require.Len(t, got, 3)

	hq := got[0].Building
	require.NotNil(t, hq)
	assert.Same(t, hq, got[1].Building)
	require.Len(t, hq.Workstations, 2)
	assert.Same(t, got[0], hq.Workstations[0])
	assert.Same(t, got[1], hq.Workstations[1])
	assert.Nil(t, got[2].Building)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_SingleEntity(t *testing.T) {
	s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
	mock.ExpectQuery("SELECT `b`.`Id` AS `BuildingID`, `b`.`Name`, `b`.`Description` FROM `Building` AS `b` WHERE `b`.`Name` LIKE ? LIMIT 5, 2").
		WithArgs("H%").
		WillReturnRows(sqlmock.NewRows([]string{"BuildingID", "Name", "Description"}).
			AddRow(int64(1), "HQ", "").
			AddRow(int64(1), "HQ", "").
			AddRow(int64(2), "Hangar", ""))

	got, err := Find[samplemodel.Building](context.Background(), s,
		WithAlias("b"),
		Where("{b.Name:TC} LIKE {pattern:P}"),
		WithParams(map[string]any{"pattern": "H%"}),
		Skip(5), Top(2),
	)
	require.NoError(t, err)
	require.Len(t, got, 2, "duplicate keys collapse into one entity")
	assert.Equal(t, "Hangar", got[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAndBulk(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		s, mock := newSession(t, dialect.SQLite, sqlmock.QueryMatcherEqual)
		mock.ExpectQuery(`SELECT COUNT(*) FROM "Building" WHERE "Name" = ?`).
			WithArgs("HQ").
			WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(3)))

		n, err := Count[samplemodel.Building](context.Background(), s,
			Where("{Name:C} = {name:P}"), WithParams(map[string]any{"name": "HQ"}))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bulk update", func(t *testing.T) {
		s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
		mock.ExpectExec("UPDATE `Building` SET `Name` = ?, `Description` = ? WHERE `Name` = ?").
			WithArgs("Campus", "merged", "HQ").
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := BulkUpdate(context.Background(), s, &samplemodel.Building{Name: "Campus", Description: "merged"},
			Where("{Name:C} = {old:P}"), WithParams(map[string]any{"old": "HQ"}))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bulk delete everything", func(t *testing.T) {
		s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
		mock.ExpectExec("DELETE FROM `Building`").WillReturnResult(sqlmock.NewResult(0, 5))

		n, err := BulkDelete[samplemodel.Building](context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bulk statements reject aliases", func(t *testing.T) {
		s, _ := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
		_, err := BulkDelete[samplemodel.Building](context.Background(), s, WithAlias("b"))
		assert.ErrorIs(t, err, ormerr.ErrConfiguration)
	})
}

func TestSession_ConfigurationErrors(t *testing.T) {
	s, _ := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
	ctx := context.Background()

	assert.ErrorIs(t, s.Insert(ctx, samplemodel.Building{}), ormerr.ErrConfiguration)
	assert.ErrorIs(t, s.Insert(ctx, (*samplemodel.Building)(nil)), ormerr.ErrConfiguration)

	other, err := mapping.RegistrationFor[samplemodel.Workstation](s.Registry())
	require.NoError(t, err)
	_, err = Find[samplemodel.Building](ctx, s, WithMapping(other))
	assert.ErrorIs(t, err, ormerr.ErrConfiguration)

	_, err = Find[samplemodel.Building](ctx, s, Where("{Nope:C} = 1"))
	assert.ErrorIs(t, err, ormerr.ErrConfiguration)

	_, err = Find[samplemodel.Building](ctx, s, InnerJoin[samplemodel.Employee]())
	assert.ErrorIs(t, err, ormerr.ErrConfiguration, "buildings and employees are not related")

	_, err = Find[samplemodel.Building](ctx, s, Skip(-1))
	assert.ErrorIs(t, err, ormerr.ErrConfiguration)
}

func TestSession_Overrides(t *testing.T) {
	s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherEqual)
	override, err := s.Registry().Override(reflect.TypeFor[samplemodel.Building]())
	require.NoError(t, err)
	require.NoError(t, override.SetTableName("Buildings_Archive"))
	archive, err := override.Freeze()
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM `Buildings_Archive` WHERE `Id` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := s.Delete(context.Background(), &samplemodel.Building{BuildingID: 1}, WithMapping(archive), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	}()

	s, mock := newSession(t, dialect.MySql, sqlmock.QueryMatcherRegexp)
	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM").WillReturnError(errors.New("locked"))

	_, err := s.Delete(context.Background(), &samplemodel.Building{BuildingID: 1})
	require.NoError(t, err)
	_, err = s.Delete(context.Background(), &samplemodel.Building{BuildingID: 2})
	require.Error(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "entitysql.delete", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("entitysql.entity", "Building"))
	assert.Contains(t, ended[0].Attributes(), attribute.String("entitysql.outcome", "success"))
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}
