package materialize

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitysql/internal/dialect"
	"entitysql/internal/mapping"
	"entitysql/internal/samplemodel"
)

func TestScanner_SplitsParticipants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := mapping.NewRegistry(dialect.MySql)
	workstations := registration[samplemodel.Workstation](t, reg)
	buildings := registration[samplemodel.Building](t, reg)
	s := NewScanner(workstations, buildings)
	require.Equal(t, 8, s.Columns())

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{
		"WorkstationID", "Name", "AccessLevel", "InventoryIndex", "BuildingId", "BuildingID", "Name", "Description",
	}).
		AddRow(int64(1), []byte("Desk"), int64(2), "7", int64(10), int64(10), "HQ", nil).
		AddRow(int64(2), "Spare", int64(0), int64(0), nil, nil, nil, nil))

	rows, err := db.Query("SELECT")
	require.NoError(t, err)
	defer rows.Close()

	var got [][]any
	for rows.Next() {
		row, err := s.Scan(rows)
		require.NoError(t, err)
		got = append(got, row)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	buildingID := int64(10)
	assert.Equal(t, &samplemodel.Workstation{
		WorkstationID: 1, Name: "Desk", AccessLevel: 2, InventoryIndex: 7, BuildingID: &buildingID,
	}, got[0][0])
	assert.Equal(t, &samplemodel.Building{BuildingID: 10, Name: "HQ"}, got[0][1])

	assert.Equal(t, &samplemodel.Workstation{WorkstationID: 2, Name: "Spare"}, got[1][0])
	assert.Nil(t, got[1][1], "an all-NULL participant is no match")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign(t *testing.T) {
	id := uuid.New()
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		field any
		value any
		want  any
	}{
		{"int from bytes", new(int), []byte("42"), 42},
		{"int64 from int64", new(int64), int64(-3), int64(-3)},
		{"uint from string", new(uint16), "9", uint16(9)},
		{"float from bytes", new(float64), []byte("1.5"), 1.5},
		{"bool from bytes", new(bool), []byte("1"), true},
		{"string from bytes", new(string), []byte("abc"), "abc"},
		{"bytes are copied", new([]byte), []byte{1, 2}, []byte{1, 2}},
		{"time from time", new(time.Time), when, when},
		{"time from string", new(time.Time), "2024-03-01T12:30:00Z", when},
		{"uuid through Scan", new(uuid.UUID), id.String(), id},
		{"pointer is allocated", new(*uuid.UUID), id.String(), &id},
		{"null string", new(sql.NullString), "x", sql.NullString{String: "x", Valid: true}},
		{"nil clears", func() any { s := "old"; return &s }(), nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := reflect.ValueOf(tt.field).Elem()
			require.NoError(t, assign(field, tt.value))
			assert.Equal(t, tt.want, field.Interface())
		})
	}
}

func TestAssign_Errors(t *testing.T) {
	var small int8
	assert.Error(t, assign(reflect.ValueOf(&small).Elem(), int64(1000)))

	var n int
	assert.Error(t, assign(reflect.ValueOf(&n).Elem(), "not a number"))

	var ch chan int
	assert.Error(t, assign(reflect.ValueOf(&ch).Elem(), "x"))
}
