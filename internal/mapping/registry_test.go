package mapping

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitysql/internal/dialect"
	"entitysql/internal/naming"
	"entitysql/internal/ormerr"
	"entitysql/internal/samplemodel"
)

func TestRegistry_MappingIsCached(t *testing.T) {
	r := NewRegistry(dialect.SQLite)
	first, err := For[samplemodel.Building](r)
	require.NoError(t, err)
	second, err := r.Mapping(reflect.TypeFor[*samplemodel.Building]())
	require.NoError(t, err)
	assert.Same(t, first, second)

	typ, ok := r.Lookup("Building")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[samplemodel.Building](), typ)
}

func TestRegistry_OverrideIsIndependent(t *testing.T) {
	r := NewRegistry(dialect.MySql)
	override, err := r.Override(reflect.TypeFor[samplemodel.Building]())
	require.NoError(t, err)
	require.NoError(t, override.SetTableName("archived_buildings"))

	def, err := RegistrationFor[samplemodel.Building](r)
	require.NoError(t, err)
	custom, err := override.Freeze()
	require.NoError(t, err)

	assert.Equal(t, "Building", def.TableName())
	assert.Equal(t, "archived_buildings", custom.TableName())
	assert.Equal(t, def.EntityType(), custom.EntityType())
}

func TestRegistry_RegisterReplacesDefault(t *testing.T) {
	r := NewRegistry(dialect.MsSql, WithNamer(naming.New(naming.Config{Tables: naming.TablePlural}, nil)))
	def, err := RegistrationFor[samplemodel.Building](r)
	require.NoError(t, err)
	assert.Equal(t, "Buildings", def.TableName())

	m, err := NewEntityMapping(reflect.TypeFor[samplemodel.Building](), dialect.MsSql)
	require.NoError(t, err)
	require.NoError(t, m.SetProperty("BuildingID", PrimaryKey()))
	r.Register(m)

	reg, err := RegistrationFor[samplemodel.Building](r)
	require.NoError(t, err)
	assert.Len(t, reg.Properties(), 1)
}

func TestRegistry_ApplyOverrides(t *testing.T) {
	r := NewRegistry(dialect.PostgreSql)
	_, err := For[samplemodel.Building](r)
	require.NoError(t, err)

	doc := `
entities:
  Building:
    table: buildings
    schema: facilities
    columns:
      Name: building_name
    exclude: [Description]
`
	o, err := ParseOverrides(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, r.ApplyOverrides(o))

	reg, err := RegistrationFor[samplemodel.Building](r)
	require.NoError(t, err)
	assert.Equal(t, "buildings", reg.TableName())
	assert.Equal(t, "facilities", reg.SchemaName())
	name, _ := reg.Property("Name")
	assert.Equal(t, "building_name", name.ColumnName())
	_, hasDescription := reg.Property("Description")
	assert.False(t, hasDescription)

	// Defaults are frozen now.
	err = r.ApplyOverrides(o)
	assert.True(t, errors.Is(err, ormerr.ErrState))
}

func TestRegistry_ApplyOverridesUnknownEntity(t *testing.T) {
	r := NewRegistry(dialect.PostgreSql)
	o, err := ParseOverrides(strings.NewReader("entities:\n  Ghost:\n    table: ghosts\n"))
	require.NoError(t, err)
	err = r.ApplyOverrides(o)
	assert.True(t, errors.Is(err, ormerr.ErrConfiguration))
}

func TestRegistry_ApplyOverridesIsAllOrNothing(t *testing.T) {
	r := NewRegistry(dialect.PostgreSql)
	building, err := For[samplemodel.Building](r)
	require.NoError(t, err)
	_, err = For[samplemodel.Workstation](r)
	require.NoError(t, err)

	doc := `
entities:
  Building:
    table: buildings
  Workstation:
    table: desks
    columns:
      Colour: colour
`
	o, err := ParseOverrides(strings.NewReader(doc))
	require.NoError(t, err)
	err = r.ApplyOverrides(o)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ormerr.ErrConfiguration))
	assert.Contains(t, err.Error(), "Workstation")

	same, err := For[samplemodel.Building](r)
	require.NoError(t, err)
	assert.Same(t, building, same)
	assert.Equal(t, "Building", same.TableName())

	ws, err := RegistrationFor[samplemodel.Workstation](r)
	require.NoError(t, err)
	assert.Equal(t, "Workstation", ws.TableName())
}

func TestRegistration_CloneKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewRegistry(dialect.SQLite, WithLogger(logger))

	reg, err := RegistrationFor[samplemodel.Building](r)
	require.NoError(t, err)

	keyless := reg.Clone()
	require.NoError(t, keyless.RemoveProperty("BuildingID"))
	_, err = keyless.Freeze()
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "skipping parent-children relationship")
	assert.Contains(t, buf.String(), "navigation=Workstations")
}

func TestParseOverrides_RejectsUnknownFields(t *testing.T) {
	_, err := ParseOverrides(strings.NewReader("entities:\n  Building:\n    tabel: x\n"))
	assert.Error(t, err)

	o, err := ParseOverrides(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, o.Entities)
}
