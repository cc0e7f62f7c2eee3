package mapping

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"entitysql/internal/dialect"
	"entitysql/internal/naming"
	"entitysql/internal/ormerr"
)

// TagName is the struct tag read by FromStruct.
const TagName = "db"

// FromStruct builds a mutable mapping for the struct type t from its `db`
// struct tags.
//
//	type Employee struct {
//		ID         int64       `db:"id,pk,identity"`
//		Name       string      `db:"full_name"`
//		BuildingID int64       `db:"building_id,fk=Building"`
//		Version    int64       `db:",computed,order=99"`
//		Building   *Building   // navigation property
//		Notes      string      `db:"-"`
//	}
//
// Supported options: pk, identity, computed, noinsert, noupdate,
// refresh_insert, refresh_update, order=N, fk=NavigationProperty.
// Untagged fields are mapped with the namer's default column name.
func FromStruct(t reflect.Type, d dialect.Dialect, namer *naming.Namer) (*EntityMapping, error) {
	if namer == nil {
		namer = naming.Default()
	}
	m, err := NewEntityMapping(t, d)
	if err != nil {
		return nil, err
	}
	m.table = namer.TableName(m.entityType.Name())

	for _, field := range entityFields(m.entityType) {
		tag, hasTag := field.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		if _, isNav := m.navs[field.Name]; isNav {
			if hasTag && tag != "" {
				return nil, fmt.Errorf("%w: entity %s: navigation property %s cannot carry a %q tag",
					ormerr.ErrConfiguration, m.entityType.Name(), field.Name, TagName)
			}
			continue
		}
		if !isColumnType(field.Type) {
			continue
		}
		opts, err := parseTag(m.entityType, field, tag, namer)
		if err != nil {
			return nil, err
		}
		if err := m.SetProperty(field.Name, opts...); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func parseTag(entity reflect.Type, field reflect.StructField, tag string, namer *naming.Namer) ([]PropertyOption, error) {
	parts := strings.Split(tag, ",")
	column := strings.TrimSpace(parts[0])
	if column == "" {
		column = namer.ColumnName(field.Name)
	}
	opts := []PropertyOption{Column(column)}
	for _, raw := range parts[1:] {
		opt := strings.TrimSpace(raw)
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "":
		case "pk":
			opts = append(opts, PrimaryKey())
		case "identity":
			opts = append(opts, DatabaseGenerated(GeneratedIdentity))
		case "computed":
			opts = append(opts, DatabaseGenerated(GeneratedComputed))
		case "noinsert":
			opts = append(opts, ExcludeFromInsert())
		case "noupdate":
			opts = append(opts, ExcludeFromUpdate())
		case "refresh_insert":
			opts = append(opts, RefreshOnInsert())
		case "refresh_update":
			opts = append(opts, RefreshOnUpdate())
		case "order":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: entity %s: field %s: invalid column order %q",
					ormerr.ErrConfiguration, entity.Name(), field.Name, value)
			}
			opts = append(opts, ColumnOrder(n))
		case "fk":
			if value == "" {
				return nil, fmt.Errorf("%w: entity %s: field %s: fk requires a navigation property name",
					ormerr.ErrConfiguration, entity.Name(), field.Name)
			}
			opts = append(opts, ReferencesVia(value))
		default:
			return nil, fmt.Errorf("%w: entity %s: field %s: unknown tag option %q",
				ormerr.ErrConfiguration, entity.Name(), field.Name, opt)
		}
	}
	return opts, nil
}
