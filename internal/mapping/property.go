package mapping

import (
	"reflect"
	"strings"
)

// PropertyFlags is the set of mapping flags carried by a property.
type PropertyFlags uint8

const (
	// FlagPrimaryKey marks a primary key property. It implies FlagExcludedFromUpdate.
	FlagPrimaryKey PropertyFlags = 1 << iota
	// FlagExcludedFromInsert keeps the column out of INSERT statements.
	FlagExcludedFromInsert
	// FlagExcludedFromUpdate keeps the column out of UPDATE SET clauses.
	FlagExcludedFromUpdate
	// FlagRefreshOnInsert reads the column back after an insert.
	FlagRefreshOnInsert
	// FlagRefreshOnUpdate reads the column back after an update.
	FlagRefreshOnUpdate
)

// Has reports whether all bits of flag are set.
func (f PropertyFlags) Has(flag PropertyFlags) bool { return f&flag == flag }

func (f PropertyFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	names := []struct {
		flag PropertyFlags
		name string
	}{
		{FlagPrimaryKey, "pk"},
		{FlagExcludedFromInsert, "noinsert"},
		{FlagExcludedFromUpdate, "noupdate"},
		{FlagRefreshOnInsert, "refresh_insert"},
		{FlagRefreshOnUpdate, "refresh_update"},
	}
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Generated describes how the database produces a column value.
type Generated int

const (
	// GeneratedNone clears database generation: the value is always written.
	GeneratedNone Generated = iota
	// GeneratedIdentity is produced once on insert (identity, auto increment, serial).
	GeneratedIdentity
	// GeneratedComputed is produced on every write (computed columns, triggers, defaults).
	GeneratedComputed
)

// ParentReference marks a property as part of a foreign key to another entity.
type ParentReference struct {
	// Type is the referenced entity struct type.
	Type reflect.Type
	// Navigation optionally names the single-valued navigation property on the
	// referencing entity that holds the referenced instance.
	Navigation string
}

// Property is the mapping of one entity field to a database column.
//
// Properties are owned by exactly one EntityMapping or Registration. The
// properties returned by a Registration are never modified.
type Property struct {
	name   string
	column string
	order  int
	flags  PropertyFlags
	index  []int
	typ    reflect.Type
	ref    *ParentReference
}

func newProperty(field reflect.StructField) *Property {
	return &Property{
		name:   field.Name,
		column: field.Name,
		order:  -1,
		index:  append([]int(nil), field.Index...),
		typ:    field.Type,
	}
}

func (p *Property) clone() *Property {
	c := *p
	c.index = append([]int(nil), p.index...)
	if p.ref != nil {
		ref := *p.ref
		c.ref = &ref
	}
	return &c
}

// Name returns the Go field name.
func (p *Property) Name() string { return p.name }

// ColumnName returns the undelimited database column name.
func (p *Property) ColumnName() string { return p.column }

// ColumnOrder returns the column order, or -1 when not assigned.
func (p *Property) ColumnOrder() int { return p.order }

// Flags returns the property flag set.
func (p *Property) Flags() PropertyFlags { return p.flags }

// Type returns the Go type of the field.
func (p *Property) Type() reflect.Type { return p.typ }

// IsPrimaryKey reports whether the property is part of the primary key.
func (p *Property) IsPrimaryKey() bool { return p.flags.Has(FlagPrimaryKey) }

// IsExcludedFromInsert reports whether the property is left out of inserts.
func (p *Property) IsExcludedFromInsert() bool { return p.flags.Has(FlagExcludedFromInsert) }

// IsExcludedFromUpdate reports whether the property is left out of updates.
func (p *Property) IsExcludedFromUpdate() bool { return p.flags.Has(FlagExcludedFromUpdate) }

// IsRefreshedOnInsert reports whether the column is read back after an insert.
func (p *Property) IsRefreshedOnInsert() bool { return p.flags.Has(FlagRefreshOnInsert) }

// IsRefreshedOnUpdate reports whether the column is read back after an update.
func (p *Property) IsRefreshedOnUpdate() bool { return p.flags.Has(FlagRefreshOnUpdate) }

// Reference returns the foreign key marker, if any.
func (p *Property) Reference() (ParentReference, bool) {
	if p.ref == nil {
		return ParentReference{}, false
	}
	return *p.ref, true
}

// IsIntegerKind reports whether the field holds an integer, directly or through a pointer.
func (p *Property) IsIntegerKind() bool {
	t := p.typ
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// Field returns the field of the addressable struct value v mapped by p.
func (p *Property) Field(v reflect.Value) reflect.Value {
	return v.FieldByIndex(p.index)
}

// PropertyOption configures a property registration.
type PropertyOption func(*Property)

// PrimaryKey marks the property as part of the primary key. Primary keys are
// always excluded from updates.
func PrimaryKey() PropertyOption {
	return func(p *Property) { p.flags |= FlagPrimaryKey | FlagExcludedFromUpdate }
}

// Column sets the database column name.
func Column(name string) PropertyOption {
	return func(p *Property) { p.column = name }
}

// ColumnOrder sets an explicit column order.
func ColumnOrder(order int) PropertyOption {
	return func(p *Property) { p.order = order }
}

// ExcludeFromInsert keeps the column out of INSERT statements.
func ExcludeFromInsert() PropertyOption {
	return func(p *Property) { p.flags |= FlagExcludedFromInsert }
}

// ExcludeFromUpdate keeps the column out of UPDATE statements.
func ExcludeFromUpdate() PropertyOption {
	return func(p *Property) { p.flags |= FlagExcludedFromUpdate }
}

// RefreshOnInsert reads the column back after inserts.
func RefreshOnInsert() PropertyOption {
	return func(p *Property) { p.flags |= FlagRefreshOnInsert }
}

// RefreshOnUpdate reads the column back after updates.
func RefreshOnUpdate() PropertyOption {
	return func(p *Property) { p.flags |= FlagRefreshOnUpdate }
}

// DatabaseGenerated applies the flag combination for a database generated column.
func DatabaseGenerated(g Generated) PropertyOption {
	return func(p *Property) {
		const generatedFlags = FlagExcludedFromInsert | FlagExcludedFromUpdate | FlagRefreshOnInsert | FlagRefreshOnUpdate
		p.flags &^= generatedFlags
		switch g {
		case GeneratedIdentity:
			p.flags |= FlagExcludedFromInsert | FlagRefreshOnInsert
		case GeneratedComputed:
			p.flags |= generatedFlags
		}
	}
}

// References marks the property as part of a foreign key to the entity type
// target. navigation optionally names the single-valued navigation property
// holding the referenced instance.
func References(target reflect.Type, navigation string) PropertyOption {
	target = structType(target)
	return func(p *Property) {
		p.ref = &ParentReference{Type: target, Navigation: navigation}
	}
}

// ReferencesVia marks the property as part of a foreign key whose referenced
// type is taken from the named navigation property.
func ReferencesVia(navigation string) PropertyOption {
	return func(p *Property) {
		p.ref = &ParentReference{Navigation: navigation}
	}
}

// NoReference clears a foreign key marker.
func NoReference() PropertyOption {
	return func(p *Property) { p.ref = nil }
}

func structType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
