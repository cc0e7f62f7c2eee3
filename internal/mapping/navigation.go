package mapping

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"time"
)

// NavigationKind distinguishes single-valued from collection navigation properties.
type NavigationKind int

const (
	// NavigationSingle is a *Entity field.
	NavigationSingle NavigationKind = iota
	// NavigationCollection is a []*Entity field.
	NavigationCollection
)

func (k NavigationKind) String() string {
	if k == NavigationCollection {
		return "collection"
	}
	return "single"
}

// Navigation is a field holding a related entity or a collection of them.
type Navigation struct {
	name   string
	kind   NavigationKind
	target reflect.Type
	index  []int
	typ    reflect.Type
}

// Name returns the Go field name.
func (n *Navigation) Name() string { return n.name }

// Kind returns whether the field is single-valued or a collection.
func (n *Navigation) Kind() NavigationKind { return n.kind }

// Target returns the related entity struct type.
func (n *Navigation) Target() reflect.Type { return n.target }

// Type returns the Go type of the field (*T or []*T).
func (n *Navigation) Type() reflect.Type { return n.typ }

// Field returns the navigation field of the addressable struct value v.
func (n *Navigation) Field(v reflect.Value) reflect.Value {
	return v.FieldByIndex(n.index)
}

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// isValueStruct reports whether a struct type is stored in a single column
// rather than being a related entity.
func isValueStruct(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	return t.Implements(valuerType) || reflect.PointerTo(t).Implements(scannerType)
}

// navigationOf classifies a field type as a navigation property.
func navigationOf(field reflect.StructField) (*Navigation, bool) {
	t := field.Type
	kind := NavigationSingle
	if t.Kind() == reflect.Slice {
		kind = NavigationCollection
		t = t.Elem()
	}
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct || isValueStruct(t.Elem()) {
		return nil, false
	}
	return &Navigation{
		name:   field.Name,
		kind:   kind,
		target: t.Elem(),
		index:  append([]int(nil), field.Index...),
		typ:    field.Type,
	}, true
}

// isColumnType reports whether values of t can be stored in one column.
func isColumnType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return isValueStruct(t)
	case reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer, reflect.Map:
		return false
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8 || t.Implements(valuerType) || reflect.PointerTo(t).Implements(scannerType)
	case reflect.Array:
		// Fixed size byte arrays such as uuid.UUID implement Scanner/Valuer.
		return t.Implements(valuerType) || reflect.PointerTo(t).Implements(scannerType) || t.Elem().Kind() == reflect.Uint8
	}
	return true
}

// entityFields returns the exported fields of a struct type, flattening
// embedded value structs that are not themselves column types.
func entityFields(t reflect.Type) []reflect.StructField {
	var fields []reflect.StructField
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !isValueStruct(f.Type) {
			continue // promoted fields are visited individually
		}
		if len(f.Index) > 1 && !embeddedByValue(t, f.Index) {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// embeddedByValue reports whether every step of a promoted field path goes
// through an embedded struct value, so FieldByIndex never meets a nil pointer.
func embeddedByValue(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() != reflect.Struct {
			return false
		}
		t = f.Type
	}
	return true
}
