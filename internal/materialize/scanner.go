package materialize

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"

	"entitysql/internal/mapping"
)

// RowScanner is implemented by *sql.Rows and *sql.Row.
type RowScanner interface {
	Scan(dest ...any) error
}

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
	bytesType   = reflect.TypeFor[[]byte]()
)

// Scanner splits rows selected with every participant's full column list
// into one new instance per participant.
type Scanner struct {
	regs    []*mapping.Registration
	columns int
}

// NewScanner returns a scanner for rows listing the columns of regs, in order.
func NewScanner(regs ...*mapping.Registration) *Scanner {
	s := &Scanner{regs: regs}
	for _, reg := range regs {
		s.columns += len(reg.Properties())
	}
	return s
}

// Columns returns the number of columns a row must have.
func (s *Scanner) Columns() int { return s.columns }

// Scan reads the current row. A participant whose columns are all NULL, as
// an outer join without a match produces, yields a nil slot.
func (s *Scanner) Scan(rows RowScanner) ([]any, error) {
	values := make([]any, s.columns)
	dest := make([]any, s.columns)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	row := make([]any, len(s.regs))
	offset := 0
	for i, reg := range s.regs {
		props := reg.Properties()
		instance, err := populate(reg, values[offset:offset+len(props)])
		if err != nil {
			return nil, err
		}
		row[i] = instance
		offset += len(props)
	}
	return row, nil
}

func populate(reg *mapping.Registration, values []any) (any, error) {
	allNull := true
	for _, v := range values {
		if v != nil {
			allNull = false
			break
		}
	}
	if allNull {
		return nil, nil
	}

	instance := reg.NewInstance()
	for i, p := range reg.Properties() {
		if err := assign(p.Field(instance.Elem()), values[i]); err != nil {
			return nil, fmt.Errorf("materialize: %s.%s: %w", reg.EntityName(), p.Name(), err)
		}
	}
	return instance.Interface(), nil
}

// assign stores the driver value v into field, converting between the
// representations drivers return and the field's type.
func assign(field reflect.Value, v any) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}
	if reflect.PointerTo(field.Type()).Implements(scannerType) {
		return field.Addr().Interface().(sql.Scanner).Scan(v)
	}

	if b, ok := v.([]byte); ok {
		if field.Type() == bytesType {
			field.SetBytes(append([]byte(nil), b...))
			return nil
		}
		v = string(b)
	}

	if field.Type() == timeType {
		t, err := cast.ToTimeE(v)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		field.SetString(s)
	case reflect.Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, field.Type())
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(v)
		if err != nil {
			return err
		}
		if field.OverflowUint(n) {
			return fmt.Errorf("value %d overflows %s", n, field.Type())
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		rv := reflect.ValueOf(v)
		if !rv.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("cannot store %T in %s", v, field.Type())
		}
		field.Set(rv.Convert(field.Type()))
	}
	return nil
}

// ScanInto reads the current row into the props of instance, a pointer to an
// entity struct. The row must list exactly those columns, in order.
func ScanInto(rows RowScanner, instance any, props []*mapping.Property) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("materialize: cannot scan into %T", instance)
	}
	values := make([]any, len(props))
	dest := make([]any, len(props))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	for i, p := range props {
		if err := assign(p.Field(v.Elem()), values[i]); err != nil {
			return fmt.Errorf("materialize: %s.%s: %w", v.Elem().Type().Name(), p.Name(), err)
		}
	}
	return nil
}
