// Package materialize rebuilds deduplicated entity graphs from the flat rows
// of multi-entity selects.
package materialize

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"

	"entitysql/internal/mapping"
)

// InstanceWrapper identifies an entity instance by its ordered primary key
// values. Instances of entities without a primary key are identified by
// reference. A wrapper over a nil instance never equals anything, itself
// included.
type InstanceWrapper struct {
	reg      *mapping.Registration
	instance reflect.Value
	keys     []any
	hash     uint64
}

// Wrap returns the wrapper of instance, a pointer to reg's entity struct or nil.
func Wrap(reg *mapping.Registration, instance any) (InstanceWrapper, error) {
	w := InstanceWrapper{reg: reg}
	if instance == nil {
		return w, nil
	}
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.Type().Elem() != reg.EntityType() {
		return w, fmt.Errorf("materialize: %T is not a *%s", instance, reg.EntityName())
	}
	if v.IsNil() {
		return w, nil
	}
	w.instance = v

	h := xxhash.New()
	_, _ = h.WriteString(reg.EntityType().String())
	keys := reg.KeyProperties()
	if len(keys) == 0 {
		_, _ = fmt.Fprintf(h, "|%p", instance)
		w.hash = h.Sum64()
		return w, nil
	}
	w.keys = make([]any, len(keys))
	for i, p := range keys {
		w.keys[i] = keyValue(p.Field(v.Elem()))
		_, _ = fmt.Fprintf(h, "|%T=%v", w.keys[i], w.keys[i])
	}
	w.hash = h.Sum64()
	return w, nil
}

// keyValue dereferences pointer keys so equal values compare equal.
func keyValue(f reflect.Value) any {
	for f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		f = f.Elem()
	}
	return f.Interface()
}

// IsNil reports whether the wrapper holds no instance.
func (w InstanceWrapper) IsNil() bool { return !w.instance.IsValid() }

// Instance returns the wrapped pointer, or nil.
func (w InstanceWrapper) Instance() any {
	if w.IsNil() {
		return nil
	}
	return w.instance.Interface()
}

// Hash returns a hash consistent with Equal.
func (w InstanceWrapper) Hash() uint64 { return w.hash }

// Equal reports whether w and o identify the same row of the same entity.
func (w InstanceWrapper) Equal(o InstanceWrapper) bool {
	if w.IsNil() || o.IsNil() || w.reg.EntityType() != o.reg.EntityType() {
		return false
	}
	if w.keys == nil || o.keys == nil {
		return w.instance.Pointer() == o.instance.Pointer()
	}
	if len(w.keys) != len(o.keys) {
		return false
	}
	for i := range w.keys {
		if !reflect.DeepEqual(w.keys[i], o.keys[i]) {
			return false
		}
	}
	return true
}

// identitySet holds one canonical wrapper per identity, in insertion order.
type identitySet struct {
	buckets map[uint64][]InstanceWrapper
}

func newIdentitySet() *identitySet {
	return &identitySet{buckets: make(map[uint64][]InstanceWrapper)}
}

// add returns the canonical wrapper equal to w, registering w when there is
// none. Nil wrappers are returned unchanged and never registered.
func (s *identitySet) add(w InstanceWrapper) (canonical InstanceWrapper, added bool) {
	if w.IsNil() {
		return w, false
	}
	for _, existing := range s.buckets[w.hash] {
		if existing.Equal(w) {
			return existing, false
		}
	}
	s.buckets[w.hash] = append(s.buckets[w.hash], w)
	return w, true
}
