package mapping

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"entitysql/internal/dialect"
	"entitysql/internal/naming"
	"entitysql/internal/ormerr"
)

// Registry holds the default mapping of each entity type. It replaces any
// process-wide registration state: callers create one and pass it around.
type Registry struct {
	mu       sync.RWMutex
	dialect  dialect.Dialect
	namer    *naming.Namer
	logger   *slog.Logger
	mappings map[reflect.Type]*EntityMapping
	byName   map[string]reflect.Type
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNamer sets the naming conventions used for struct tag discovery.
func WithNamer(n *naming.Namer) RegistryOption {
	return func(r *Registry) {
		if n != nil {
			r.namer = n
		}
	}
}

// WithLogger sets the logger handed to discovered mappings.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry generating statements for d by default.
func NewRegistry(d dialect.Dialect, opts ...RegistryOption) *Registry {
	r := &Registry{
		dialect:  d,
		namer:    naming.Default(),
		logger:   slog.Default(),
		mappings: make(map[reflect.Type]*EntityMapping),
		byName:   make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dialect returns the default dialect.
func (r *Registry) Dialect() dialect.Dialect { return r.dialect }

// Mapping returns the default mapping of t, discovering it from struct tags
// the first time t is seen.
func (r *Registry) Mapping(t reflect.Type) (*EntityMapping, error) {
	st := structType(t)
	if st == nil {
		return nil, fmt.Errorf("%w: nil entity type", ormerr.ErrConfiguration)
	}
	r.mu.RLock()
	m, ok := r.mappings[st]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.mappings[st]; ok {
		return m, nil
	}
	m, err := FromStruct(st, r.dialect, r.namer)
	if err != nil {
		return nil, err
	}
	m.logger = r.logger
	r.store(st, m)
	return m, nil
}

// Register makes m the default mapping of its entity type, replacing any
// previous default.
func (r *Registry) Register(m *EntityMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(m.entityType, m)
}

func (r *Registry) store(t reflect.Type, m *EntityMapping) {
	r.mappings[t] = m
	r.byName[t.Name()] = t
}

// Registration returns the frozen default registration of t.
func (r *Registry) Registration(t reflect.Type) (*Registration, error) {
	m, err := r.Mapping(t)
	if err != nil {
		return nil, err
	}
	return m.Freeze()
}

// Override returns a mutable copy of the default mapping of t, for use as a
// per-statement mapping override. The default mapping is left untouched.
func (r *Registry) Override(t reflect.Type) (*EntityMapping, error) {
	m, err := r.Mapping(t)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Lookup returns the entity type registered under the Go type name.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// For returns the default mapping of T.
func For[T any](r *Registry) (*EntityMapping, error) {
	return r.Mapping(reflect.TypeFor[T]())
}

// RegistrationFor returns the frozen default registration of T.
func RegistrationFor[T any](r *Registry) (*Registration, error) {
	return r.Registration(reflect.TypeFor[T]())
}
