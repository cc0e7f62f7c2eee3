package mapping

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

// EntityMapping is the mutable description of how an entity type maps to a
// table. It is configured through its setters and compiled into an immutable
// Registration by Freeze. Once frozen, every setter fails with an error
// wrapping ormerr.ErrState.
//
// Several mappings may exist for the same entity type; they are independent
// and never merged.
type EntityMapping struct {
	mu     sync.Mutex
	frozen atomic.Pointer[Registration]

	entityType reflect.Type
	table      string
	schema     string
	database   string
	dialect    dialect.Dialect
	props      []*Property
	navs       map[string]*Navigation
	logger     *slog.Logger
}

// NewEntityMapping creates an empty mapping for the struct type t (or a
// pointer to it). The table name defaults to the type name.
func NewEntityMapping(t reflect.Type, d dialect.Dialect) (*EntityMapping, error) {
	st := structType(t)
	if st == nil || st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity type %v is not a struct", ormerr.ErrConfiguration, t)
	}
	if !d.Valid() {
		return nil, fmt.Errorf("%w: entity %s: unsupported dialect %q", ormerr.ErrConfiguration, st.Name(), d)
	}
	m := &EntityMapping{
		entityType: st,
		table:      st.Name(),
		dialect:    d,
		navs:       make(map[string]*Navigation),
		logger:     slog.Default(),
	}
	for _, f := range entityFields(st) {
		if nav, ok := navigationOf(f); ok {
			m.navs[f.Name] = nav
		}
	}
	return m, nil
}

// EntityType returns the mapped struct type.
func (m *EntityMapping) EntityType() reflect.Type { return m.entityType }

// IsFrozen reports whether Freeze has completed successfully.
func (m *EntityMapping) IsFrozen() bool { return m.frozen.Load() != nil }

// SetLogger sets the logger used while deriving relationships.
func (m *EntityMapping) SetLogger(logger *slog.Logger) error {
	return m.mutate(func() error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	})
}

// TableName returns the configured table name.
func (m *EntityMapping) TableName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table
}

// Dialect returns the configured dialect.
func (m *EntityMapping) Dialect() dialect.Dialect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dialect
}

// SetTableName sets the table name.
func (m *EntityMapping) SetTableName(name string) error {
	return m.mutate(func() error {
		if name == "" {
			return fmt.Errorf("%w: entity %s: table name cannot be empty", ormerr.ErrConfiguration, m.entityType.Name())
		}
		m.table = name
		return nil
	})
}

// SetSchemaName sets the schema the table lives in.
func (m *EntityMapping) SetSchemaName(name string) error {
	return m.mutate(func() error {
		m.schema = name
		return nil
	})
}

// SetDatabaseName sets the database the table lives in.
func (m *EntityMapping) SetDatabaseName(name string) error {
	return m.mutate(func() error {
		m.database = name
		return nil
	})
}

// SetDialect changes the dialect statements are generated for.
func (m *EntityMapping) SetDialect(d dialect.Dialect) error {
	return m.mutate(func() error {
		if !d.Valid() {
			return fmt.Errorf("%w: entity %s: unsupported dialect %q", ormerr.ErrConfiguration, m.entityType.Name(), d)
		}
		m.dialect = d
		return nil
	})
}

// SetProperty registers the field name as a mapped property configured by
// opts. Registering an already mapped field replaces its configuration and
// keeps its registration position.
func (m *EntityMapping) SetProperty(name string, opts ...PropertyOption) error {
	return m.mutate(func() error {
		field, ok := m.entityType.FieldByName(name)
		if !ok || !field.IsExported() {
			return fmt.Errorf("%w: entity %s has no exported field %s", ormerr.ErrConfiguration, m.entityType.Name(), name)
		}
		if _, isNav := m.navs[name]; isNav {
			return fmt.Errorf("%w: entity %s: %s is a navigation property and cannot be mapped to a column",
				ormerr.ErrConfiguration, m.entityType.Name(), name)
		}
		p := newProperty(field)
		if err := m.configure(p, opts); err != nil {
			return err
		}
		for i, existing := range m.props {
			if existing.name == name {
				m.props[i] = p
				return nil
			}
		}
		m.props = append(m.props, p)
		return nil
	})
}

// UpdateProperty applies opts on top of an existing property registration.
func (m *EntityMapping) UpdateProperty(name string, opts ...PropertyOption) error {
	return m.mutate(func() error {
		for i, existing := range m.props {
			if existing.name != name {
				continue
			}
			p := existing.clone()
			if err := m.configure(p, opts); err != nil {
				return err
			}
			m.props[i] = p
			return nil
		}
		return fmt.Errorf("%w: entity %s: property %s is not mapped", ormerr.ErrConfiguration, m.entityType.Name(), name)
	})
}

// RemoveProperty unmaps the named properties. Unknown names are ignored.
func (m *EntityMapping) RemoveProperty(names ...string) error {
	return m.mutate(func() error {
		drop := make(map[string]struct{}, len(names))
		for _, n := range names {
			drop[n] = struct{}{}
		}
		kept := m.props[:0]
		for _, p := range m.props {
			if _, ok := drop[p.name]; !ok {
				kept = append(kept, p)
			}
		}
		for i := len(kept); i < len(m.props); i++ {
			m.props[i] = nil
		}
		m.props = kept
		return nil
	})
}

// Property returns a copy of the named property registration.
func (m *EntityMapping) Property(name string) (*Property, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.props {
		if p.name == name {
			return p.clone(), true
		}
	}
	return nil, false
}

// PropertyNames returns the mapped property names in registration order.
func (m *EntityMapping) PropertyNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.props))
	for i, p := range m.props {
		names[i] = p.name
	}
	return names
}

// Clone returns a new mutable mapping with deep copies of every property. The
// receiver is not modified, frozen or not.
func (m *EntityMapping) Clone() *EntityMapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &EntityMapping{
		entityType: m.entityType,
		table:      m.table,
		schema:     m.schema,
		database:   m.database,
		dialect:    m.dialect,
		props:      make([]*Property, len(m.props)),
		navs:       m.navs,
		logger:     m.logger,
	}
	for i, p := range m.props {
		c.props[i] = p.clone()
	}
	return c
}

// Freeze compiles the mapping into its immutable Registration. It is
// idempotent and safe for concurrent use: the derivation runs once and every
// caller observes the same fully derived Registration. When the derivation
// fails the mapping stays mutable.
func (m *EntityMapping) Freeze() (*Registration, error) {
	if r := m.frozen.Load(); r != nil {
		return r, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.frozen.Load(); r != nil {
		return r, nil
	}
	r, err := m.compile()
	if err != nil {
		return nil, err
	}
	m.frozen.Store(r)
	return r, nil
}

// mutate runs fn under the lock unless the mapping is frozen.
func (m *EntityMapping) mutate(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen.Load() != nil {
		return fmt.Errorf("%w: entity mapping for %s is frozen and can no longer be changed",
			ormerr.ErrState, m.entityType.Name())
	}
	return fn()
}

func (m *EntityMapping) configure(p *Property, opts []PropertyOption) error {
	for _, opt := range opts {
		opt(p)
	}
	if p.flags.Has(FlagPrimaryKey) {
		p.flags |= FlagExcludedFromUpdate
	}
	if p.column == "" {
		return fmt.Errorf("%w: entity %s: property %s has an empty column name", ormerr.ErrConfiguration, m.entityType.Name(), p.name)
	}
	if p.ref == nil {
		return nil
	}
	if p.ref.Navigation != "" {
		nav, ok := m.navs[p.ref.Navigation]
		if !ok || nav.kind != NavigationSingle {
			return fmt.Errorf("%w: entity %s: property %s references unknown single-valued navigation property %s",
				ormerr.ErrConfiguration, m.entityType.Name(), p.name, p.ref.Navigation)
		}
		if p.ref.Type == nil {
			p.ref.Type = nav.target
		} else if p.ref.Type != nav.target {
			return fmt.Errorf("%w: entity %s: property %s references %s but navigation property %s holds %s",
				ormerr.ErrConfiguration, m.entityType.Name(), p.name, p.ref.Type.Name(), nav.name, nav.target.Name())
		}
	}
	if p.ref.Type == nil || p.ref.Type.Kind() != reflect.Struct {
		return fmt.Errorf("%w: entity %s: property %s has a foreign key marker without a referenced entity type",
			ormerr.ErrConfiguration, m.entityType.Name(), p.name)
	}
	return nil
}
