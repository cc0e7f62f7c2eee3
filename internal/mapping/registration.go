package mapping

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync/atomic"

	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

var registrationIDs atomic.Uint64

// Registration is the frozen, immutable mapping of an entity type. It is safe
// for concurrent use and carries the relationships derived at freeze time.
type Registration struct {
	id         uint64
	entityType reflect.Type
	table      string
	schema     string
	database   string
	dialect    dialect.Dialect
	logger     *slog.Logger

	props       []*Property
	byName      map[string]*Property
	keys        []*Property
	insertProps []*Property
	updateProps []*Property
	refreshIns  []*Property
	refreshUpd  []*Property
	generated   []*Property

	navs     map[string]*Navigation
	navOrder []*Navigation

	childParent    []*Relationship
	parentChildren []*Relationship
}

func (m *EntityMapping) compile() (*Registration, error) {
	r := &Registration{
		id:         registrationIDs.Add(1),
		entityType: m.entityType,
		table:      m.table,
		schema:     m.schema,
		database:   m.database,
		dialect:    m.dialect,
		logger:     m.logger,
		byName:     make(map[string]*Property, len(m.props)),
		navs:       m.navs,
	}

	columns := make(map[string]string, len(m.props))
	maxOrder := -1
	for _, src := range m.props {
		p := src.clone()
		if other, dup := columns[p.column]; dup {
			return nil, fmt.Errorf("%w: entity %s: properties %s and %s both map to column %s",
				ormerr.ErrConfiguration, m.entityType.Name(), other, p.name, p.column)
		}
		columns[p.column] = p.name
		if p.order > maxOrder {
			maxOrder = p.order
		}
		r.props = append(r.props, p)
		r.byName[p.name] = p
	}

	// Unset orders continue after the explicit maximum, in registration order.
	next := maxOrder + 1
	for _, p := range r.props {
		if p.order < 0 {
			p.order = next
			next++
		}
	}
	sort.SliceStable(r.props, func(i, j int) bool { return r.props[i].order < r.props[j].order })

	for _, p := range r.props {
		if p.IsPrimaryKey() {
			r.keys = append(r.keys, p)
		}
		if !p.IsExcludedFromInsert() {
			r.insertProps = append(r.insertProps, p)
		}
		if !p.IsPrimaryKey() && !p.IsExcludedFromUpdate() {
			r.updateProps = append(r.updateProps, p)
		}
		if p.IsRefreshedOnInsert() {
			r.refreshIns = append(r.refreshIns, p)
		}
		if p.IsRefreshedOnUpdate() {
			r.refreshUpd = append(r.refreshUpd, p)
		}
		if p.IsPrimaryKey() && p.IsExcludedFromInsert() && p.IsRefreshedOnInsert() {
			r.generated = append(r.generated, p)
		}
	}

	for _, f := range entityFields(m.entityType) {
		if nav, ok := m.navs[f.Name]; ok {
			r.navOrder = append(r.navOrder, nav)
		}
	}

	var err error
	if r.childParent, err = deriveChildParentRelationships(r); err != nil {
		return nil, err
	}
	r.parentChildren = deriveParentChildrenRelationships(r, r.logger)
	return r, nil
}

// ID returns a process-unique identifier of the registration.
func (r *Registration) ID() uint64 { return r.id }

// EntityType returns the mapped struct type.
func (r *Registration) EntityType() reflect.Type { return r.entityType }

// EntityName returns the struct type name, used in error messages.
func (r *Registration) EntityName() string { return r.entityType.Name() }

// TableName returns the undelimited table name.
func (r *Registration) TableName() string { return r.table }

// SchemaName returns the schema name, if any.
func (r *Registration) SchemaName() string { return r.schema }

// DatabaseName returns the database name, if any.
func (r *Registration) DatabaseName() string { return r.database }

// Dialect returns the dialect statements are generated for.
func (r *Registration) Dialect() dialect.Dialect { return r.dialect }

// IsFrozen is always true; it mirrors EntityMapping.IsFrozen.
func (r *Registration) IsFrozen() bool { return true }

// Properties returns every mapped property ordered by column order.
func (r *Registration) Properties() []*Property { return r.props }

// Property returns the named property.
func (r *Registration) Property(name string) (*Property, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// KeyProperties returns the primary key properties ordered by column order.
func (r *Registration) KeyProperties() []*Property { return r.keys }

// InsertProperties returns the properties written by INSERT statements.
func (r *Registration) InsertProperties() []*Property { return r.insertProps }

// UpdateProperties returns the properties written by UPDATE statements.
func (r *Registration) UpdateProperties() []*Property { return r.updateProps }

// RefreshOnInsertProperties returns the properties read back after inserts.
func (r *Registration) RefreshOnInsertProperties() []*Property { return r.refreshIns }

// RefreshOnUpdateProperties returns the properties read back after updates.
func (r *Registration) RefreshOnUpdateProperties() []*Property { return r.refreshUpd }

// InsertKeyDatabaseGeneratedProperties returns the primary key properties the
// database generates on insert.
func (r *Registration) InsertKeyDatabaseGeneratedProperties() []*Property { return r.generated }

// Navigation returns the named navigation property.
func (r *Registration) Navigation(name string) (*Navigation, bool) {
	n, ok := r.navs[name]
	return n, ok
}

// Navigations returns the navigation properties in field order.
func (r *Registration) Navigations() []*Navigation { return r.navOrder }

// ChildParentRelationships returns the relationships in which this entity
// holds the foreign key.
func (r *Registration) ChildParentRelationships() []*Relationship { return r.childParent }

// ParentChildrenRelationships returns the relationships in which this entity
// owns a collection of children.
func (r *Registration) ParentChildrenRelationships() []*Relationship { return r.parentChildren }

// Clone returns a new mutable mapping initialized from the registration.
func (r *Registration) Clone() *EntityMapping {
	m := &EntityMapping{
		entityType: r.entityType,
		table:      r.table,
		schema:     r.schema,
		database:   r.database,
		dialect:    r.dialect,
		navs:       r.navs,
		logger:     r.logger,
	}
	for _, p := range r.props {
		m.props = append(m.props, p.clone())
	}
	return m
}

// NewInstance allocates a new zero entity and returns a pointer to it.
func (r *Registration) NewInstance() reflect.Value {
	return reflect.New(r.entityType)
}
