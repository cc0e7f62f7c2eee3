// Package builder turns frozen entity registrations into SQL statement text.
//
// A StatementBuilder is bound to one Registration and dialect. Fixed
// statements (insert, update, select and delete by key) are generated once and
// cached; statements that depend on caller input (batch select, count, batch
// update and delete) are assembled per call. Dialect differences live in
// small hook types, one per file.
package builder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"

	"entitysql/internal/dialect"
	"entitysql/internal/mapping"
	"entitysql/internal/observability"
	"entitysql/internal/ormerr"
)

var (
	// ErrNoPrimaryKey is returned for by-key statements of entities without a primary key.
	ErrNoPrimaryKey = fmt.Errorf("%w: entity has no primary key", ormerr.ErrMappingShape)
	// ErrNoProperties is returned for any statement of an entity without mapped properties.
	ErrNoProperties = fmt.Errorf("%w: entity has no mapped properties", ormerr.ErrMappingShape)
	// ErrInvalidPaging is returned for negative skip or limit values.
	ErrInvalidPaging = fmt.Errorf("%w: invalid paging", ormerr.ErrConfiguration)
)

// hooks holds the statement fragments that differ between dialects.
type hooks interface {
	insert(b *StatementBuilder) (string, error)
	update(b *StatementBuilder) (string, error)
	page(q sq.SelectBuilder, ordered bool, skip, limit *int64) sq.SelectBuilder
	defaultValues() string
}

func hooksFor(d dialect.Dialect) hooks {
	switch d {
	case dialect.MsSql:
		return mssqlHooks{}
	case dialect.MySql:
		return mysqlHooks{}
	case dialect.PostgreSql:
		return postgresHooks{}
	case dialect.SQLite:
		return sqliteHooks{}
	case dialect.SqlAnywhere:
		return sqlAnywhereHooks{}
	}
	return genericHooks{}
}

type lazyStatement struct {
	once sync.Once
	sql  string
	err  error
}

func (l *lazyStatement) get(build func() (string, error)) (string, error) {
	l.once.Do(func() { l.sql, l.err = build() })
	return l.sql, l.err
}

// Option configures a StatementBuilder or a Cache.
type Option func(*options)

type options struct {
	metrics *observability.StatementMetrics
}

// WithMetrics counts every generated statement on m.
func WithMetrics(m *observability.StatementMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// StatementBuilder generates the SQL text for one frozen registration. It is
// safe for concurrent use.
type StatementBuilder struct {
	reg     *mapping.Registration
	dialect dialect.Dialect
	hooks   hooks
	metrics *observability.StatementMetrics

	insertStmt lazyStatement
	updateStmt lazyStatement
	selectStmt lazyStatement
	deleteStmt lazyStatement
}

// New returns a builder for reg using reg's dialect.
func New(reg *mapping.Registration, opts ...Option) *StatementBuilder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &StatementBuilder{
		reg:     reg,
		dialect: reg.Dialect(),
		hooks:   hooksFor(reg.Dialect()),
		metrics: o.metrics,
	}
}

// Registration returns the registration the builder generates statements for.
func (b *StatementBuilder) Registration() *mapping.Registration { return b.reg }

// Dialect returns the dialect of the generated statements.
func (b *StatementBuilder) Dialect() dialect.Dialect { return b.dialect }

// DelimitedIdentifier wraps name in the dialect's identifier delimiters.
func (b *StatementBuilder) DelimitedIdentifier(name string) string {
	return b.dialect.QuoteIdentifier(name)
}

// Parameter returns the parameter marker for name.
func (b *StatementBuilder) Parameter(name string) string {
	return b.dialect.Parameter(name)
}

// TableName returns the delimited, database and schema qualified table name.
// With a non-empty alias it returns the form used in FROM and JOIN clauses.
func (b *StatementBuilder) TableName(alias string) string {
	var parts []string
	for _, part := range []string{b.reg.DatabaseName(), b.reg.SchemaName(), b.reg.TableName()} {
		if part != "" {
			parts = append(parts, b.DelimitedIdentifier(part))
		}
	}
	full := strings.Join(parts, ".")
	if alias == "" {
		return full
	}
	return full + " AS " + b.DelimitedIdentifier(alias)
}

// TableReference returns what columns are qualified with: the delimited alias
// when there is one, the full table name otherwise.
func (b *StatementBuilder) TableReference(alias string) string {
	if alias != "" {
		return b.DelimitedIdentifier(alias)
	}
	return b.TableName("")
}

// ColumnName returns the delimited column of p, qualified by the delimited
// alias when alias is set.
func (b *StatementBuilder) ColumnName(p *mapping.Property, alias string) string {
	col := b.DelimitedIdentifier(p.ColumnName())
	if alias == "" {
		return col
	}
	return b.DelimitedIdentifier(alias) + "." + col
}

// QualifiedColumnName returns the column of p qualified by TableReference(alias).
func (b *StatementBuilder) QualifiedColumnName(p *mapping.Property, alias string) string {
	return b.TableReference(alias) + "." + b.DelimitedIdentifier(p.ColumnName())
}

// selectColumns lists props for a select clause. Columns whose name differs
// from the property are aliased to the property name.
func (b *StatementBuilder) selectColumns(props []*mapping.Property, qualifier string) string {
	cols := make([]string, len(props))
	for i, p := range props {
		col := b.DelimitedIdentifier(p.ColumnName())
		if qualifier != "" {
			col = qualifier + "." + col
		}
		if p.ColumnName() != p.Name() {
			col += " AS " + b.DelimitedIdentifier(p.Name())
		}
		cols[i] = col
	}
	return strings.Join(cols, ", ")
}

// plainColumns lists the delimited columns of props with an optional qualifier.
func (b *StatementBuilder) plainColumns(props []*mapping.Property, qualifier string) string {
	cols := make([]string, len(props))
	for i, p := range props {
		cols[i] = b.DelimitedIdentifier(p.ColumnName())
		if qualifier != "" {
			cols[i] = qualifier + "." + cols[i]
		}
	}
	return strings.Join(cols, ", ")
}

// ColumnEnumerationForSelect lists every mapped column. With an alias the
// columns are qualified by it.
func (b *StatementBuilder) ColumnEnumerationForSelect(alias string) string {
	qualifier := ""
	if alias != "" {
		qualifier = b.DelimitedIdentifier(alias)
	}
	return b.selectColumns(b.reg.Properties(), qualifier)
}

// QualifiedColumnEnumerationForSelect lists every mapped column qualified by
// TableReference(alias), as needed when several tables are joined.
func (b *StatementBuilder) QualifiedColumnEnumerationForSelect(alias string) string {
	return b.selectColumns(b.reg.Properties(), b.TableReference(alias))
}

// ColumnEnumerationForInsert lists the columns written by inserts.
func (b *StatementBuilder) ColumnEnumerationForInsert() string {
	return b.plainColumns(b.reg.InsertProperties(), "")
}

// ParamEnumerationForInsert lists the parameters matching ColumnEnumerationForInsert.
func (b *StatementBuilder) ParamEnumerationForInsert() string {
	props := b.reg.InsertProperties()
	params := make([]string, len(props))
	for i, p := range props {
		params[i] = b.Parameter(p.Name())
	}
	return strings.Join(params, ", ")
}

// UpdateClause returns the "col = @Prop" assignments of an update.
func (b *StatementBuilder) UpdateClause() string {
	props := b.reg.UpdateProperties()
	sets := make([]string, len(props))
	for i, p := range props {
		sets[i] = b.DelimitedIdentifier(p.ColumnName()) + " = " + b.Parameter(p.Name())
	}
	return strings.Join(sets, ", ")
}

// KeysWhereClause returns the primary key predicate, qualified by the alias
// when one is given.
func (b *StatementBuilder) KeysWhereClause(alias string) string {
	keys := b.reg.KeyProperties()
	conds := make([]string, len(keys))
	for i, p := range keys {
		conds[i] = b.ColumnName(p, alias) + " = " + b.Parameter(p.Name())
	}
	return strings.Join(conds, " AND ")
}

// RefreshColumnSelection lists props for reading them back after a write.
func (b *StatementBuilder) RefreshColumnSelection(props []*mapping.Property) string {
	return b.selectColumns(props, "")
}

func (b *StatementBuilder) requireProperties() error {
	if len(b.reg.Properties()) == 0 {
		return fmt.Errorf("%w: %s", ErrNoProperties, b.reg.EntityName())
	}
	return nil
}

func (b *StatementBuilder) requireKeys() error {
	if err := b.requireProperties(); err != nil {
		return err
	}
	if len(b.reg.KeyProperties()) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, b.reg.EntityName())
	}
	return nil
}

func (b *StatementBuilder) record(kind string) {
	b.metrics.RecordStatementBuilt(context.Background(), b.dialect.String(), b.reg.EntityName(), kind)
}

// Cache hands out one StatementBuilder per {dialect, registration} pair.
type Cache struct {
	mu       sync.RWMutex
	builders map[cacheKey]*StatementBuilder
	opts     []Option
}

type cacheKey struct {
	registration uint64
	dialect      dialect.Dialect
}

// NewCache returns an empty cache; opts are applied to every builder it creates.
func NewCache(opts ...Option) *Cache {
	return &Cache{builders: make(map[cacheKey]*StatementBuilder), opts: opts}
}

// Builder returns the cached builder for reg, creating it on first use.
func (c *Cache) Builder(reg *mapping.Registration) *StatementBuilder {
	key := cacheKey{registration: reg.ID(), dialect: reg.Dialect()}

	c.mu.RLock()
	b, ok := c.builders[key]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.builders[key]; ok {
		return b
	}
	b = New(reg, c.opts...)
	c.builders[key] = b
	return b
}

// Len returns the number of cached builders.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.builders)
}
