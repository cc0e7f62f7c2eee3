package crud

import (
	"database/sql"
	"maps"
	"reflect"
	"time"

	"entitysql/internal/join"
	"entitysql/internal/mapping"
)

// Option configures a single statement.
type Option func(*statementOptions)

type statementOptions struct {
	mapping *mapping.Registration
	where   string
	orderBy string
	alias   string
	skip    *int64
	top     *int64
	timeout time.Duration
	tx      *sql.Tx
	params  map[string]any
	joins   []joinOptions
}

func newStatementOptions(opts []Option) *statementOptions {
	o := &statementOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMapping replaces the registry's default mapping of the statement's
// entity, for example with a frozen Registry.Override clone.
func WithMapping(reg *mapping.Registration) Option {
	return func(o *statementOptions) { o.mapping = reg }
}

// Where sets the filter, a template such as "{LastName:C} = {name:P}".
// Unqualified placeholders resolve against the main entity.
func Where(template string) Option {
	return func(o *statementOptions) { o.where = template }
}

// OrderBy sets the ORDER BY template.
func OrderBy(template string) Option {
	return func(o *statementOptions) { o.orderBy = template }
}

// WithAlias aliases the main entity's table.
func WithAlias(alias string) Option {
	return func(o *statementOptions) { o.alias = alias }
}

// Skip skips the first n rows.
func Skip(n int64) Option {
	return func(o *statementOptions) { o.skip = &n }
}

// Top limits the result to n rows.
func Top(n int64) Option {
	return func(o *statementOptions) { o.top = &n }
}

// WithTimeout bounds the statement's execution.
func WithTimeout(d time.Duration) Option {
	return func(o *statementOptions) { o.timeout = d }
}

// WithTx runs the statement inside tx.
func WithTx(tx *sql.Tx) Option {
	return func(o *statementOptions) { o.tx = tx }
}

// WithParams supplies values for the parameters of Where and OrderBy
// templates. Repeated calls merge.
func WithParams(params map[string]any) Option {
	return func(o *statementOptions) {
		if o.params == nil {
			o.params = make(map[string]any, len(params))
		}
		maps.Copy(o.params, params)
	}
}

// JoinOption configures one joined entity.
type JoinOption func(*joinOptions)

type joinOptions struct {
	entity         reflect.Type
	mapping        *mapping.Registration
	kind           join.Kind
	alias          string
	from           string
	on             string
	fromNavigation string
	toNavigation   string
	mapResults     bool
}

// Join joins entity J. Without JoinOn the relationship is discovered from
// the mappings.
func Join[J any](kind join.Kind, opts ...JoinOption) Option {
	j := joinOptions{entity: reflect.TypeFor[J](), kind: kind}
	for _, opt := range opts {
		opt(&j)
	}
	return func(o *statementOptions) { o.joins = append(o.joins, j) }
}

// InnerJoin joins entity J with an INNER JOIN.
func InnerJoin[J any](opts ...JoinOption) Option {
	return Join[J](join.Inner, opts...)
}

// LeftOuterJoin joins entity J with a LEFT OUTER JOIN.
func LeftOuterJoin[J any](opts ...JoinOption) Option {
	return Join[J](join.LeftOuter, opts...)
}

// JoinAlias aliases the joined table.
func JoinAlias(alias string) JoinOption {
	return func(j *joinOptions) { j.alias = alias }
}

// JoinFrom names the alias or table the entity is joined to.
func JoinFrom(reference string) JoinOption {
	return func(j *joinOptions) { j.from = reference }
}

// JoinOn sets an explicit ON template. Unqualified placeholders resolve
// against the joined entity.
func JoinOn(template string) JoinOption {
	return func(j *joinOptions) { j.on = template }
}

// Navigation names the navigation properties linking the two sides: from on
// the entity joined to, to on the joined entity. Either may be empty.
func Navigation(from, to string) JoinOption {
	return func(j *joinOptions) {
		j.fromNavigation = from
		j.toNavigation = to
	}
}

// JoinMapping replaces the default mapping of the joined entity.
func JoinMapping(reg *mapping.Registration) JoinOption {
	return func(j *joinOptions) { j.mapping = reg }
}

// MapResults populates the navigation properties between the joined entity
// and the one it is joined to.
func MapResults() JoinOption {
	return func(j *joinOptions) { j.mapResults = true }
}
