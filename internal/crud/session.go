// Package crud runs the generated statements: inserts, updates and deletes
// of single entities with read back of database generated columns, filtered
// bulk updates and deletes, counts, and selects that materialize joined
// entity graphs.
package crud

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"entitysql/internal/builder"
	"entitysql/internal/dbexec"
	"entitysql/internal/dialect"
	"entitysql/internal/format"
	"entitysql/internal/join"
	"entitysql/internal/logging"
	"entitysql/internal/mapping"
	"entitysql/internal/materialize"
	"entitysql/internal/observability"
	"entitysql/internal/ormerr"
)

// Session runs entity statements against one database. It is safe for
// concurrent use when its executor is.
type Session struct {
	db       *sql.DB
	exec     dbexec.QueryExecutor
	custom   bool
	registry *mapping.Registry
	builders *builder.Cache
	logger   *logging.Logger
	metrics  *observability.StatementMetrics
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger logs every executed statement at debug level.
func WithLogger(logger *logging.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics records statement builds, executions and materialized rows.
func WithMetrics(m *observability.StatementMetrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithExecutor runs statements on exec instead of the session's database
// handle. Statement batches then run on exec as is, so exec must keep one
// connection for their duration.
func WithExecutor(exec dbexec.QueryExecutor) SessionOption {
	return func(s *Session) {
		s.exec = exec
		s.custom = true
	}
}

// NewSession returns a session over db using the mappings of registry.
func NewSession(db *sql.DB, registry *mapping.Registry, opts ...SessionOption) *Session {
	s := &Session{db: db, registry: registry, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	if s.exec == nil {
		s.exec = dbexec.NewStandardExecutor(db)
	}
	s.builders = builder.NewCache(builder.WithMetrics(s.metrics))
	return s
}

// Registry returns the session's mapping registry.
func (s *Session) Registry() *mapping.Registry { return s.registry }

// Insert inserts entity, a pointer to a mapped struct, and reads back the
// columns the database generates.
func (s *Session) Insert(ctx context.Context, entity any, opts ...Option) error {
	o := newStatementOptions(opts)
	v, reg, err := s.entityArg(entity, o)
	if err != nil {
		return err
	}
	return s.run(ctx, "insert", reg, o, func(ctx context.Context) error {
		b := s.builders.Builder(reg)
		text, err := b.FullInsertStatement()
		if err != nil {
			return err
		}
		refresh := reg.RefreshOnInsertProperties()
		if len(refresh) == 0 {
			_, err := s.execOne(ctx, s.executor(o), b.Dialect(), text, s.params(reg, v, o))
			return err
		}
		found, err := s.refresh(ctx, b.Dialect(), o, text, s.params(reg, v, o), entity, refresh)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("insert into %s returned no generated values", reg.EntityName())
		}
		return nil
	})
}

// Get loads the row whose primary key matches the key properties of entity
// into entity. It reports whether the row exists.
func (s *Session) Get(ctx context.Context, entity any, opts ...Option) (bool, error) {
	o := newStatementOptions(opts)
	v, reg, err := s.entityArg(entity, o)
	if err != nil {
		return false, err
	}
	var found bool
	err = s.run(ctx, "get", reg, o, func(ctx context.Context) error {
		b := s.builders.Builder(reg)
		text, err := b.FullSingleSelectStatement()
		if err != nil {
			return err
		}
		rows, err := s.queryOne(ctx, s.executor(o), b.Dialect(), text, s.params(reg, v, o))
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}
		if err := materialize.ScanInto(rows, entity, reg.Properties()); err != nil {
			return err
		}
		found = true
		s.metrics.RecordRowsMaterialized(ctx, reg.EntityName(), 1)
		return rows.Err()
	})
	return found, err
}

// Update writes the updatable properties of entity to the row matching its
// primary key and reads back refresh-on-update columns. It reports whether
// a row matched.
func (s *Session) Update(ctx context.Context, entity any, opts ...Option) (bool, error) {
	o := newStatementOptions(opts)
	v, reg, err := s.entityArg(entity, o)
	if err != nil {
		return false, err
	}
	var updated bool
	err = s.run(ctx, "update", reg, o, func(ctx context.Context) error {
		b := s.builders.Builder(reg)
		text, err := b.FullSingleUpdateStatement()
		if err != nil {
			return err
		}
		refresh := reg.RefreshOnUpdateProperties()
		if len(refresh) == 0 {
			res, err := s.execOne(ctx, s.executor(o), b.Dialect(), text, s.params(reg, v, o))
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			updated = n > 0
			return err
		}
		updated, err = s.refresh(ctx, b.Dialect(), o, text, s.params(reg, v, o), entity, refresh)
		return err
	})
	return updated, err
}

// Delete deletes the row matching the primary key of entity. It reports
// whether a row was deleted.
func (s *Session) Delete(ctx context.Context, entity any, opts ...Option) (bool, error) {
	o := newStatementOptions(opts)
	v, reg, err := s.entityArg(entity, o)
	if err != nil {
		return false, err
	}
	var deleted bool
	err = s.run(ctx, "delete", reg, o, func(ctx context.Context) error {
		b := s.builders.Builder(reg)
		text, err := b.FullSingleDeleteStatement()
		if err != nil {
			return err
		}
		res, err := s.execOne(ctx, s.executor(o), b.Dialect(), text, s.params(reg, v, o))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}

// Find selects entities of type T, joined, filtered, ordered and paged as
// opts describe. Joined entities requested with MapResults are wired into
// the navigation properties of the results.
func Find[T any](ctx context.Context, s *Session, opts ...Option) ([]*T, error) {
	o := newStatementOptions(opts)
	reg, err := s.registrationFor(reflect.TypeFor[T](), o.mapping)
	if err != nil {
		return nil, err
	}
	var results []*T
	err = s.run(ctx, "find", reg, o, func(ctx context.Context) error {
		plan, err := s.plan(reg, o)
		if err != nil {
			return err
		}
		where, orderBy, err := clauses(plan, o)
		if err != nil {
			return err
		}
		b := plan.Participants[0].Builder
		var text string
		if len(o.joins) == 0 {
			text, err = b.FullBatchSelectStatement(builder.SelectQuery{
				Alias: o.alias, Where: where, OrderBy: orderBy, Skip: o.skip, Limit: o.top,
			})
		} else {
			text, err = b.FullSelectStatement(plan.SelectClause(), plan.FromClause(), where, orderBy, o.skip, o.top)
		}
		if err != nil {
			return err
		}

		parser, err := materialize.NewParser[T](plan)
		if err != nil {
			return err
		}
		regs := make([]*mapping.Registration, len(plan.Participants))
		for i, part := range plan.Participants {
			regs[i] = part.Builder.Registration()
		}
		scanner := materialize.NewScanner(regs...)

		rows, err := s.queryOne(ctx, s.executor(o), b.Dialect(), text, o.params)
		if err != nil {
			return err
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			row, err := scanner.Scan(rows)
			if err != nil {
				return err
			}
			if err := parser.Add(row); err != nil {
				return err
			}
			n++
		}
		if err := rows.Err(); err != nil {
			return err
		}
		s.metrics.RecordRowsMaterialized(ctx, reg.EntityName(), n)
		results = parser.Results()
		return nil
	})
	return results, err
}

// Count returns the number of rows of T, or of the joined rows when opts
// contain joins, matching the filter.
func Count[T any](ctx context.Context, s *Session, opts ...Option) (int64, error) {
	o := newStatementOptions(opts)
	reg, err := s.registrationFor(reflect.TypeFor[T](), o.mapping)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.run(ctx, "count", reg, o, func(ctx context.Context) error {
		plan, err := s.plan(reg, o)
		if err != nil {
			return err
		}
		where, _, err := clauses(plan, o)
		if err != nil {
			return err
		}
		b := plan.Participants[0].Builder
		text, err := b.FullCountStatementFrom(plan.FromClause(), where)
		if err != nil {
			return err
		}
		rows, err := s.queryOne(ctx, s.executor(o), b.Dialect(), text, o.params)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return sql.ErrNoRows
		}
		if err := rows.Scan(&count); err != nil {
			return err
		}
		return rows.Err()
	})
	return count, err
}

// BulkUpdate writes the updatable properties of values to every row matching
// the filter and returns the number of rows affected. Without a filter every
// row is updated.
func BulkUpdate[T any](ctx context.Context, s *Session, values *T, opts ...Option) (int64, error) {
	o := newStatementOptions(opts)
	if values == nil {
		return 0, fmt.Errorf("%w: bulk update without values", ormerr.ErrConfiguration)
	}
	v, reg, err := s.entityArg(values, o)
	if err != nil {
		return 0, err
	}
	var affected int64
	err = s.run(ctx, "bulk_update", reg, o, func(ctx context.Context) error {
		b := s.builders.Builder(reg)
		where, err := bulkWhere(b, o)
		if err != nil {
			return err
		}
		text, err := b.FullBatchUpdateStatement(where)
		if err != nil {
			return err
		}
		res, err := s.execOne(ctx, s.executor(o), b.Dialect(), text, s.params(reg, v, o))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// BulkDelete deletes every row of T matching the filter and returns the
// number of rows affected. Without a filter every row is deleted.
func BulkDelete[T any](ctx context.Context, s *Session, opts ...Option) (int64, error) {
	o := newStatementOptions(opts)
	reg, err := s.registrationFor(reflect.TypeFor[T](), o.mapping)
	if err != nil {
		return 0, err
	}
	var affected int64
	err = s.run(ctx, "bulk_delete", reg, o, func(ctx context.Context) error {
		b := s.builders.Builder(reg)
		where, err := bulkWhere(b, o)
		if err != nil {
			return err
		}
		text, err := b.FullBatchDeleteStatement(where)
		if err != nil {
			return err
		}
		res, err := s.execOne(ctx, s.executor(o), b.Dialect(), text, o.params)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// run wraps one operation in its timeout, span and metrics.
func (s *Session) run(ctx context.Context, op string, reg *mapping.Registration, o *statementOptions, fn func(context.Context) error) (err error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	ctx, span := observability.StartSpan(ctx, "entitysql."+op,
		attribute.String("entitysql.entity", reg.EntityName()),
		attribute.String("entitysql.dialect", reg.Dialect().String()),
		attribute.Int("entitysql.joins", len(o.joins)),
	)
	start := time.Now()
	defer func() {
		s.metrics.RecordStatement(ctx, op, reg.EntityName(), time.Since(start), err)
		observability.FinishSpan(span, err)
	}()
	return fn(ctx)
}

func (s *Session) executor(o *statementOptions) dbexec.QueryExecutor {
	if o.tx != nil {
		return dbexec.NewTxExecutor(o.tx)
	}
	return s.exec
}

// pin returns an executor that keeps one connection for a statement batch.
func (s *Session) pin(ctx context.Context, o *statementOptions, batch bool) (dbexec.QueryExecutor, func(), error) {
	if !batch || o.tx != nil || s.custom || s.db == nil {
		return s.executor(o), func() {}, nil
	}
	conn, err := dbexec.NewConnExecutor(ctx, dbexec.ConnExecutorConfig{DB: s.db})
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { _ = conn.Close() }, nil
}

// refresh runs a write batch that reads refreshed columns back and scans them
// into entity. Setup statements run first, then the read-back query, then the
// staging cleanup, all on one connection. It reports whether a row came back.
func (s *Session) refresh(ctx context.Context, d dialect.Dialect, o *statementOptions, text string, params map[string]any, entity any, props []*mapping.Property) (found bool, err error) {
	batch := builder.SplitBatch(text)
	exec, release, err := s.pin(ctx, o, len(batch.Setup)+len(batch.Cleanup) > 0)
	if err != nil {
		return false, err
	}
	defer release()

	defer func() {
		for _, stmt := range batch.Cleanup {
			if _, cerr := s.execOne(ctx, exec, d, stmt, nil); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	for _, stmt := range batch.Setup {
		if _, err := s.execOne(ctx, exec, d, stmt, params); err != nil {
			return false, err
		}
	}
	return s.readBack(ctx, exec, d, batch.Query, params, entity, props)
}

// readBack scans the first row of the first non-empty result set into entity.
func (s *Session) readBack(ctx context.Context, exec dbexec.QueryExecutor, d dialect.Dialect, query string, params map[string]any, entity any, props []*mapping.Property) (bool, error) {
	rows, err := s.queryOne(ctx, exec, d, query, params)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for {
		if rows.Next() {
			if err := materialize.ScanInto(rows, entity, props); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := rows.Err(); err != nil {
			return false, err
		}
		if !rows.NextResultSet() {
			return false, rows.Err()
		}
	}
}

func (s *Session) queryOne(ctx context.Context, exec dbexec.QueryExecutor, d dialect.Dialect, text string, params map[string]any) (dbexec.Rows, error) {
	bound, args, err := dbexec.Bind(d, text, params)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("executing query", slog.String("dialect", d.String()), slog.String("sql", bound), slog.Int("args", len(args)))
	return exec.QueryContext(ctx, bound, args...)
}

func (s *Session) execOne(ctx context.Context, exec dbexec.QueryExecutor, d dialect.Dialect, text string, params map[string]any) (sql.Result, error) {
	bound, args, err := dbexec.Bind(d, text, params)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("executing statement", slog.String("dialect", d.String()), slog.String("sql", bound), slog.Int("args", len(args)))
	return exec.ExecContext(ctx, bound, args...)
}

// entityArg validates a pointer to a mapped struct and returns its value and
// registration.
func (s *Session) entityArg(entity any, o *statementOptions) (reflect.Value, *mapping.Registration, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("%w: expected a non-nil pointer to an entity struct, got %T",
			ormerr.ErrConfiguration, entity)
	}
	reg, err := s.registrationFor(v.Elem().Type(), o.mapping)
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return v.Elem(), reg, nil
}

func (s *Session) registrationFor(t reflect.Type, override *mapping.Registration) (*mapping.Registration, error) {
	if override == nil {
		return s.registry.Registration(t)
	}
	if override.EntityType() != t {
		return nil, fmt.Errorf("%w: mapping of %s cannot be used for %s",
			ormerr.ErrConfiguration, override.EntityName(), t.Name())
	}
	return override, nil
}

// params returns the statement parameters: the caller's values overlaid with
// every mapped property of v.
func (s *Session) params(reg *mapping.Registration, v reflect.Value, o *statementOptions) map[string]any {
	params := make(map[string]any, len(reg.Properties())+len(o.params))
	for name, value := range o.params {
		params[name] = value
	}
	for _, p := range reg.Properties() {
		params[p.Name()] = p.Field(v).Interface()
	}
	return params
}

func (s *Session) plan(reg *mapping.Registration, o *statementOptions) (*join.Plan, error) {
	specs := make([]join.Spec, len(o.joins))
	for i, j := range o.joins {
		jreg, err := s.registrationFor(j.entity, j.mapping)
		if err != nil {
			return nil, err
		}
		specs[i] = join.Spec{
			Builder:        s.builders.Builder(jreg),
			Alias:          j.alias,
			Kind:           j.kind,
			On:             j.on,
			From:           j.from,
			FromNavigation: j.fromNavigation,
			ToNavigation:   j.toNavigation,
			MapResults:     j.mapResults,
		}
	}
	return join.Resolve(s.builders.Builder(reg), o.alias, specs)
}

// clauses formats the WHERE and ORDER BY templates with the main entity active.
func clauses(plan *join.Plan, o *statementOptions) (where, orderBy string, err error) {
	for _, c := range []struct {
		template string
		out      *string
	}{{o.where, &where}, {o.orderBy, &orderBy}} {
		if c.template == "" {
			continue
		}
		if err := plan.Resolver.Activate(plan.Participants[0].Reference()); err != nil {
			return "", "", err
		}
		if *c.out, err = format.Format(plan.Resolver, c.template); err != nil {
			return "", "", err
		}
	}
	return where, orderBy, nil
}

func bulkWhere(b *builder.StatementBuilder, o *statementOptions) (string, error) {
	if len(o.joins) > 0 || o.alias != "" {
		return "", fmt.Errorf("%w: bulk statements on %s take neither joins nor an alias",
			ormerr.ErrConfiguration, b.Registration().EntityName())
	}
	if o.where == "" {
		return "", nil
	}
	return format.Format(format.NewSingleResolver(b, ""), o.where)
}
