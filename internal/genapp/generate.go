package genapp

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"golang.org/x/sync/errgroup"

	"entitysql/internal/builder"
	"entitysql/internal/dialect"
	"entitysql/internal/format"
	"entitysql/internal/join"
	"entitysql/internal/mapping"
	"entitysql/internal/ormerr"
	"entitysql/internal/samplemodel"
)

// sampleJoin is a joined select printed for every dialect.
type sampleJoin struct {
	title     string
	main      reflect.Type
	mainAlias string
	joins     []sampleJoinPart
	where     string
	orderBy   string
}

type sampleJoinPart struct {
	entity         reflect.Type
	alias          string
	kind           join.Kind
	from           string
	fromNavigation string
}

var sampleJoins = []sampleJoin{
	{
		title:     "employees with workstation and building",
		main:      reflect.TypeFor[samplemodel.Employee](),
		mainAlias: "e",
		joins: []sampleJoinPart{
			{entity: reflect.TypeFor[samplemodel.Workstation](), alias: "w", kind: join.Inner},
			{entity: reflect.TypeFor[samplemodel.Building](), alias: "b", kind: join.LeftOuter, from: "w"},
		},
		where:   "{w.AccessLevel:TC} >= {minLevel:P}",
		orderBy: "{LastName:TC}, {FirstName:TC}",
	},
	{
		title:     "employees with their manager",
		main:      reflect.TypeFor[samplemodel.Employee](),
		mainAlias: "e",
		joins: []sampleJoinPart{
			{entity: reflect.TypeFor[samplemodel.Employee](), alias: "m", kind: join.LeftOuter, from: "e", fromNavigation: "Manager"},
		},
		orderBy: "{m.LastName:TC}",
	},
}

// errWriter keeps the first write error so that output code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(f string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, f, args...)
}

// statement prints one batch, one statement per line.
func (ew *errWriter) statement(label string, text string, err error) {
	if err != nil {
		ew.printf("-- %s: %v\n\n", label, err)
		return
	}
	ew.printf("-- %s\n", label)
	for _, stmt := range builder.Statements(text) {
		ew.printf("%s;\n", stmt)
	}
	ew.printf("\n")
}

// Generate prints the statements of the selected entities for every
// configured dialect, followed by the joined select examples. Dialects are
// generated concurrently over one builder cache and printed in configuration
// order.
func (a *App) Generate(w io.Writer) error {
	dialects, err := a.cfg.Generate.GenerateDialects()
	if err != nil {
		return err
	}

	cache := builder.NewCache(builder.WithMetrics(a.statementMetrics))
	outputs := make([]bytes.Buffer, len(dialects))
	var g errgroup.Group
	for i, d := range dialects {
		g.Go(func() error {
			return a.generateDialect(&outputs[i], cache, d)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range outputs {
		if _, err := outputs[i].WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) generateDialect(w io.Writer, cache *builder.Cache, d dialect.Dialect) error {
	reg, err := a.newRegistry(d)
	if err != nil {
		return err
	}
	entities, err := a.selectedEntities(reg)
	if err != nil {
		return err
	}

	ew := &errWriter{w: w}
	for _, t := range entities {
		r, err := reg.Registration(t)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		writeEntityStatements(ew, cache.Builder(r))
	}

	for _, sj := range sampleJoins {
		if !containsAll(entities, sj) {
			continue
		}
		text, err := joinedSelect(reg, cache, sj)
		ew.statement(fmt.Sprintf("%s: %s", d, sj.title), text, err)
	}
	a.logger.Debug("generated statements",
		slog.String("dialect", d.String()),
		slog.Int("entities", len(entities)),
	)
	return ew.err
}

// selectedEntities resolves generate.entities against the registry. An empty
// selection means every sample entity.
func (a *App) selectedEntities(reg *mapping.Registry) ([]reflect.Type, error) {
	if len(a.cfg.Generate.Entities) == 0 {
		return samplemodel.Entities(), nil
	}
	seen := make(map[reflect.Type]bool)
	var out []reflect.Type
	for _, name := range a.cfg.Generate.Entities {
		t, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown entity %q", ormerr.ErrConfiguration, name)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

func containsAll(entities []reflect.Type, sj sampleJoin) bool {
	has := func(t reflect.Type) bool {
		for _, e := range entities {
			if e == t {
				return true
			}
		}
		return false
	}
	if !has(sj.main) {
		return false
	}
	for _, j := range sj.joins {
		if !has(j.entity) {
			return false
		}
	}
	return true
}

func writeEntityStatements(ew *errWriter, b *builder.StatementBuilder) {
	reg := b.Registration()
	label := func(kind string) string {
		return fmt.Sprintf("%s: %s %s", b.Dialect(), reg.EntityName(), kind)
	}

	text, err := b.FullInsertStatement()
	ew.statement(label("insert"), text, err)
	text, err = b.FullSingleUpdateStatement()
	ew.statement(label("update by key"), text, err)
	text, err = b.FullSingleSelectStatement()
	ew.statement(label("select by key"), text, err)
	text, err = b.FullSingleDeleteStatement()
	ew.statement(label("delete by key"), text, err)
	text, err = b.FullCountStatement("")
	ew.statement(label("count"), text, err)
	text, err = pagedSelect(b)
	ew.statement(label("page 3 of 10"), text, err)
}

// pagedSelect orders by the key, or the first column of keyless entities,
// and skips two pages of ten.
func pagedSelect(b *builder.StatementBuilder) (string, error) {
	reg := b.Registration()
	order := reg.KeyProperties()
	if len(order) == 0 && len(reg.Properties()) > 0 {
		order = reg.Properties()[:1]
	}
	orderBy := ""
	for i, p := range order {
		if i > 0 {
			orderBy += ", "
		}
		orderBy += b.ColumnName(p, "")
	}
	skip, limit := int64(20), int64(10)
	return b.FullBatchSelectStatement(builder.SelectQuery{OrderBy: orderBy, Skip: &skip, Limit: &limit})
}

func joinedSelect(reg *mapping.Registry, cache *builder.Cache, sj sampleJoin) (string, error) {
	mainReg, err := reg.Registration(sj.main)
	if err != nil {
		return "", err
	}
	specs := make([]join.Spec, len(sj.joins))
	for i, j := range sj.joins {
		jreg, err := reg.Registration(j.entity)
		if err != nil {
			return "", err
		}
		specs[i] = join.Spec{
			Builder:        cache.Builder(jreg),
			Alias:          j.alias,
			Kind:           j.kind,
			From:           j.from,
			FromNavigation: j.fromNavigation,
		}
	}
	main := cache.Builder(mainReg)
	plan, err := join.Resolve(main, sj.mainAlias, specs)
	if err != nil {
		return "", err
	}

	clauses := make([]string, 2)
	for i, tmpl := range []string{sj.where, sj.orderBy} {
		if tmpl == "" {
			continue
		}
		if err := plan.Resolver.Activate(plan.Participants[0].Reference()); err != nil {
			return "", err
		}
		if clauses[i], err = format.Format(plan.Resolver, tmpl); err != nil {
			return "", err
		}
	}
	limit := int64(50)
	return main.FullSelectStatement(plan.SelectClause(), plan.FromClause(), clauses[0], clauses[1], nil, &limit)
}
