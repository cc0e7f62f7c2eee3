package genapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"entitysql/internal/builder"
	"entitysql/internal/crud"
	"entitysql/internal/mapping"
	"entitysql/internal/ormerr"
	"entitysql/internal/samplemodel"
	"entitysql/internal/sqltype"
)

// smokeEntities are the tables the smoke test creates, parents first.
var smokeEntities = []reflect.Type{
	reflect.TypeFor[samplemodel.Building](),
	reflect.TypeFor[samplemodel.Workstation](),
}

// SmokeTest creates the building and workstation tables on the configured
// database and runs a round trip of inserts, joined selects, updates, counts,
// a rolled back transaction and deletes through a crud session. Progress is
// written to w.
func (a *App) SmokeTest(ctx context.Context, w io.Writer) error {
	a.stateMu.Lock()
	db := a.db
	a.stateMu.Unlock()
	if db == nil {
		return fmt.Errorf("%w: smoke test needs an initialized database; enable generate.smoke_test", ormerr.ErrState)
	}

	reg, err := a.newRegistry(db.Dialect)
	if err != nil {
		return err
	}
	session := crud.NewSession(db.DB, reg,
		crud.WithLogger(a.logger),
		crud.WithMetrics(a.statementMetrics),
	)
	cache := builder.NewCache(builder.WithMetrics(a.statementMetrics))
	ew := &errWriter{w: w}
	step := func(f string, args ...any) {
		ew.printf("-- smoke: "+f+"\n", args...)
	}

	for i := len(smokeEntities) - 1; i >= 0; i-- {
		if err := a.dropTable(ctx, reg, cache, smokeEntities[i]); err != nil {
			return err
		}
	}
	for _, t := range smokeEntities {
		ddl, err := a.createTable(ctx, reg, cache, t)
		if err != nil {
			return err
		}
		step("%s", ddl)
	}

	timeout := crud.WithTimeout(a.cfg.Database.StatementTimeout)

	hq := &samplemodel.Building{Name: "HQ", Description: "smoke test"}
	if err := session.Insert(ctx, hq, timeout); err != nil {
		return fmt.Errorf("insert building: %w", err)
	}
	if hq.BuildingID == 0 {
		return fmt.Errorf("insert building: identity was not read back")
	}
	step("inserted building %d", hq.BuildingID)

	desks := []*samplemodel.Workstation{
		{Name: "desk-a", AccessLevel: 1, BuildingID: &hq.BuildingID},
		{Name: "desk-b", AccessLevel: 3, BuildingID: &hq.BuildingID},
	}
	for _, desk := range desks {
		if err := session.Insert(ctx, desk, timeout); err != nil {
			return fmt.Errorf("insert workstation: %w", err)
		}
	}
	step("inserted workstations %d and %d", desks[0].WorkstationID, desks[1].WorkstationID)

	inBuilding := crud.WithParams(map[string]any{"building": hq.BuildingID})
	found, err := crud.Find[samplemodel.Workstation](ctx, session,
		crud.LeftOuterJoin[samplemodel.Building](crud.MapResults()),
		crud.Where("{BuildingID:TC} = {building:P}"),
		crud.OrderBy("{Name:TC}"),
		inBuilding, timeout,
	)
	if err != nil {
		return fmt.Errorf("find workstations: %w", err)
	}
	if len(found) != 2 || found[0].Building == nil || found[0].Building != found[1].Building {
		return fmt.Errorf("find workstations: expected two workstations sharing one building, got %d", len(found))
	}
	if n := len(found[0].Building.Workstations); n != 2 {
		return fmt.Errorf("find workstations: building maps %d workstations, expected 2", n)
	}
	step("found %d workstations in %q", len(found), found[0].Building.Name)

	hq.Name = "Head Office"
	if ok, err := session.Update(ctx, hq, timeout); err != nil || !ok {
		return fmt.Errorf("update building: updated=%t: %w", ok, errOrMissing(err))
	}
	reread := &samplemodel.Building{BuildingID: hq.BuildingID}
	if ok, err := session.Get(ctx, reread, timeout); err != nil || !ok || reread.Name != hq.Name {
		return fmt.Errorf("get building: found=%t name=%q: %w", ok, reread.Name, errOrMissing(err))
	}
	step("renamed building to %q", reread.Name)

	count, err := crud.Count[samplemodel.Workstation](ctx, session,
		crud.Where("{BuildingID:C} = {building:P}"), inBuilding, timeout)
	if err != nil {
		return fmt.Errorf("count workstations: %w", err)
	}
	step("counted %d workstations", count)

	if err := a.rolledBackInsert(ctx, session, timeout); err != nil {
		return err
	}
	step("rolled back a transactional insert")

	removed, err := crud.BulkDelete[samplemodel.Workstation](ctx, session,
		crud.Where("{AccessLevel:C} > {level:P}"),
		crud.WithParams(map[string]any{"level": 2}),
		timeout,
	)
	if err != nil {
		return fmt.Errorf("bulk delete workstations: %w", err)
	}
	if removed != 1 {
		return fmt.Errorf("bulk delete workstations: removed %d rows, expected 1", removed)
	}
	for _, entity := range []any{desks[0], hq} {
		if ok, err := session.Delete(ctx, entity, timeout); err != nil || !ok {
			return fmt.Errorf("delete %T: deleted=%t: %w", entity, ok, errOrMissing(err))
		}
	}
	step("deleted every row")

	for i := len(smokeEntities) - 1; i >= 0; i-- {
		if err := a.dropTable(ctx, reg, cache, smokeEntities[i]); err != nil {
			return err
		}
	}
	a.logger.Info("smoke test passed", slog.String("dialect", db.Dialect.String()))
	step("passed on %s", db.Dialect)
	return ew.err
}

func (a *App) rolledBackInsert(ctx context.Context, session *crud.Session, timeout crud.Option) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	annex := &samplemodel.Building{Name: "Annex"}
	if err := session.Insert(ctx, annex, crud.WithTx(tx), timeout); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert building in transaction: %w", err)
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	ok, err := session.Get(ctx, &samplemodel.Building{BuildingID: annex.BuildingID}, timeout)
	if err != nil {
		return fmt.Errorf("get rolled back building: %w", err)
	}
	if ok {
		return fmt.Errorf("building %d survived the rollback", annex.BuildingID)
	}
	return nil
}

// errMissingRow stands in for a nil error when a statement affected no row.
var errMissingRow = fmt.Errorf("%w: no row affected", ormerr.ErrState)

func errOrMissing(err error) error {
	if err != nil {
		return err
	}
	return errMissingRow
}

func (a *App) dropTable(ctx context.Context, reg *mapping.Registry, cache *builder.Cache, t reflect.Type) error {
	r, err := reg.Registration(t)
	if err != nil {
		return err
	}
	stmt := "DROP TABLE IF EXISTS " + cache.Builder(r).TableName("")
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop %s: %w", r.EntityName(), err)
	}
	return nil
}

func (a *App) createTable(ctx context.Context, reg *mapping.Registry, cache *builder.Cache, t reflect.Type) (string, error) {
	r, err := reg.Registration(t)
	if err != nil {
		return "", err
	}
	ddl, err := createTableStatement(cache.Builder(r))
	if err != nil {
		return "", err
	}
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("create %s: %w", r.EntityName(), err)
	}
	return ddl, nil
}

// createTableStatement derives a CREATE TABLE from the registration. A single
// integer identity key becomes the dialect's auto increment column; pointer
// fields are nullable.
func createTableStatement(b *builder.StatementBuilder) (string, error) {
	reg := b.Registration()
	d := b.Dialect()
	keys := reg.KeyProperties()

	var cols []string
	for _, p := range reg.Properties() {
		col := b.ColumnName(p, "")
		if len(keys) == 1 && p == keys[0] && p.IsExcludedFromInsert() && p.IsIntegerKind() {
			cols = append(cols, col+" "+sqltype.IdentityColumn(d))
			continue
		}
		typ, err := sqltype.ColumnType(d, p.Type())
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", reg.EntityName(), p.Name(), err)
		}
		if p.Type().Kind() != reflect.Pointer {
			typ += " NOT NULL"
		}
		cols = append(cols, col+" "+typ)
	}
	if len(keys) > 1 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = b.ColumnName(k, "")
		}
		cols = append(cols, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", b.TableName(""), strings.Join(cols, ", ")), nil
}
