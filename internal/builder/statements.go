package builder

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"entitysql/internal/mapping"
)

// statementSeparator joins the statements of a multi-statement batch.
const statementSeparator = "; "

// SelectQuery carries the caller supplied parts of a batch select. Where and
// OrderBy are already resolved SQL fragments.
type SelectQuery struct {
	Alias   string
	Where   string
	OrderBy string
	Skip    *int64
	Limit   *int64
}

// FullInsertStatement returns the insert statement, including whatever the
// dialect needs to read back refresh-on-insert columns.
func (b *StatementBuilder) FullInsertStatement() (string, error) {
	return b.insertStmt.get(func() (string, error) {
		if err := b.requireProperties(); err != nil {
			return "", err
		}
		b.record("insert")
		return b.hooks.insert(b)
	})
}

// FullSingleUpdateStatement returns the update by primary key, including the
// read back of refresh-on-update columns.
func (b *StatementBuilder) FullSingleUpdateStatement() (string, error) {
	return b.updateStmt.get(func() (string, error) {
		if err := b.requireKeys(); err != nil {
			return "", err
		}
		if len(b.reg.UpdateProperties()) == 0 {
			return "", fmt.Errorf("%w: %s has no updatable properties", ErrNoProperties, b.reg.EntityName())
		}
		b.record("update")
		return b.hooks.update(b)
	})
}

// FullSingleSelectStatement returns the select by primary key.
func (b *StatementBuilder) FullSingleSelectStatement() (string, error) {
	return b.selectStmt.get(func() (string, error) {
		if err := b.requireKeys(); err != nil {
			return "", err
		}
		b.record("select")
		return b.selectWhere(b.ColumnEnumerationForSelect(""), b.KeysWhereClause(""))
	})
}

// FullSingleDeleteStatement returns the delete by primary key.
func (b *StatementBuilder) FullSingleDeleteStatement() (string, error) {
	return b.deleteStmt.get(func() (string, error) {
		if err := b.requireKeys(); err != nil {
			return "", err
		}
		b.record("delete")
		query, _, err := sq.Delete(b.TableName("")).
			Where(sq.Expr(b.KeysWhereClause(""))).
			PlaceholderFormat(sq.Question).
			ToSql()
		return query, err
	})
}

// FullBatchSelectStatement returns a select of every mapped column of the
// entity, filtered, ordered and paged as q describes.
func (b *StatementBuilder) FullBatchSelectStatement(q SelectQuery) (string, error) {
	if err := b.requireProperties(); err != nil {
		return "", err
	}
	b.record("batch_select")
	return b.FullSelectStatement(b.ColumnEnumerationForSelect(q.Alias), b.TableName(q.Alias), q.Where, q.OrderBy, q.Skip, q.Limit)
}

// FullBatchUpdateStatement returns an update of every updatable column for
// the rows matching where. An empty where updates every row.
func (b *StatementBuilder) FullBatchUpdateStatement(where string) (string, error) {
	if err := b.requireProperties(); err != nil {
		return "", err
	}
	if len(b.reg.UpdateProperties()) == 0 {
		return "", fmt.Errorf("%w: %s has no updatable properties", ErrNoProperties, b.reg.EntityName())
	}
	b.record("batch_update")
	update := sq.Update(b.TableName(""))
	for _, p := range b.reg.UpdateProperties() {
		update = update.Set(b.DelimitedIdentifier(p.ColumnName()), sq.Expr(b.Parameter(p.Name())))
	}
	if where != "" {
		update = update.Where(sq.Expr(where))
	}
	query, _, err := update.PlaceholderFormat(sq.Question).ToSql()
	return query, err
}

// FullBatchDeleteStatement returns a delete of the rows matching where. An
// empty where deletes every row.
func (b *StatementBuilder) FullBatchDeleteStatement(where string) (string, error) {
	if err := b.requireProperties(); err != nil {
		return "", err
	}
	b.record("batch_delete")
	del := sq.Delete(b.TableName(""))
	if where != "" {
		del = del.Where(sq.Expr(where))
	}
	query, _, err := del.PlaceholderFormat(sq.Question).ToSql()
	return query, err
}

// FullCountStatement returns a row count of the entity's table.
func (b *StatementBuilder) FullCountStatement(where string) (string, error) {
	return b.FullCountStatementFrom(b.TableName(""), where)
}

// FullCountStatementFrom returns a row count over an arbitrary FROM clause,
// used when the count spans joined tables.
func (b *StatementBuilder) FullCountStatementFrom(from, where string) (string, error) {
	if err := b.requireProperties(); err != nil {
		return "", err
	}
	b.record("count")
	q := sq.Select("COUNT(*)").From(from)
	if where != "" {
		q = q.Where(sq.Expr(where))
	}
	query, _, err := q.PlaceholderFormat(sq.Question).ToSql()
	return query, err
}

// FullSelectStatement assembles a select from resolved clauses and applies
// the dialect's paging syntax. Empty where and orderBy are omitted; nil skip
// and limit disable paging.
func (b *StatementBuilder) FullSelectStatement(selectClause, from, where, orderBy string, skip, limit *int64) (string, error) {
	if selectClause == "" || from == "" {
		return "", fmt.Errorf("%w: select statement for %s needs a select list and a FROM clause",
			ErrNoProperties, b.reg.EntityName())
	}
	if (skip != nil && *skip < 0) || (limit != nil && *limit < 0) {
		return "", fmt.Errorf("%w: skip and limit cannot be negative (entity %s)", ErrInvalidPaging, b.reg.EntityName())
	}
	q := sq.Select(selectClause).From(from)
	if where != "" {
		q = q.Where(sq.Expr(where))
	}
	if orderBy != "" {
		q = q.OrderBy(orderBy)
	}
	if skip != nil || limit != nil {
		q = b.hooks.page(q, orderBy != "", skip, limit)
	}
	query, _, err := q.PlaceholderFormat(sq.Question).ToSql()
	return query, err
}

// insertInto returns the plain insert. beforeValues, when set, is placed
// between the column list and the VALUES clause (MsSql OUTPUT).
func (b *StatementBuilder) insertInto(beforeValues string) (string, error) {
	table := b.TableName("")
	cols := b.ColumnEnumerationForInsert()
	if cols == "" {
		parts := []string{"INSERT INTO", table}
		if beforeValues != "" {
			parts = append(parts, beforeValues)
		}
		parts = append(parts, b.hooks.defaultValues())
		return strings.Join(parts, " "), nil
	}
	if beforeValues != "" {
		return fmt.Sprintf("INSERT INTO %s (%s) %s VALUES (%s)", table, cols, beforeValues, b.ParamEnumerationForInsert()), nil
	}
	query, _, err := sq.Insert(table).
		Columns(cols).
		Values(sq.Expr(b.ParamEnumerationForInsert())).
		PlaceholderFormat(sq.Question).
		ToSql()
	return query, err
}

// updateByKeys returns the plain update by primary key. beforeWhere, when
// set, is placed between the SET list and the WHERE clause.
func (b *StatementBuilder) updateByKeys(beforeWhere string) (string, error) {
	if beforeWhere != "" {
		return fmt.Sprintf("UPDATE %s SET %s %s WHERE %s",
			b.TableName(""), b.UpdateClause(), beforeWhere, b.KeysWhereClause("")), nil
	}
	update := sq.Update(b.TableName(""))
	for _, p := range b.reg.UpdateProperties() {
		update = update.Set(b.DelimitedIdentifier(p.ColumnName()), sq.Expr(b.Parameter(p.Name())))
	}
	query, _, err := update.
		Where(sq.Expr(b.KeysWhereClause(""))).
		PlaceholderFormat(sq.Question).
		ToSql()
	return query, err
}

func (b *StatementBuilder) selectWhere(columns, where string) (string, error) {
	query, _, err := sq.Select(columns).
		From(b.TableName("")).
		Where(sq.Expr(where)).
		PlaceholderFormat(sq.Question).
		ToSql()
	return query, err
}

// singleGeneratedIntegerKey reports the fast path: exactly one database
// generated integer key and nothing else to read back.
func (b *StatementBuilder) singleGeneratedIntegerKey() (*mapping.Property, bool) {
	generated := b.reg.InsertKeyDatabaseGeneratedProperties()
	refresh := b.reg.RefreshOnInsertProperties()
	if len(generated) != 1 || len(refresh) != 1 || generated[0] != refresh[0] {
		return nil, false
	}
	if !generated[0].IsIntegerKind() {
		return nil, false
	}
	return generated[0], true
}

// stagingTable returns the statement creating an empty temporary table with
// the columns of props. Selecting through a UNION drops the identity property
// the source columns may carry.
func (b *StatementBuilder) stagingTable(name string, props []*mapping.Property) string {
	cols := b.plainColumns(props, "")
	source := fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0", cols, b.TableName(""))
	return fmt.Sprintf("SELECT * INTO %s FROM (%s UNION %s) AS staged", name, source, source)
}

// joinOnKeys returns the predicate matching the table's key columns with the
// same columns of other.
func (b *StatementBuilder) joinOnKeys(other string) string {
	keys := b.reg.KeyProperties()
	conds := make([]string, len(keys))
	table := b.TableName("")
	for i, p := range keys {
		col := b.DelimitedIdentifier(p.ColumnName())
		conds[i] = table + "." + col + " = " + other + "." + col
	}
	return strings.Join(conds, " AND ")
}

func batch(statements ...string) string {
	return strings.Join(statements, statementSeparator)
}

// genericHooks is the fallback every dialect starts from: a plain write
// followed by a select of the refreshed columns by key parameters, and
// LIMIT/OFFSET paging.
type genericHooks struct{}

func (genericHooks) insert(b *StatementBuilder) (string, error) {
	insert, err := b.insertInto("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnInsertProperties()
	if len(refresh) == 0 {
		return insert, nil
	}
	if len(b.reg.KeyProperties()) == 0 {
		return "", fmt.Errorf("%w: %s: reading back refreshed columns after insert", ErrNoPrimaryKey, b.reg.EntityName())
	}
	reselect, err := b.selectWhere(b.RefreshColumnSelection(refresh), b.KeysWhereClause(""))
	if err != nil {
		return "", err
	}
	return batch(insert, reselect), nil
}

func (genericHooks) update(b *StatementBuilder) (string, error) {
	update, err := b.updateByKeys("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnUpdateProperties()
	if len(refresh) == 0 {
		return update, nil
	}
	reselect, err := b.selectWhere(b.RefreshColumnSelection(refresh), b.KeysWhereClause(""))
	if err != nil {
		return "", err
	}
	return batch(update, reselect), nil
}

func (genericHooks) page(q sq.SelectBuilder, _ bool, skip, limit *int64) sq.SelectBuilder {
	if limit != nil {
		q = q.Limit(uint64(*limit))
	}
	if skip != nil {
		q = q.Offset(uint64(*skip))
	}
	return q
}

func (genericHooks) defaultValues() string { return "DEFAULT VALUES" }

// Statements splits a statement batch into its individual statements, for
// drivers that run one statement per call.
func Statements(batchText string) []string {
	return strings.Split(batchText, statementSeparator)
}

// dropStagingPrefix starts every statement removing a staging table. Staging
// tables are session temporary tables, so their names start with '#'.
const dropStagingPrefix = "DROP TABLE #"

func dropStaging(table string) string {
	return "DROP TABLE " + table
}

// Batch is a write batch split around the select reading refreshed columns
// back. Setup and Cleanup run as plain statements on the same connection as
// Query.
type Batch struct {
	Setup   []string
	Query   string
	Cleanup []string
}

// SplitBatch splits a refreshing write batch. Trailing staging table drops
// are cleanup; the statement before them is the read-back query.
func SplitBatch(batchText string) Batch {
	stmts := Statements(batchText)
	end := len(stmts)
	for end > 1 && strings.HasPrefix(stmts[end-1], dropStagingPrefix) {
		end--
	}
	return Batch{
		Setup:   stmts[:end-1],
		Query:   stmts[end-1],
		Cleanup: stmts[end:],
	}
}
