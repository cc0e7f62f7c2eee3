package builder

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const (
	sqlAnywhereStagingTable = "#entitysql_keys"
	sqlAnywhereFinalRow     = "final_row"
)

// sqlAnywhereHooks reads refreshed columns from DML derived tables
// (REFERENCING FINAL), and pages with 1-based TOP/START AT.
type sqlAnywhereHooks struct {
	genericHooks
}

func finalRows(dml string) string {
	return fmt.Sprintf("(%s) REFERENCING (FINAL AS %s)", dml, sqlAnywhereFinalRow)
}

func (sqlAnywhereHooks) insert(b *StatementBuilder) (string, error) {
	insert, err := b.insertInto("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnInsertProperties()
	if len(refresh) == 0 {
		return insert, nil
	}
	if key, ok := b.singleGeneratedIntegerKey(); ok {
		return batch(insert, "SELECT @@IDENTITY AS "+b.DelimitedIdentifier(key.Name())), nil
	}

	keys := b.reg.KeyProperties()
	if len(keys) == 0 {
		return fmt.Sprintf("SELECT %s FROM %s",
			b.selectColumns(refresh, sqlAnywhereFinalRow), finalRows(insert)), nil
	}
	stage := fmt.Sprintf("SELECT %s INTO %s FROM %s",
		b.plainColumns(keys, sqlAnywhereFinalRow), sqlAnywhereStagingTable, finalRows(insert))
	reselect := fmt.Sprintf("SELECT %s FROM %s INNER JOIN %s ON %s",
		b.selectColumns(refresh, b.TableName("")), b.TableName(""), sqlAnywhereStagingTable, b.joinOnKeys(sqlAnywhereStagingTable))
	return batch(stage, reselect, dropStaging(sqlAnywhereStagingTable)), nil
}

func (sqlAnywhereHooks) update(b *StatementBuilder) (string, error) {
	update, err := b.updateByKeys("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnUpdateProperties()
	if len(refresh) == 0 {
		return update, nil
	}
	return fmt.Sprintf("SELECT %s FROM %s", b.selectColumns(refresh, sqlAnywhereFinalRow), finalRows(update)), nil
}

// page converts the 0-based skip into the 1-based START AT.
func (sqlAnywhereHooks) page(q sq.SelectBuilder, _ bool, skip, limit *int64) sq.SelectBuilder {
	top := "TOP ALL"
	if limit != nil {
		top = fmt.Sprintf("TOP %d", *limit)
	}
	if skip == nil {
		return q.Options(top)
	}
	return q.Options(top, fmt.Sprintf("START AT %d", *skip+1))
}
