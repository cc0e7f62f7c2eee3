package builder

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"entitysql/internal/mapping"
)

// mssqlStagingTable receives OUTPUT rows. Plain OUTPUT without INTO fails on
// tables that carry triggers.
const mssqlStagingTable = "#entitysql_output"

type mssqlHooks struct {
	genericHooks
}

func outputInto(b *StatementBuilder, props []*mapping.Property) string {
	return fmt.Sprintf("OUTPUT %s INTO %s", b.plainColumns(props, "inserted"), mssqlStagingTable)
}

func (mssqlHooks) insert(b *StatementBuilder) (string, error) {
	refresh := b.reg.RefreshOnInsertProperties()
	if len(refresh) == 0 {
		return b.insertInto("")
	}
	if key, ok := b.singleGeneratedIntegerKey(); ok {
		insert, err := b.insertInto("")
		if err != nil {
			return "", err
		}
		return batch(insert, "SELECT SCOPE_IDENTITY() AS "+b.DelimitedIdentifier(key.Name())), nil
	}

	keys := b.reg.KeyProperties()
	if len(keys) == 0 {
		insert, err := b.insertInto(outputInto(b, refresh))
		if err != nil {
			return "", err
		}
		return batch(
			b.stagingTable(mssqlStagingTable, refresh),
			insert,
			"SELECT * FROM "+mssqlStagingTable,
			dropStaging(mssqlStagingTable),
		), nil
	}

	insert, err := b.insertInto(outputInto(b, keys))
	if err != nil {
		return "", err
	}
	reselect := fmt.Sprintf("SELECT %s FROM %s INNER JOIN %s ON %s",
		b.selectColumns(refresh, b.TableName("")), b.TableName(""), mssqlStagingTable, b.joinOnKeys(mssqlStagingTable))
	return batch(
		b.stagingTable(mssqlStagingTable, keys),
		insert,
		reselect,
		dropStaging(mssqlStagingTable),
	), nil
}

func (mssqlHooks) update(b *StatementBuilder) (string, error) {
	refresh := b.reg.RefreshOnUpdateProperties()
	if len(refresh) == 0 {
		return b.updateByKeys("")
	}
	update, err := b.updateByKeys(outputInto(b, refresh))
	if err != nil {
		return "", err
	}
	return batch(
		b.stagingTable(mssqlStagingTable, refresh),
		update,
		"SELECT * FROM "+mssqlStagingTable,
		dropStaging(mssqlStagingTable),
	), nil
}

// page uses OFFSET/FETCH, which is only valid after an ORDER BY.
func (mssqlHooks) page(q sq.SelectBuilder, ordered bool, skip, limit *int64) sq.SelectBuilder {
	if !ordered {
		q = q.OrderBy("(SELECT NULL)")
	}
	var offset int64
	if skip != nil {
		offset = *skip
	}
	q = q.Suffix(fmt.Sprintf("OFFSET %d ROWS", offset))
	if limit != nil {
		q = q.Suffix(fmt.Sprintf("FETCH NEXT %d ROWS ONLY", *limit))
	}
	return q
}
